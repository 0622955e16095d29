/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package db

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/json"
)

// Placeholder styles of drivers.
const (
	StyleQuestion = "question"
	StyleDollar   = "dollar"
)

// PlaceholderStyle returns the bind parameter style of driverName.
func PlaceholderStyle(driverName string) string {
	switch strings.ToLower(driverName) {
	case "postgres", "pgx", "pq":
		return StyleDollar
	default:
		return StyleQuestion
	}
}

// parameter is a named :#name or positional # placeholder of a statement.
type parameter struct {
	name string
}

// Statement is a parsed sql statement with its driver placeholders.
type Statement struct {
	// Query is the statement with driver placeholders.
	Query  string
	params []parameter
	// Select is set for statements returning rows.
	Select bool
}

// ParseStatement replaces :#name and # placeholders outside quoted strings
// with driver placeholders of style.
func ParseStatement(statement string, style string) (*Statement, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, fmt.Errorf("%w: sql statement is required", types.ErrIllegalArgument)
	}
	s := &Statement{Select: isSelect(statement)}
	var b strings.Builder
	runes := []rune(statement)
	var quote rune
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		switch {
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)
		case r == ':' && i+1 < len(runes) && runes[i+1] == '#':
			j := i + 2
			for j < len(runes) && isNameRune(runes[j]) {
				j++
			}
			if j == i+2 {
				return nil, fmt.Errorf("%w: empty parameter name at %d in %q", types.ErrIllegalArgument, i, statement)
			}
			s.params = append(s.params, parameter{name: string(runes[i+2 : j])})
			b.WriteString(placeholder(style, len(s.params)))
			i = j - 1
		case r == '#':
			s.params = append(s.params, parameter{})
			b.WriteString(placeholder(style, len(s.params)))
		default:
			b.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated quote in %q", types.ErrIllegalArgument, statement)
	}
	s.Query = b.String()
	return s, nil
}

func placeholder(style string, n int) string {
	if style == StyleDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '$'
}

func isSelect(statement string) bool {
	word, _, _ := strings.Cut(strings.TrimSpace(statement), " ")
	switch strings.ToUpper(strings.TrimSpace(word)) {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "VALUES":
		return true
	}
	return false
}

// Args resolves the statement parameters for msg. Named parameters are read
// from headers, then from the fields of a json object body. Positional
// parameters take the elements of a json array body in order.
func (s *Statement) Args(msg types.Message) ([]interface{}, error) {
	if len(s.params) == 0 {
		return nil, nil
	}
	var fields map[string]interface{}
	var items []interface{}
	body := strings.TrimSpace(msg.Body)
	if strings.HasPrefix(body, "{") {
		_ = json.Unmarshal([]byte(body), &fields)
	} else if strings.HasPrefix(body, "[") {
		_ = json.Unmarshal([]byte(body), &items)
	}
	args := make([]interface{}, 0, len(s.params))
	next := 0
	for _, p := range s.params {
		if p.name == "" {
			if next >= len(items) {
				return nil, fmt.Errorf("%w: positional parameter %d has no value in the body", types.ErrIllegalArgument, next+1)
			}
			args = append(args, items[next])
			next++
			continue
		}
		if msg.Headers.Has(p.name) {
			args = append(args, msg.Headers.GetValue(p.name))
		} else if v, ok := fields[p.name]; ok {
			args = append(args, v)
		} else {
			return nil, fmt.Errorf("%w: no value for parameter :#%s", types.ErrIllegalArgument, p.name)
		}
	}
	return args, nil
}
