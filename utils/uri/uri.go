/*
 * Copyright 2024 The RuleGo Authors.
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

// Package uri parses endpoint uris of the form `scheme:remaining?k=v&k2=v2`.
//
// Values are url decoded unless wrapped in RAW(...), which keeps them
// verbatim, for predicates and passwords that contain reserved characters.
package uri

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Uri is a parsed endpoint uri.
type Uri struct {
	Scheme    string
	Remaining string
	Params    map[string]string
}

// Parse splits raw into scheme, remaining path and parameters.
func Parse(raw string) (Uri, error) {
	raw = strings.TrimSpace(raw)
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return Uri{}, fmt.Errorf("missing scheme in %q", raw)
	}
	u := Uri{Scheme: raw[:idx], Params: make(map[string]string)}
	if strings.ContainsAny(u.Scheme, "/?&= ") {
		return Uri{}, fmt.Errorf("invalid scheme in %q", raw)
	}
	rest := raw[idx+1:]
	query := ""
	if q := strings.Index(rest, "?"); q >= 0 {
		rest, query = rest[:q], rest[q+1:]
	}
	u.Remaining = rest
	if err := parseQuery(query, u.Params); err != nil {
		return Uri{}, fmt.Errorf("invalid parameters in %q: %w", raw, err)
	}
	return u, nil
}

func parseQuery(query string, params map[string]string) error {
	for query != "" {
		var pair string
		// a RAW(...) value may contain '&'
		if eq := strings.Index(query, "="); eq >= 0 && strings.HasPrefix(query[eq+1:], "RAW(") {
			value := query[eq+1:]
			end := strings.Index(value, ")&")
			if end < 0 {
				if !strings.HasSuffix(value, ")") {
					return fmt.Errorf("unterminated RAW value")
				}
				end = len(value) - 1
			}
			cut := eq + 1 + end + 1
			pair, query = query[:cut], strings.TrimPrefix(query[cut:], "&")
		} else if amp := strings.Index(query, "&"); amp >= 0 {
			pair, query = query[:amp], query[amp+1:]
		} else {
			pair, query = query, ""
		}
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(key)
		if err != nil {
			return err
		}
		if strings.HasPrefix(value, "RAW(") && strings.HasSuffix(value, ")") {
			value = value[4 : len(value)-1]
		} else if value, err = url.QueryUnescape(value); err != nil {
			return err
		}
		params[key] = value
	}
	return nil
}

// String formats the uri with parameters sorted by key, so equivalent uris
// produce the same string.
func (u Uri) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString(":")
	b.WriteString(u.Remaining)
	if len(u.Params) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(u.Params))
	for k := range u.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(u.Params[k]))
	}
	return b.String()
}

// Normalize parses and re-formats raw.
func Normalize(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Config returns the parameters as an untyped map for maps.Map2Struct.
func (u Uri) Config() map[string]interface{} {
	m := make(map[string]interface{}, len(u.Params))
	for k, v := range u.Params {
		m[k] = v
	}
	return m
}
