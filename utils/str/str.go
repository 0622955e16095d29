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

// Package str holds string helpers shared by components: ${} placeholder
// substitution, list splitting and random identifiers.
package str

import (
	"math/rand"
	"regexp"
	"strings"

	"github.com/rulego/rulego-connectors/utils/cast"
	"github.com/rulego/rulego-connectors/utils/maps"
)

// matches ${aa} or ${aa.bb}
var tplVarRegex = regexp.MustCompile(`\$\{ *([^}]+) *\}`)

// ExecuteTemplate replaces ${key} and ${key.subKey} placeholders with values
// from dict. Unknown placeholders are kept as they are.
func ExecuteTemplate(original string, dict map[string]interface{}) string {
	return tplVarRegex.ReplaceAllStringFunc(original, func(s string) string {
		matches := tplVarRegex.FindStringSubmatch(s)
		if len(matches) < 2 {
			return s
		}
		v := maps.Get(dict, strings.TrimSpace(matches[1]))
		if v == nil {
			return s
		}
		return cast.ToString(v)
	})
}

// SprintfDict replaces ${key} placeholders with values from dict. Keys are
// looked up literally, so ${global.name} needs the key "global.name".
func SprintfDict(original string, dict map[string]string) string {
	return tplVarRegex.ReplaceAllStringFunc(original, func(s string) string {
		matches := tplVarRegex.FindStringSubmatch(s)
		if len(matches) < 2 {
			return s
		}
		if v, ok := dict[strings.TrimSpace(matches[1])]; ok {
			return v
		}
		return s
	})
}

// SprintfVar is SprintfDict with every key of dict prefixed by prefix.
func SprintfVar(original string, prefix string, dict map[string]string) string {
	prefixed := make(map[string]string, len(dict))
	for k, v := range dict {
		prefixed[prefix+k] = v
	}
	return SprintfDict(original, prefixed)
}

// CheckHasVar reports whether s contains a ${} placeholder.
func CheckHasVar(s string) bool {
	return tplVarRegex.MatchString(s)
}

// SplitAndTrim splits s by sep, trims the items and drops empty ones.
func SplitAndTrim(s string, sep string) []string {
	var out []string
	for _, item := range strings.Split(s, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

const randomStrOptions = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomStr returns a random alphanumeric string of length num.
func RandomStr(num int) string {
	var builder strings.Builder
	for i := 0; i < num; i++ {
		builder.WriteByte(randomStrOptions[rand.Intn(len(randomStrOptions))])
	}
	return builder.String()
}
