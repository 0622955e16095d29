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

package maps

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rulego/rulego-connectors/utils/cast"
)

// durationHook decodes bare numbers as milliseconds and strings with
// time.ParseDuration, matching how endpoint uris express timeouts.
func durationHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	return cast.ToDurationE(data)
}

// Map2Struct decodes input, usually endpoint parameters, into output. Keys
// are matched case insensitively and string values are converted to the
// target field types.
func Map2Struct(input interface{}, output interface{}) error {
	_, err := decode(input, output)
	return err
}

// Map2StructUnused decodes like Map2Struct and returns the keys of input
// that matched no field, sorted.
func Map2StructUnused(input interface{}, output interface{}) ([]string, error) {
	md, err := decode(input, output)
	if err != nil {
		return nil, err
	}
	sort.Strings(md.Unused)
	return md.Unused, nil
}

func decode(input interface{}, output interface{}) (*mapstructure.Metadata, error) {
	md := &mapstructure.Metadata{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       durationHook,
		WeaklyTypedInput: true,
		Metadata:         md,
		Result:           output,
	})
	if err != nil {
		return nil, err
	}
	return md, decoder.Decode(input)
}

// Get returns the value at a dotted path of nested maps, or nil.
func Get(m map[string]interface{}, path string) interface{} {
	var current interface{} = m
	for _, key := range strings.Split(path, ".") {
		next, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		if current, ok = next[key]; !ok {
			return nil
		}
	}
	return current
}
