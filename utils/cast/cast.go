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

// Package cast converts loosely typed values, typically uri parameters and
// header strings, into the types method arguments and configuration expect.
package cast

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind names accepted by Convert.
const (
	KindString   = "string"
	KindInt      = "int"
	KindInt64    = "int64"
	KindFloat64  = "float64"
	KindBool     = "bool"
	KindDuration = "duration"
	KindMap      = "map"
	KindStrings  = "[]string"
	KindAny      = "any"
)

// toFloat widens any numeric value. ok is false for non numeric input.
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToInt converts value to int, returning 0 on failure.
func ToInt(value interface{}) int {
	v, _ := ToIntE(value)
	return v
}

func ToIntE(value interface{}) (int, error) {
	v, err := ToInt64E(value)
	return int(v), err
}

// ToInt64E converts value to int64.
func ToInt64E(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unable to cast %q to int64: %w", v, err)
		}
		return i, nil
	}
	if f, ok := toFloat(value); ok {
		return int64(f), nil
	}
	return 0, fmt.Errorf("unable to cast %v of type %T to int64", value, value)
}

// ToFloat64E converts value to float64.
func ToFloat64E(value interface{}) (float64, error) {
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("unable to cast %q to float64: %w", s, err)
		}
		return f, nil
	}
	if f, ok := toFloat(value); ok {
		return f, nil
	}
	return 0, fmt.Errorf("unable to cast %v of type %T to float64", value, value)
}

// ToBool converts value to bool, returning false on failure.
func ToBool(value interface{}) bool {
	v, _ := ToBoolE(value)
	return v
}

func ToBoolE(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("unable to cast %q to bool", v)
		}
		return b, nil
	}
	if f, ok := toFloat(value); ok {
		return f != 0, nil
	}
	return false, fmt.Errorf("unable to cast %v of type %T to bool", value, value)
}

// ToDurationE converts value to a duration. Bare numbers, as numbers or
// digit-only strings, are milliseconds; other strings use time.ParseDuration.
func ToDurationE(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("unable to cast %q to duration: %w", s, err)
		}
		return d, nil
	}
	if f, ok := toFloat(value); ok {
		return time.Duration(f) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("unable to cast %v of type %T to duration", value, value)
}

// ToString converts value to string, returning "" on failure.
func ToString(value interface{}) string {
	v, _ := ToStringE(value)
	return v
}

// ToStringE formats scalars directly and marshals everything else as json.
func ToStringE(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case error:
		return v.Error(), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	if f, ok := toFloat(value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToStringSliceE accepts a slice or a comma separated string.
func ToStringSliceE(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case string:
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, ToString(item))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unable to cast %v of type %T to []string", value, value)
}

// ToStringMapE accepts a map or a json object string.
func ToStringMapE(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, nil
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out, nil
	case string:
		out := make(map[string]interface{})
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("unable to cast %q to map: %w", v, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unable to cast %v of type %T to map", value, value)
}

// Convert converts value to the given kind. Unknown kinds and KindAny return
// value unchanged.
func Convert(value interface{}, kind string) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch kind {
	case KindString:
		return ToStringE(value)
	case KindInt:
		return ToIntE(value)
	case KindInt64:
		return ToInt64E(value)
	case KindFloat64:
		return ToFloat64E(value)
	case KindBool:
		return ToBoolE(value)
	case KindDuration:
		return ToDurationE(value)
	case KindMap:
		return ToStringMapE(value)
	case KindStrings:
		return ToStringSliceE(value)
	default:
		return value, nil
	}
}
