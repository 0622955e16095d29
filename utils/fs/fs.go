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


// Package fs finds and reads route definition files.
package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RoutePattern matches route definition files.
var RoutePattern = []string{"*.yaml", "*.yml"}

// LoadFile returns the content of filePath, or nil when it cannot be read.
func LoadFile(filePath string) []byte {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return nil
	}
	return buf
}

// IsExist reports whether path exists.
func IsExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetFilePaths walks dir and returns the sorted paths of files matching any
// of patterns. Directories and files matching excludedPatterns are skipped.
func GetFilePaths(dir string, patterns []string, excludedPatterns ...string) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isMatch(d, excludedPatterns...) {
			if d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isMatch(d, patterns...) {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

func isMatch(d fs.DirEntry, patterns ...string) bool {
	name := strings.ToLower(d.Name())
	for _, item := range patterns {
		if matched, _ := filepath.Match(strings.ToLower(item), name); matched {
			return true
		}
	}
	return false
}
