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


package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.Nil(t, os.WriteFile(path, []byte("routes: []"), 0644))

	assert.Equal(t, []byte("routes: []"), LoadFile(path))
	assert.Nil(t, LoadFile(filepath.Join(dir, "missing.yaml")))
	assert.True(t, IsExist(path))
	assert.False(t, IsExist(filepath.Join(dir, "missing.yaml")))
}

func TestGetFilePaths(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.Nil(t, os.MkdirAll(filepath.Join(dir, "disabled"), 0755))
	for _, name := range []string{"b.yaml", "a.YML", "notes.txt", "nested/c.yaml", "disabled/d.yaml"} {
		require.Nil(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	paths, err := GetFilePaths(dir, RoutePattern, "disabled")
	require.Nil(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.YML"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, paths)

	_, err = GetFilePaths(filepath.Join(dir, "missing"), RoutePattern)
	assert.NotNil(t, err)
}
