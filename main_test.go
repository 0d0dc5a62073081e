/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package main

import (
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceFiles(t *testing.T) []string {
	var files []string
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != "." && (strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(path, ".go") {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestSourceLayout(t *testing.T) {
	files := sourceFiles(t)
	require.NotEmpty(t, files)
	for _, path := range files {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		src := string(data)

		f, err := parser.ParseFile(token.NewFileSet(), path, data, parser.ParseComments)
		require.NoError(t, err, path)
		licensed := false
		for _, c := range f.Comments {
			if c.Pos() < f.Package && strings.Contains(c.Text(), "Apache License") {
				licensed = true
			}
		}
		assert.True(t, licensed, "%s has no license header", path)

		assert.NotContains(t, src, "\n\n\n", "%s has consecutive blank lines", path)
		assert.True(t, strings.HasSuffix(src, "}\n") || strings.HasSuffix(src, ")\n"), path)
	}
}
