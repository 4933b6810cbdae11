package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree writes a map of relative path -> content under dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestScan_KnownFilesAndModules(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"src/app.ts":       "import { run } from './runner';\nrun();\n",
		"src/runner.ts":    "export function run() {}\n",
		"lib/util.py":      "import os\n",
		"README.md":        "# readme\n",
		"main.go":          "package main\n",
		"dist/app.min.js":  "x",
		"node_modules/a.js": "x",
	})

	snap, err := Scan(dir, Options{
		IgnoreGlobs: []string{"**/node_modules/**", "**/dist/**"},
	})
	require.NoError(t, err)

	assert.True(t, snap.HasFile("src/app.ts"))
	assert.True(t, snap.HasFile("./src/runner.ts"))
	assert.True(t, snap.HasFile("app.ts"), "suffix matching resolves shallow claims")
	assert.False(t, snap.HasFile("README.md"), "non-source files are not facts")
	assert.False(t, snap.HasFile("dist/app.min.js"), "ignored dirs are excluded")
	assert.False(t, snap.HasFile("node_modules/a.js"))

	modules := snap.Modules()
	names := make([]string, 0, len(modules))
	for _, m := range modules {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"src", "lib", "root"}, names)
}

func TestScan_ImportEdges(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"src/app.ts":    "import { run } from './runner';\nimport fs from 'fs';\n",
		"src/runner.ts": "export function run() {}\n",
		"src/other.ts":  "export const x = 1;\n",
	})

	snap, err := Scan(dir, Options{})
	require.NoError(t, err)

	assert.True(t, snap.HasImport("src/app.ts", "src/runner.ts"))
	assert.False(t, snap.HasImport("src/app.ts", "src/other.ts"), "no declared edge")
	assert.False(t, snap.HasImport("src/ghost.ts", "src/runner.ts"), "unresolvable from file")
}

func TestScan_GoImportsResolveByDirSuffix(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"cmd/tool/main.go": "package main\n\nimport (\n\t\"fmt\"\n\t\"example.com/tool/internal/engine\"\n)\n\nfunc main() { fmt.Println(engine.Run()) }\n",
		"internal/engine/engine.go": "package engine\n\nfunc Run() string { return \"ok\" }\n",
	})

	snap, err := Scan(dir, Options{})
	require.NoError(t, err)

	assert.True(t, snap.HasImport("cmd/tool/main.go", "internal/engine/engine.go"))
	assert.False(t, snap.HasImport("internal/engine/engine.go", "cmd/tool/main.go"))
}

func TestScan_OversizeFileIndexedWithoutContent(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"big.go": "package big\n// " + string(make([]byte, 4096)) + "\n",
	})

	snap, err := Scan(dir, Options{MaxFileBytes: 100})
	require.NoError(t, err)

	f, ok := snap.File("big.go")
	require.True(t, ok)
	assert.Empty(t, f.Content)
	assert.True(t, snap.HasFile("big.go"))
}

func TestExtractImports_Python(t *testing.T) {
	imports := extractImports("python", "import os\nfrom pkg.mod import thing\nimport pkg.other\n")
	assert.ElementsMatch(t, []string{"os", "pkg.mod", "pkg.other"}, imports)
}

func TestScan_NonDirectoryRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Scan(path, Options{})
	assert.Error(t, err)
}
