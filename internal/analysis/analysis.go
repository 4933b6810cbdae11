// Package analysis builds the ground-truth fact base for a repository
// snapshot: the set of known source files, their declared imports, and the
// top-level module layout. Model claims are validated against these facts.
package analysis

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// File is one source file in the snapshot.
type File struct {
	// Path is repo-relative with forward slashes.
	Path     string
	Language string
	Size     int64
	Lines    int
	// Content is empty for files over the size cap; they still count as
	// known files for validation.
	Content string
	// Imports holds raw import specifiers as written in the source.
	Imports []string
	// ResolvedImports holds repo-relative paths the specifiers resolve to.
	ResolvedImports []string
}

// Module is a top-level directory grouping of source files.
type Module struct {
	Name  string
	Path  string
	Files []string
}

// Snapshot is the immutable fact base for one run.
type Snapshot struct {
	Root   string
	Commit string
	Branch string

	files map[string]*File
	paths []string
}

// Options configures a scan.
type Options struct {
	IgnoreGlobs  []string
	MaxFileBytes int64
}

// Extensions recognized as source files, mapped to a language label.
var sourceExtensions = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".py":   "python",
	".rb":   "ruby",
	".rs":   "rust",
	".java": "java",
	".kt":   "kotlin",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".sh":   "shell",
}

// Scan walks root and builds the fact base. Files matching any ignore glob
// are excluded; files over MaxFileBytes are indexed without content.
func Scan(root string, opts Options) (*Snapshot, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	snap := &Snapshot{
		Root:  root,
		files: make(map[string]*File),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if ignored(rel+"/", opts.IgnoreGlobs) || strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if ignored(rel, opts.IgnoreGlobs) {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(rel))
		lang, ok := sourceExtensions[ext]
		if !ok {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			return statErr
		}

		file := &File{
			Path:     rel,
			Language: lang,
			Size:     fi.Size(),
		}
		if opts.MaxFileBytes == 0 || fi.Size() <= opts.MaxFileBytes {
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				return readErr
			}
			file.Content = string(content)
			file.Lines = strings.Count(file.Content, "\n") + 1
			file.Imports = extractImports(lang, file.Content)
		}
		snap.files[rel] = file
		snap.paths = append(snap.paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(snap.paths)
	for _, f := range snap.files {
		f.ResolvedImports = resolveImports(snap, f)
	}
	snap.Commit, snap.Branch = gitInfo(root)

	return snap, nil
}

func ignored(rel string, globs []string) bool {
	for _, glob := range globs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

// Paths returns all known file paths, sorted.
func (s *Snapshot) Paths() []string {
	return s.paths
}

// File returns the file record for a repo-relative path.
func (s *Snapshot) File(path string) (*File, bool) {
	f, ok := s.files[path]
	return f, ok
}

// HasFile reports whether a claimed path refers to a known file. Claims are
// matched exactly first, then by path suffix so "src/app.ts" matches a claim
// of "app.ts" rooted one level deeper than the model assumed.
func (s *Snapshot) HasFile(path string) bool {
	return s.Resolve(path) != ""
}

// Resolve maps a claimed path to the canonical snapshot path, or "" when the
// claim matches nothing.
func (s *Snapshot) Resolve(path string) string {
	clean := strings.TrimPrefix(filepath.ToSlash(path), "./")
	if _, ok := s.files[clean]; ok {
		return clean
	}
	for _, known := range s.paths {
		if strings.HasSuffix(known, "/"+clean) {
			return known
		}
	}
	return ""
}

// HasImport reports whether the from file's declared import set reaches the
// to path. Matching is tolerant: an import of a directory reaches every file
// in that directory.
func (s *Snapshot) HasImport(from, to string) bool {
	fromPath := s.Resolve(from)
	if fromPath == "" {
		return false
	}
	toPath := s.Resolve(to)
	if toPath == "" {
		return false
	}

	f := s.files[fromPath]
	for _, imp := range f.ResolvedImports {
		if imp == toPath {
			return true
		}
		if strings.HasPrefix(toPath, imp+"/") {
			return true
		}
	}
	return false
}

// Modules derives the top-level module layout: every top-level directory
// containing at least one source file becomes a module. Top-level files are
// grouped under a synthetic "root" module.
func (s *Snapshot) Modules() []Module {
	byDir := make(map[string][]string)
	for _, path := range s.paths {
		top := "root"
		if idx := strings.Index(path, "/"); idx > 0 {
			top = path[:idx]
		}
		byDir[top] = append(byDir[top], path)
	}

	names := make([]string, 0, len(byDir))
	for name := range byDir {
		names = append(names, name)
	}
	sort.Strings(names)

	modules := make([]Module, 0, len(names))
	for _, name := range names {
		path := name
		if name == "root" {
			path = "."
		}
		modules = append(modules, Module{Name: name, Path: path, Files: byDir[name]})
	}
	return modules
}
