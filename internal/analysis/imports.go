package analysis

import (
	"path"
	"regexp"
	"strings"
)

var (
	goImportSingle = regexp.MustCompile(`(?m)^import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportBlock  = regexp.MustCompile(`(?ms)^import\s*\((.*?)\)`)
	goImportLine   = regexp.MustCompile(`(?m)^\s*(?:[\w\.]+\s+)?"([^"]+)"`)

	jsImport  = regexp.MustCompile(`(?m)^\s*import\s+[^'"]*?['"]([^'"]+)['"]`)
	jsExport  = regexp.MustCompile(`(?m)^\s*export\s+[^'"]*?\bfrom\s+['"]([^'"]+)['"]`)
	jsRequire = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)

	pyFromImport = regexp.MustCompile(`(?m)^\s*from\s+([\w\.]+)\s+import\b`)
	pyImport     = regexp.MustCompile(`(?m)^\s*import\s+([\w\.]+)`)
)

// extractImports pulls raw import specifiers from source content. Languages
// without a recognizer yield no imports, which the validator treats as
// "no flow facts known" rather than a failure.
func extractImports(lang, content string) []string {
	var specs []string
	switch lang {
	case "go":
		for _, m := range goImportSingle.FindAllStringSubmatch(content, -1) {
			specs = append(specs, m[1])
		}
		for _, block := range goImportBlock.FindAllStringSubmatch(content, -1) {
			for _, m := range goImportLine.FindAllStringSubmatch(block[1], -1) {
				specs = append(specs, m[1])
			}
		}
	case "typescript", "javascript":
		for _, re := range []*regexp.Regexp{jsImport, jsExport, jsRequire} {
			for _, m := range re.FindAllStringSubmatch(content, -1) {
				specs = append(specs, m[1])
			}
		}
	case "python":
		for _, m := range pyFromImport.FindAllStringSubmatch(content, -1) {
			specs = append(specs, m[1])
		}
		for _, m := range pyImport.FindAllStringSubmatch(content, -1) {
			specs = append(specs, m[1])
		}
	}
	return dedupe(specs)
}

// jsResolveSuffixes are tried in order when a JS/TS import omits the
// extension.
var jsResolveSuffixes = []string{
	"", ".ts", ".tsx", ".js", ".jsx", ".mjs",
	"/index.ts", "/index.tsx", "/index.js",
}

// resolveImports maps raw specifiers to repo-relative paths. Unresolvable
// specifiers (external packages, stdlib) are dropped: only intra-repo edges
// matter for claim validation.
func resolveImports(snap *Snapshot, f *File) []string {
	dir := path.Dir(f.Path)
	var resolved []string

	for _, spec := range f.Imports {
		switch f.Language {
		case "typescript", "javascript":
			if !strings.HasPrefix(spec, ".") {
				continue
			}
			joined := path.Clean(path.Join(dir, spec))
			for _, suffix := range jsResolveSuffixes {
				candidate := joined + suffix
				if _, ok := snap.files[candidate]; ok {
					resolved = append(resolved, candidate)
					break
				}
			}
		case "go":
			// Module-path imports resolve by directory suffix: an import
			// ending in "internal/foo" reaches files under that directory.
			if target := resolveGoPackageDir(snap, spec); target != "" {
				resolved = append(resolved, target)
			}
		case "python":
			rel := strings.ReplaceAll(spec, ".", "/")
			for _, candidate := range []string{rel + ".py", rel + "/__init__.py", path.Join(dir, rel+".py")} {
				candidate = path.Clean(candidate)
				if _, ok := snap.files[candidate]; ok {
					resolved = append(resolved, candidate)
					break
				}
			}
		}
	}
	return dedupe(resolved)
}

// resolveGoPackageDir finds the repo directory whose path is the longest
// suffix of the import path.
func resolveGoPackageDir(snap *Snapshot, spec string) string {
	dirs := make(map[string]bool)
	for _, p := range snap.paths {
		if strings.HasSuffix(p, ".go") {
			dirs[path.Dir(p)] = true
		}
	}

	best := ""
	for dir := range dirs {
		if dir == "." {
			continue
		}
		if spec == dir || strings.HasSuffix(spec, "/"+dir) {
			if len(dir) > len(best) {
				best = dir
			}
		}
	}
	return best
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
