package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// layerPolicy lists what each layer of a context module may import besides
// the standard library. Entries starting with "/" are relative to the module.
type layerPolicy struct {
	allow      []string
	thirdParty bool
}

var policies = map[string]layerPolicy{
	"domain": {
		allow: []string{"/domain"},
	},
	"ports": {
		allow: []string{"/domain", "trustpoll/contracts"},
	},
	"application": {
		allow: []string{"/application", "/domain", "/ports", "trustpoll/contracts"},
	},
	"transport": {},
	"adapters": {
		allow: []string{
			"/application", "/domain", "/ports", "/transport",
			"trustpoll/contracts",
			"trustpoll/internal/platform/queue",
		},
		thirdParty: true,
	},
}

func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			if violations[i].Line == violations[j].Line {
				return violations[i].Import < violations[j].Import
			}
			return violations[i].Line < violations[j].Line
		}
		return violations[i].File < violations[j].File
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		parts := strings.Split(filepath.ToSlash(path), "/")
		// Files at the module root (module.go) are the wiring point and import freely.
		if len(parts) < 5 || parts[0] != "contexts" {
			return nil
		}
		source := sourceFile{
			path:         filepath.ToSlash(path),
			layer:        parts[3],
			subpackage:   parts[4],
			modulePrefix: fmt.Sprintf("trustpoll/contexts/%s/%s", parts[1], parts[2]),
		}
		violations = append(violations, validateFile(path, source)...)
		return nil
	})

	return violations
}

type sourceFile struct {
	path         string
	layer        string
	subpackage   string
	modulePrefix string
}

func validateFile(path string, source sourceFile) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: source.path, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		for _, rule := range validateImport(source, importPath) {
			violations = append(violations, violation{
				File:   source.path,
				Line:   line,
				Import: importPath,
				Rule:   rule,
			})
		}
	}
	return violations
}

// validateImport returns every rule importPath breaks for source.
func validateImport(source sourceFile, importPath string) []string {
	if isStdlib(importPath) {
		return nil
	}
	var rules []string

	if strings.HasPrefix(importPath, "trustpoll/contexts/") && !hasPrefix(importPath, source.modulePrefix) {
		rules = append(rules, "cross-module imports are forbidden")
	}

	policy, known := policies[source.layer]
	if !known {
		return append(rules, fmt.Sprintf("unknown layer %q", source.layer))
	}

	if hasPrefix(importPath, source.modulePrefix) {
		relative := strings.TrimPrefix(importPath, source.modulePrefix)
		target := strings.SplitN(strings.TrimPrefix(relative, "/"), "/", 3)
		if !isAllowed(importPath, resolve(policy.allow, source.modulePrefix)) {
			rules = append(rules, fmt.Sprintf("%s must not import %s", source.layer, target[0]))
		}
		if source.layer == "adapters" && target[0] == "adapters" && len(target) > 1 && target[1] != source.subpackage {
			rules = append(rules, "adapters must not import sibling adapters")
		}
		return rules
	}

	if strings.HasPrefix(importPath, "trustpoll/") {
		if !isAllowed(importPath, resolve(policy.allow, source.modulePrefix)) {
			rules = append(rules, fmt.Sprintf("%s must not import runtime infrastructure", source.layer))
		}
		return rules
	}

	if !policy.thirdParty {
		rules = append(rules, fmt.Sprintf("%s must stay free of third-party packages", source.layer))
	}
	return rules
}

func resolve(allow []string, modulePrefix string) []string {
	resolved := make([]string, 0, len(allow))
	for _, prefix := range allow {
		if strings.HasPrefix(prefix, "/") {
			prefix = modulePrefix + prefix
		}
		resolved = append(resolved, prefix)
	}
	return resolved
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isAllowed(importPath string, allowedPrefixes []string) bool {
	for _, p := range allowedPrefixes {
		if hasPrefix(importPath, p) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if strings.HasPrefix(importPath, "trustpoll/") {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
