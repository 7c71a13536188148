// Package guard implements the filesystem write restriction applied to tool
// invocations: a pure path guard deciding whether a target escapes the
// allowed directories, a best-effort extractor enumerating the paths a shell
// command may write to, and a hook builder composing both into a
// pre-execution veto for the runtime.
//
// The extractor is deliberately heuristic and is not a security boundary; it
// provides defense in depth, not a sandbox.
package guard

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveOutsideAllowed resolves path against cwd (expanding a leading ~
// against the home directory) and reports whether the result lies outside
// cwd and every entry of extra. The resolved absolute path is returned either
// way so callers can name it in denial messages.
//
// A path is allowed when it equals an allowed directory or sits below it;
// sibling directories sharing a name prefix (cwd "/a/project" vs
// "/a/project2") are rejected.
func ResolveOutsideAllowed(path, cwd string, extra []string) (string, bool) {
	resolved := expandHome(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cwd, resolved)
	}
	resolved = filepath.Clean(resolved)

	for _, dir := range append([]string{cwd}, extra...) {
		if dir == "" {
			continue
		}
		dir = filepath.Clean(expandHome(dir))
		if resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return resolved, false
		}
	}
	return resolved, true
}

// expandHome replaces a leading ~ with the current user's home directory.
// When the home directory cannot be determined the path is left untouched.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
