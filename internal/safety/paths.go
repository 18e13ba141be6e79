// Package safety confines local document paths to a sandbox root.
package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathError is a policy violation with a machine-readable code.
type PathError struct {
	Code    string
	Message string
}

func (e *PathError) Error() string {
	return e.Code + ": " + e.Message
}

const (
	CodeOutsideRoot = "ERR_PATH_OUTSIDE_ROOT"
	CodeDenied      = "ERR_PATH_DENIED"
	CodeEmpty       = "ERR_PATH_EMPTY"
)

// ResolveRoot returns root as an absolute path with symlinks resolved where
// possible. An empty root means the working directory.
func ResolveRoot(root string) (string, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs(%s): %w", root, err)
	}
	// A root that does not exist yet stays as-is; the store creates it.
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		abs = r
	}
	return abs, nil
}

// ValidateRelPath resolves relPath against absRoot and returns an absolute path
// inside the root. It rejects empty and absolute inputs, parent traversal,
// symlink escapes, and anything under .git/ or .agent/.
func ValidateRelPath(absRoot, relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", &PathError{Code: CodeEmpty, Message: "document name is empty"}
	}
	if filepath.IsAbs(relPath) {
		return "", &PathError{Code: CodeOutsideRoot, Message: "absolute paths are not allowed"}
	}

	candidate := filepath.Join(absRoot, filepath.Clean(relPath))

	// Resolve the whole candidate if it exists, otherwise its parent, so a
	// symlinked parent directory cannot smuggle a write outside the root.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else if resolvedParent, err2 := filepath.EvalSymlinks(filepath.Dir(candidate)); err2 == nil {
		candidate = filepath.Join(resolvedParent, filepath.Base(candidate))
	}

	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", &PathError{Code: CodeOutsideRoot, Message: "path resolves outside the store root"}
	}

	relSlash := filepath.ToSlash(rel)
	for _, denied := range []string{".git", ".agent"} {
		if relSlash == denied || strings.HasPrefix(relSlash, denied+"/") {
			return "", &PathError{Code: CodeDenied, Message: "paths under " + denied + "/ are reserved"}
		}
	}
	return candidate, nil
}
