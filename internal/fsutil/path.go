package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/iambrandonn/chaba/internal/errs"
)

// ValidatePath resolves candidate against base and guarantees the result
// cannot escape base. Relative candidates are joined onto base first.
//
// The primary check is purely lexical so it works for paths that do not exist
// yet. A secondary check resolves symlinks on the deepest existing ancestor
// that lies inside base and rejects it if the resolution lands outside.
func ValidatePath(candidate, base string) (string, error) {
	if strings.TrimSpace(candidate) == "" {
		return "", errs.Validationf("empty path")
	}
	if strings.TrimSpace(base) == "" {
		return "", errs.Validationf("empty base directory")
	}

	for _, part := range strings.FieldsFunc(candidate, isSeparator) {
		if part == ".." {
			return "", errs.Validationf("path contains parent directory traversal: %s", candidate)
		}
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", errs.Validationf("cannot resolve base directory %s: %v", base, err)
	}
	absBase = filepath.Clean(absBase)

	target := candidate
	if !filepath.IsAbs(target) {
		target = filepath.Join(absBase, target)
	}
	target = filepath.Clean(target)

	if !within(absBase, target) {
		return "", errs.Validationf("path %s escapes base directory %s", target, absBase)
	}

	if err := checkExistingAncestor(absBase, target); err != nil {
		return "", err
	}

	return target, nil
}

// checkExistingAncestor guards against a symlink inside base pointing elsewhere.
func checkExistingAncestor(base, target string) error {
	ancestor := target
	for {
		if _, err := os.Lstat(ancestor); err == nil {
			break
		}
		if ancestor == base {
			return nil
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return nil
		}
		ancestor = parent
	}

	resolvedBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return errs.Validationf("cannot resolve base directory %s: %v", base, err)
	}
	resolved, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		return errs.Validationf("cannot resolve %s: %v", ancestor, err)
	}
	if !within(resolvedBase, resolved) {
		return errs.Validationf("symlink %s resolves outside base directory %s", ancestor, base)
	}
	return nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isSeparator(r rune) bool {
	return r == '/' || r == filepath.Separator
}
