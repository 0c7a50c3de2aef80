package validator

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrPathOutsideAllowedRoot covers both resolution failures and paths that
	// escape every configured root.
	ErrPathOutsideAllowedRoot = errors.New("path outside allowed root")
	// ErrInvalidFilename is returned when the file stem is not a hex or UUID token.
	ErrInvalidFilename = errors.New("invalid filename")
)

var (
	stemPattern = regexp.MustCompile(`^[0-9a-fA-F-]{1,64}$`)
	hexDigit    = regexp.MustCompile(`[0-9a-fA-F]`)
)

// PathValidator checks that on-disk paths stay inside a fixed set of roots.
type PathValidator struct {
	roots []string
}

// NewPathValidator canonicalizes every root once. Roots must already exist.
func NewPathValidator(roots ...string) (*PathValidator, error) {
	if len(roots) == 0 {
		return nil, errors.New("validator: at least one allowed root is required")
	}

	canon := make([]string, 0, len(roots))
	for _, root := range roots {
		resolved, err := canonicalize(root)
		if err != nil {
			return nil, fmt.Errorf("validator: resolve root %q: %w", root, err)
		}
		canon = append(canon, resolved)
	}
	return &PathValidator{roots: canon}, nil
}

// Roots returns the canonical roots.
func (v *PathValidator) Roots() []string {
	out := make([]string, len(v.roots))
	copy(out, v.roots)
	return out
}

// Validate resolves path and returns its canonical form when it lives under
// an allowed root and its stem is a hex or UUID token. It fails closed.
func (v *PathValidator) Validate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathOutsideAllowedRoot)
	}

	resolved, err := canonicalize(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathOutsideAllowedRoot, err)
	}

	if !v.within(resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideAllowedRoot, path)
	}

	if !validStem(filepath.Base(resolved)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filepath.Base(resolved))
	}

	return resolved, nil
}

// ValidateTarget is Validate for a file that does not exist yet: the parent
// directory is resolved instead of the file itself.
func (v *PathValidator) ValidateTarget(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathOutsideAllowedRoot)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathOutsideAllowedRoot, err)
	}
	dir, err := canonicalize(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathOutsideAllowedRoot, err)
	}

	resolved := filepath.Join(dir, filepath.Base(abs))
	if !v.within(resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideAllowedRoot, path)
	}
	if !validStem(filepath.Base(resolved)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filepath.Base(resolved))
	}
	return resolved, nil
}

func (v *PathValidator) within(resolved string) bool {
	for _, root := range v.roots {
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if filepath.IsAbs(rel) {
			continue
		}
		return true
	}
	return false
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// validStem accepts "<hex-or-uuid>" optionally followed by one extension.
func validStem(name string) bool {
	stem := name
	if ext := filepath.Ext(name); ext != "" {
		stem = strings.TrimSuffix(name, ext)
	}
	return stemPattern.MatchString(stem) && hexDigit.MatchString(stem)
}
