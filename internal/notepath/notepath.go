// Package notepath implements the relative path conventions used for every
// folder and note in a repository: "/"-separated, no leading or trailing
// separator, and "" for the repository root.
package notepath

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/starford/gitnote/internal/apperr"
)

// Separator is the only separator a relative path may contain.
const Separator = "/"

const reservedChars = "/\\`?*<>|\":\n\r\t\x00\x0c"

// Normalize strips at most one leading and one trailing separator.
func Normalize(raw string) string {
	if raw == Separator {
		return ""
	}
	raw = strings.TrimPrefix(raw, Separator)
	return strings.TrimSuffix(raw, Separator)
}

// Check reports ErrInvalidPath when p starts or ends with a separator.
func Check(p string) error {
	if strings.HasPrefix(p, Separator) || strings.HasSuffix(p, Separator) {
		return fmt.Errorf("%w: %q starts or ends with %q", apperr.ErrInvalidPath, p, Separator)
	}
	return nil
}

// Parent returns the parent path of p. The root has no parent, in which
// case ok is false. A top-level entry has the root ("") as parent.
func Parent(p string) (parent string, ok bool) {
	if p == "" {
		return "", false
	}
	i := strings.LastIndex(p, Separator)
	if i < 0 {
		return "", true
	}
	return p[:i], true
}

// Leaf returns the part of p after the last separator.
func Leaf(p string) string {
	return p[strings.LastIndex(p, Separator)+1:]
}

// Join appends leaf to parent. Joining onto the root yields leaf itself.
func Join(parent, leaf string) string {
	if parent == "" {
		return leaf
	}
	return parent + Separator + leaf
}

// IsWithin reports whether p is dir itself or lies somewhere below it.
func IsWithin(p, dir string) bool {
	if dir == "" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+Separator)
}

// TrimName removes trailing whitespace from a user supplied name.
func TrimName(name string) string {
	return strings.TrimRightFunc(name, unicode.IsSpace)
}

// ValidateName checks a single folder or note name (not a full path).
// Blank names, reserved glyphs and control characters are rejected.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is blank", apperr.ErrInvalidPath)
	}
	for _, r := range name {
		if strings.ContainsRune(reservedChars, r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: name %q contains reserved character %q", apperr.ErrInvalidPath, name, r)
		}
	}
	return nil
}

// ValidateDir checks every segment of a folder path. Segments must be valid
// names and must not be hidden, since a rebuild never descends into dot
// directories. The root ("") is valid.
func ValidateDir(dir string) error {
	if dir == "" {
		return nil
	}
	for seg := range strings.SplitSeq(dir, Separator) {
		if err := ValidateName(seg); err != nil {
			return err
		}
		if strings.HasPrefix(seg, ".") {
			return fmt.Errorf("%w: folder %q is hidden", apperr.ErrInvalidPath, seg)
		}
	}
	return nil
}
