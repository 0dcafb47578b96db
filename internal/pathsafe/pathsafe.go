// Package pathsafe canonicalizes repository-relative paths the way the
// data model requires: forward-slash separated, no leading "./", no
// trailing "/", never escaping the repository root.
package pathsafe

import (
	"fmt"
	"strings"

	"github.com/EffortlessMetrics/buildfix/internal/toolerr"
)

// Canonicalize rejects any path that is not already repository-relative
// and in normal form, rather than silently rewriting it — findings and
// operations must agree on one shape without a round trip through the
// filesystem.
func Canonicalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", toolerr.ErrInvalidPath)
	}
	if strings.Contains(path, "\\") {
		return "", fmt.Errorf("%w: %q contains a backslash", toolerr.ErrInvalidPath, path)
	}
	if strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: %q is not repository-relative", toolerr.ErrInvalidPath, path)
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return "", fmt.Errorf("%w: %q has a leading \"./\"", toolerr.ErrInvalidPath, path)
	}
	if strings.HasSuffix(path, "/") {
		return "", fmt.Errorf("%w: %q has a trailing \"/\"", toolerr.ErrInvalidPath, path)
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: %q contains an invalid segment %q", toolerr.ErrInvalidPath, path, segment)
		}
	}
	return path, nil
}

// IsCanonical reports whether path already satisfies Canonicalize
// without constructing an error.
func IsCanonical(path string) bool {
	_, err := Canonicalize(path)
	return err == nil
}
