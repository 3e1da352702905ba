package shares

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/seekd/seekd/pkg/seekerr"
)

// Root is one declared share root.
type Root struct {
	// Alias is the first path segment peers see for files under this root.
	Alias string

	// Path is the absolute local directory.
	Path string

	// Hidden roots are omitted from browse responses and peer search
	// results but stay searchable by the operator.
	Hidden bool
}

// ParseRoot parses one root specification of the form
//
//	[alias]/absolute/path
//
// with an optional leading '!' or '-' marking the root hidden. The alias
// defaults to the base name of the path.
func ParseRoot(spec string) (Root, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return Root{}, seekerr.New(seekerr.KindInvalidArgument, "empty share root")
	}

	var root Root
	if s[0] == '!' || s[0] == '-' {
		root.Hidden = true
		s = s[1:]
	}

	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return Root{}, seekerr.Newf(seekerr.KindInvalidArgument, "unterminated alias in share root %q", spec)
		}
		root.Alias = strings.TrimSpace(s[1:end])
		s = s[end+1:]
	}

	if !filepath.IsAbs(s) {
		return Root{}, seekerr.Newf(seekerr.KindInvalidArgument, "share root %q is not an absolute path", spec)
	}
	root.Path = filepath.Clean(s)

	if root.Alias == "" {
		root.Alias = filepath.Base(root.Path)
	}
	if strings.ContainsAny(root.Alias, `\/`) {
		return Root{}, seekerr.Newf(seekerr.KindInvalidArgument, "share alias %q contains a path separator", root.Alias)
	}

	return root, nil
}

// ParseRoots parses and cross-validates the configured root list: aliases
// must be unique and no two roots may point at the same absolute path.
func ParseRoots(specs []string) ([]Root, error) {
	roots := make([]Root, 0, len(specs))
	byAlias := make(map[string]string, len(specs))
	byPath := make(map[string]string, len(specs))

	for _, spec := range specs {
		root, err := ParseRoot(spec)
		if err != nil {
			return nil, err
		}

		aliasKey := strings.ToLower(root.Alias)
		if prior, taken := byAlias[aliasKey]; taken {
			return nil, seekerr.Newf(seekerr.KindInvalidArgument,
				"share alias %q used by both %q and %q", root.Alias, prior, spec)
		}
		if prior, taken := byPath[root.Path]; taken {
			return nil, seekerr.Newf(seekerr.KindInvalidArgument,
				"share path %s aliased by both %q and %q", root.Path, prior, spec)
		}
		byAlias[aliasKey] = spec
		byPath[root.Path] = spec
		roots = append(roots, root)
	}

	return roots, nil
}

// String renders the root back into specification form.
func (r Root) String() string {
	var b strings.Builder
	if r.Hidden {
		b.WriteByte('!')
	}
	fmt.Fprintf(&b, "[%s]%s", r.Alias, r.Path)
	return b.String()
}

// toOverlay converts a host-form path relative to the root into the overlay
// wire form: alias first, backslash separators.
func (r Root) toOverlay(rel string) string {
	rel = filepath.ToSlash(rel)
	parts := append([]string{r.Alias}, strings.Split(rel, "/")...)
	return strings.Join(parts, `\`)
}

// fromOverlay converts an overlay path under this root back into the host
// absolute path. The first segment must equal the alias.
func (r Root) fromOverlay(overlayPath string) (string, bool) {
	parts := strings.Split(overlayPath, `\`)
	if len(parts) == 0 || !strings.EqualFold(parts[0], r.Alias) {
		return "", false
	}
	return filepath.Join(append([]string{r.Path}, parts[1:]...)...), true
}
