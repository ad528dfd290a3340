// Package relpath manipulates working-copy relative paths.
//
// A relpath is a slash-separated path with no leading or trailing slash and
// no "." or ".." components. The empty string is the working-copy root.
package relpath

import (
	"fmt"
	"path"
	"strings"
)

// Join appends components to base, skipping empty components.
func Join(base string, components ...string) string {
	out := base
	for _, c := range components {
		if c == "" {
			continue
		}
		if out == "" {
			out = c
		} else {
			out = out + "/" + c
		}
	}
	return out
}

// Dirname returns the parent of p. The parent of a top-level path is "".
func Dirname(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

// Basename returns the last component of p.
func Basename(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Depth returns the number of components in p. The root has depth 0.
func Depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// IsAncestor reports whether ancestor is p or an ancestor of p.
func IsAncestor(ancestor, p string) bool {
	if ancestor == "" {
		return true
	}
	return p == ancestor || strings.HasPrefix(p, ancestor+"/")
}

// IsStrictAncestor reports whether ancestor is a proper ancestor of p.
func IsStrictAncestor(ancestor, p string) bool {
	return ancestor != p && IsAncestor(ancestor, p)
}

// SkipAncestor returns p relative to ancestor. ok is false when ancestor
// does not contain p.
func SkipAncestor(ancestor, p string) (rest string, ok bool) {
	if !IsAncestor(ancestor, p) {
		return "", false
	}
	if ancestor == "" {
		return p, true
	}
	if p == ancestor {
		return "", true
	}
	return p[len(ancestor)+1:], true
}

// Prefix returns the ancestor of p made of its first n components.
func Prefix(p string, n int) string {
	if n <= 0 {
		return ""
	}
	idx := 0
	for i := 0; i < n; i++ {
		next := strings.IndexByte(p[idx:], '/')
		if next < 0 {
			return p
		}
		if i == n-1 {
			return p[:idx+next]
		}
		idx += next + 1
	}
	return p
}

// Rebase moves p from under oldRoot to under newRoot. p must be oldRoot or
// one of its descendants.
func Rebase(p, oldRoot, newRoot string) string {
	rest, ok := SkipAncestor(oldRoot, p)
	if !ok {
		return p
	}
	return Join(newRoot, rest)
}

// Validate checks that p is a canonical relpath.
func Validate(p string) error {
	if p == "" {
		return nil
	}
	if strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return fmt.Errorf("relpath %q must not start or end with '/'", p)
	}
	for _, c := range strings.Split(p, "/") {
		switch c {
		case "", ".", "..":
			return fmt.Errorf("relpath %q is not canonical", p)
		}
	}
	return nil
}

// Canonicalize cleans a slash-separated path into relpath form.
func Canonicalize(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// CanonicalURL strips trailing slashes and resolves dot segments of a
// repository root URL.
func CanonicalURL(u string) string {
	scheme, rest, found := strings.Cut(u, "://")
	if !found {
		return strings.TrimRight(u, "/")
	}
	host, p, _ := strings.Cut(rest, "/")
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" {
		return scheme + "://" + host
	}
	return scheme + "://" + host + "/" + cleaned
}
