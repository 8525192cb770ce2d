// Package bpath canonicalizes slash-separated paths: it collapses "."
// and ".." components and repeated slashes the same way
// fs_path_lookup walks a path one component at a
// time, without ever touching the filesystem itself. Canonicalize is
// purely lexical — it does not know whether ".." crosses a mountpoint
// or a symlink, because fs resolves those during the actual walk.
package bpath

import "github.com/aglotoff/codename-argentum/src/ustr"

// Canonicalize rewrites an absolute path by removing "." components,
// collapsing ".." against the preceding component, and dropping empty
// components produced by repeated slashes. The result is always
// absolute and never ends in '/' unless it is the root itself.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	comps := split(p)
	out := make([]ustr.Ustr, 0, len(comps))
	for _, c := range comps {
		switch {
		case len(c) == 0:
		case c.Isdot():
		case c.Isdotdot():
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return ustr.MkUstrRoot()
	}
	ret := make(ustr.Ustr, 0, len(p))
	for _, c := range out {
		ret = append(ret, '/')
		ret = append(ret, c...)
	}
	return ret
}

// split breaks p into its slash-separated components, dropping the
// leading "/" of an absolute path.
func split(p ustr.Ustr) []ustr.Ustr {
	var comps []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				comps = append(comps, p[start:i])
			}
			start = i + 1
		}
	}
	return comps
}
