package batch

import "strings"

// Rewrite returns a copy of req whose leading "$<token>" path segment is
// replaced by resourceID. RawURI is rewritten the same way when it ends with
// the original path. A request whose first segment is not exactly
// "$<token>" is returned unchanged.
func Rewrite(req Request, token, resourceID string) Request {
	lead := "/"
	path, rooted := strings.CutPrefix(req.Path, lead)
	if !rooted {
		lead = ""
	}
	rest, ok := strings.CutPrefix(path, "$"+token)
	if !ok || (rest != "" && rest[0] != '/') {
		return req
	}
	if rooted {
		resourceID = strings.TrimPrefix(resourceID, "/")
	}

	out := req.clone()
	out.Path = lead + resourceID + rest
	if req.RawURI != "" {
		out.RawURI = rewriteRawURI(req.RawURI, req.Path, out.Path)
	}
	return out
}

func rewriteRawURI(raw, oldPath, newPath string) string {
	base, query, hasQuery := strings.Cut(raw, "?")
	i := len(base) - len(oldPath)
	if i < 0 || base[i:] != oldPath {
		return raw
	}
	if i > 0 && base[i-1] != '/' && !strings.HasPrefix(oldPath, "/") {
		return raw
	}
	base = base[:i] + newPath
	if hasQuery {
		return base + "?" + query
	}
	return base
}
