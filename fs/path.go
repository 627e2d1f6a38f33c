package fs

import "bekkernel/errs"
import "bekkernel/kstr"

// Resolve splits path on '/', starting from root if the path is absolute or
// from cwd otherwise, performing Lookup per component. "." is skipped; ".."
// follows the parent pointer. parentOut, if non-nil, receives the parent of
// the final component (used by operations like rename/unlink/create that
// need both the entry and its containing directory).
func Resolve(root, cwd Entry, path kstr.Str, parentOut *Entry) (Entry, errs.Err_t) {
	cur := cwd
	if path.IsAbsolute() {
		cur = root
	}
	if cur == nil {
		return nil, errs.EINVAL
	}

	components := kstr.Split(path)
	if len(components) == 0 {
		if parentOut != nil {
			*parentOut = cur.Parent()
		}
		return cur, errs.ESUCCESS
	}

	var parent Entry
	for i, c := range components {
		if c.Isdot() {
			parent = cur
			continue
		}
		if c.Isdotdot() {
			if p := cur.Parent(); p != nil {
				parent = p
				cur = p
			}
			continue
		}
		next, err := cur.Lookup(c)
		if !err.Ok() {
			if i == len(components)-1 && parentOut != nil {
				*parentOut = cur
			}
			return nil, err
		}
		parent = cur
		cur = next
	}
	if parentOut != nil {
		*parentOut = parent
	}
	return cur, errs.ESUCCESS
}
