package pool

import "path/filepath"

// canonicalise resolves path to an absolute, symlink-free key so that two
// callers reaching the same file through different spellings land on the
// same handle table entry.
//
// If the path does not exist yet (the common case for request_new creating
// a brand new file), EvalSymlinks fails; fall back to the absolute form of
// the parent directory joined with the file name so creation paths still
// canonicalise deterministically.
func canonicalise(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", newErr(KindIO, path, "resolve absolute path", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}

	dir := filepath.Dir(abs)
	resolvedDir, dirErr := filepath.EvalSymlinks(dir)
	if dirErr != nil {
		// Neither the file nor its parent exist yet; the absolute path is
		// the best canonical form available.
		return abs, nil
	}
	return filepath.Join(resolvedDir, filepath.Base(abs)), nil
}
