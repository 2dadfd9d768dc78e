package xos

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFile copies a regular file, keeping the source permission bits.
// The destination is replaced atomically.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	return WriteFileMode(dst, content, info.Mode().Perm())
}

// CopyTree recursively copies src into dst. Symbolic links are recreated
// with their original target instead of being followed.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			return Symlink(link, target)

		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm()|0700)

		case d.Type().IsRegular():
			return CopyFile(path, target)

		default:
			return fmt.Errorf("unsupported file type at %s", path)
		}
	})
}

// Exists reports whether path exists. Errors other than "not exist" count
// as existing so callers surface them on the next access.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}
