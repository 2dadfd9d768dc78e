//go:build !windows
// +build !windows

// Package xos provides cross-platform atomic file operations.
// It uses atomic rename operations to prevent file corruption on crashes.
package xos

import (
	"os"

	"github.com/google/renameio/v2"
)

// WriteFile writes data to the named file atomically using rename.
// If the file does not exist, WriteFile creates it with permissions perm;
// otherwise WriteFile replaces it in a single rename.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(filename, data, perm)
}

// WriteFileMode is like WriteFile but sets perm exactly, without the
// process umask.
func WriteFileMode(filename string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(filename, data, perm, renameio.IgnoreUmask())
}

// Symlink creates a symbolic link atomically.
func Symlink(oldname, newname string) error {
	return renameio.Symlink(oldname, newname)
}
