// Package archive turns a directory tree into a zip artifact that keeps
// file modes and symbolic links intact.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/dosanma1/zonke-cli/pkg/xos"
)

// Level is a deflate compression level. LevelStore disables compression.
type Level int

const (
	LevelStore   Level = 0
	LevelDefault Level = flate.DefaultCompression
	LevelBest    Level = flate.BestCompression
)

// symlinkMode is lrwxrwxrwx.
const symlinkMode = os.ModeSymlink | 0777

// epoch is stamped on every entry so identical trees produce identical bytes.
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Directory archives every file below dir. Entry names are relative to dir.
// Symbolic links are stored as their target string and never followed.
// On any error no archive is returned.
func Directory(dir string, level Level) ([]byte, error) {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive root %s is not a directory", dir)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if level != LevelStore {
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, int(level))
		})
	}

	// WalkDir visits entries in lexical order, which keeps the output stable.
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		return addEntry(zw, path, filepath.ToSlash(rel), d, level)
	})
	if err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to archive %s: %w", dir, err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

// Staged copies dir into a temporary directory under its own base name,
// together with any extra directories keyed by their name in the archive,
// and archives the staging root. The staging directory is always removed.
func Staged(dir string, extras map[string]string, level Level) ([]byte, error) {
	staging, err := os.MkdirTemp("", "zip-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(abs)
	for name := range extras {
		if name == base {
			return nil, fmt.Errorf("extra directory %q collides with the archived directory name", name)
		}
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return nil, fmt.Errorf("invalid extra directory name %q", name)
		}
	}

	if err := xos.CopyTree(abs, filepath.Join(staging, base)); err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", dir, err)
	}

	for name, extra := range extras {
		if !xos.Exists(extra) {
			continue
		}
		if err := xos.CopyTree(extra, filepath.Join(staging, name)); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", extra, err)
		}
	}

	return Directory(staging, level)
}

func addEntry(zw *zip.Writer, path, name string, d fs.DirEntry, level Level) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: epoch,
	}
	if level != LevelStore {
		header.Method = zip.Deflate
	}

	var content []byte
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		content = []byte(target)
		header.SetMode(symlinkMode)

	case info.Mode().IsRegular():
		content, err = os.ReadFile(path)
		if err != nil {
			return err
		}
		header.SetMode(info.Mode())

	default:
		return fmt.Errorf("unsupported file type %s at %s", info.Mode().Type(), path)
	}

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}
