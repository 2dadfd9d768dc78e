package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	mode    os.FileMode
	content string
}

func buildTree(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets", "js"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "js", "app.js"), []byte("console.log(1)"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.sh"), []byte("#!/bin/sh\nexit 0\n"), 0755))
	require.NoError(t, os.Symlink("assets/js/app.js", filepath.Join(dir, "app.js")))
	require.NoError(t, os.Symlink("../node_modules/pkg", filepath.Join(dir, "assets", "pkg")))

	return dir
}

func readArchive(t *testing.T, data []byte) map[string]entry {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	entries := make(map[string]entry)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()

		entries[f.Name] = entry{mode: f.Mode(), content: string(content)}
	}

	return entries
}

func TestDirectory_RoundTrip(t *testing.T) {
	dir := buildTree(t)

	for _, level := range []Level{LevelStore, LevelBest} {
		data, err := Directory(dir, level)
		require.NoError(t, err)

		entries := readArchive(t, data)
		assert.Len(t, entries, 5)

		assert.Equal(t, entry{mode: 0644, content: "<html></html>"}, entries["index.html"])
		assert.Equal(t, entry{mode: 0600, content: "console.log(1)"}, entries["assets/js/app.js"])
		assert.Equal(t, entry{mode: 0755, content: "#!/bin/sh\nexit 0\n"}, entries["server.sh"])
		assert.Equal(t, entry{mode: os.ModeSymlink | 0777, content: "assets/js/app.js"}, entries["app.js"])
		assert.Equal(t, entry{mode: os.ModeSymlink | 0777, content: "../node_modules/pkg"}, entries["assets/pkg"])
	}
}

func TestDirectory_Deterministic(t *testing.T) {
	dir := buildTree(t)

	first, err := Directory(dir, LevelBest)
	require.NoError(t, err)
	second, err := Directory(dir, LevelBest)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDirectory_CompressionLevels(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), bytes.Repeat([]byte("preview "), 4096), 0644))

	stored, err := Directory(dir, LevelStore)
	require.NoError(t, err)
	deflated, err := Directory(dir, LevelBest)
	require.NoError(t, err)

	assert.Less(t, len(deflated), len(stored))

	zr, err := zip.NewReader(bytes.NewReader(stored), int64(len(stored)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, zip.Store, zr.File[0].Method)
}

func TestDirectory_Errors(t *testing.T) {
	_, err := Directory(filepath.Join(t.TempDir(), "missing"), LevelBest)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = Directory(file, LevelBest)
	assert.Error(t, err)

	_, err = Directory(t.TempDir(), Level(12))
	assert.Error(t, err)
}

func TestStaged_KeepsTopLevelName(t *testing.T) {
	root := t.TempDir()
	build := filepath.Join(root, "dist")
	public := filepath.Join(root, "public")
	require.NoError(t, os.MkdirAll(build, 0755))
	require.NoError(t, os.MkdirAll(public, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(build, "index.html"), []byte("home"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(public, "favicon.ico"), []byte("ico"), 0644))

	data, err := Staged(build, map[string]string{
		"public":  public,
		"missing": filepath.Join(root, "nope"),
	}, LevelBest)
	require.NoError(t, err)

	entries := readArchive(t, data)
	assert.Equal(t, "home", entries["dist/index.html"].content)
	assert.Equal(t, "ico", entries["public/favicon.ico"].content)
	assert.Len(t, entries, 2)
}

func TestStaged_KeepsModesOfDirectory(t *testing.T) {
	build := filepath.Join(t.TempDir(), "dist")
	require.NoError(t, os.MkdirAll(build, 0755))
	for name, mode := range map[string]os.FileMode{"shared.sh": 0775, "notes.txt": 0666} {
		path := filepath.Join(build, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
		require.NoError(t, os.Chmod(path, mode))
	}

	direct, err := Directory(build, LevelBest)
	require.NoError(t, err)
	staged, err := Staged(build, nil, LevelBest)
	require.NoError(t, err)

	directEntries := readArchive(t, direct)
	stagedEntries := readArchive(t, staged)
	for _, name := range []string{"shared.sh", "notes.txt"} {
		assert.Equal(t, directEntries[name].mode, stagedEntries["dist/"+name].mode, name)
	}
	assert.Equal(t, os.FileMode(0775), stagedEntries["dist/shared.sh"].mode.Perm())
	assert.Equal(t, os.FileMode(0666), stagedEntries["dist/notes.txt"].mode.Perm())
}

func TestStaged_RejectsExtraNamedLikeBuildDir(t *testing.T) {
	root := t.TempDir()
	build := filepath.Join(root, "public")
	assets := filepath.Join(root, "static")
	require.NoError(t, os.MkdirAll(build, 0755))
	require.NoError(t, os.MkdirAll(assets, 0755))

	_, err := Staged(build, map[string]string{"public": assets}, LevelBest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides")

	_, err = Staged(build, map[string]string{"../escape": assets}, LevelBest)
	require.Error(t, err)
}
