package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func entryNames(t *testing.T, archivePath string) []string {
	t.Helper()
	r, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestBuild_CreatesArchive(t *testing.T) {
	dir := t.TempDir()
	b, err := NewZipBuilder(dir)
	require.NoError(t, err)

	a := writeFile(t, filepath.Join(dir, "src", "0000.pdf"), "pdf-a")
	c := writeFile(t, filepath.Join(dir, "src", "0001.pdf"), "pdf-b")
	dest := filepath.Join(dir, "bundle.zip")

	err = b.Build(context.Background(), dest, []string{a, c}, Options{Flatten: true})
	require.NoError(t, err)

	assert.FileExists(t, dest)
	assert.ElementsMatch(t, []string{"0000.pdf", "0001.pdf"}, entryNames(t, dest))
}

func TestBuild_ExistingDestinationIsUntouched(t *testing.T) {
	dir := t.TempDir()
	b, err := NewZipBuilder(dir)
	require.NoError(t, err)

	src := writeFile(t, filepath.Join(dir, "src", "cert.pdf"), "pdf")
	dest := filepath.Join(dir, "bundle.zip")

	require.NoError(t, b.Build(context.Background(), dest, []string{src}, Options{}))
	before, err := os.ReadFile(dest)
	require.NoError(t, err)

	// Second call is the idempotency short-circuit.
	err = b.Build(context.Background(), dest, []string{src}, Options{})
	assert.ErrorIs(t, err, ErrArchiveExists)

	after, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing archive bytes must not change")
}

func TestBuild_NoInputsNoArtifact(t *testing.T) {
	dir := t.TempDir()
	b, err := NewZipBuilder(dir)
	require.NoError(t, err)

	dest := filepath.Join(dir, "bundle.zip")

	err = b.Build(context.Background(), dest, nil, Options{})
	assert.ErrorIs(t, err, ErrNoValidFiles)
	assert.NoFileExists(t, dest)

	// Inputs that do not exist on disk count for nothing.
	err = b.Build(context.Background(), dest, []string{filepath.Join(dir, "ghost.pdf")}, Options{})
	assert.ErrorIs(t, err, ErrNoValidFiles)
	assert.NoFileExists(t, dest)
}

func TestBuild_MissingInputsAreFiltered(t *testing.T) {
	dir := t.TempDir()
	b, err := NewZipBuilder(dir)
	require.NoError(t, err)

	real := writeFile(t, filepath.Join(dir, "src", "cert.pdf"), "pdf")
	dest := filepath.Join(dir, "bundle.zip")

	err = b.Build(context.Background(), dest, []string{real, filepath.Join(dir, "ghost.pdf")}, Options{Flatten: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"cert.pdf"}, entryNames(t, dest))
}

func TestBuild_FlattenCollisionLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	b, err := NewZipBuilder(dir)
	require.NoError(t, err)

	first := writeFile(t, filepath.Join(dir, "a", "cert.pdf"), "from-a")
	second := writeFile(t, filepath.Join(dir, "b", "cert.pdf"), "from-b")
	dest := filepath.Join(dir, "bundle.zip")

	err = b.Build(context.Background(), dest, []string{first, second}, Options{Flatten: true})
	require.NoError(t, err)

	r, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 1, "colliding names collapse to one entry")
	assert.Equal(t, "cert.pdf", r.File[0].Name)

	rc, err := r.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	assert.Equal(t, "from-b", string(buf[:n]))
}

func TestBuild_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	b, err := NewZipBuilder(dir)
	require.NoError(t, err)

	src := writeFile(t, filepath.Join(dir, "src", "cert.pdf"), "pdf")
	dest := filepath.Join(dir, "bundle.zip")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = b.Build(ctx, dest, []string{src}, Options{})
	require.Error(t, err)
	assert.NoFileExists(t, dest, "canceled build must not leave a partial artifact")
}

func TestNewZipBuilder_UnwritableRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.MkdirAll(locked, 0o500))

	_, err := NewZipBuilder(locked)
	assert.Error(t, err)
}
