// Package archive assembles certificate files into per-order zip artifacts.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"

	"certflow/pkg/logger"
)

// Sentinel conditions of Build.
var (
	// ErrArchiveExists is the idempotency short-circuit: the destination
	// already exists and overwrite was not requested. Not a true failure.
	ErrArchiveExists = errors.New("archive already exists")

	// ErrNoValidFiles means no input file exists on disk; no artifact is
	// created.
	ErrNoValidFiles = errors.New("no valid files to archive")
)

// Options controls a single Build call.
type Options struct {
	// Overwrite replaces an existing destination instead of failing.
	Overwrite bool

	// Flatten stores entries under their base filename only. Identically
	// named inputs from different directories collide last-write-wins
	// inside the archive; a documented, lossy limitation.
	Flatten bool
}

// Builder is the archive capability. Absence of zip capability is a
// construction-time configuration error, not a per-call branch.
type Builder interface {
	Build(ctx context.Context, destination string, files []string, opts Options) error
}

// ZipBuilder writes zip artifacts with klauspost deflate.
type ZipBuilder struct {
	level int
}

// Ensure compile-time interface compliance.
var _ Builder = (*ZipBuilder)(nil)

// NewZipBuilder verifies the destination root exists and is writable,
// then returns a builder. destRoot is created if missing.
func NewZipBuilder(destRoot string) (*ZipBuilder, error) {
	if destRoot == "" {
		return nil, fmt.Errorf("archive destination root is required")
	}
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create archive destination root: %w", err)
	}

	// Write probe: fail at construction, not mid-order.
	probe, err := os.CreateTemp(destRoot, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("archive destination root not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return &ZipBuilder{level: flate.BestSpeed}, nil
}

// Build assembles the existing input files into a zip at destination.
//
// The destination is written atomically: entries go to a temporary file
// which is renamed into place only on success, so a failed build leaves
// no partial artifact. Success iff the destination exists afterwards.
func (b *ZipBuilder) Build(ctx context.Context, destination string, files []string, opts Options) error {
	if _, err := os.Stat(destination); err == nil && !opts.Overwrite {
		return ErrArchiveExists
	}

	var valid []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			valid = append(valid, f)
		} else {
			logger.Warn(ctx, "skipping missing archive input", "file", f)
		}
	}
	if len(valid) == 0 {
		return ErrNoValidFiles
	}

	tmp, err := os.CreateTemp(filepath.Dir(destination), ".zip-*")
	if err != nil {
		return fmt.Errorf("create archive temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := b.writeZip(ctx, tmp, valid, opts); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive temp file: %w", err)
	}

	if err := os.Rename(tmpName, destination); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}

	// Postcondition: success iff the destination file exists.
	if _, err := os.Stat(destination); err != nil {
		return fmt.Errorf("archive missing after build: %w", err)
	}

	logger.Info(ctx, "archive built",
		"destination", destination,
		"files", len(valid),
		"flatten", opts.Flatten,
	)
	return nil
}

func (b *ZipBuilder) writeZip(ctx context.Context, w io.Writer, files []string, opts Options) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, b.level)
	})

	// Colliding entry names keep only the last source (lossy, documented).
	names := make([]string, 0, len(files))
	byName := make(map[string]string, len(files))
	for _, f := range files {
		name := entryName(f, opts.Flatten)
		if _, seen := byName[name]; !seen {
			names = append(names, name)
		}
		byName[name] = f
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return fmt.Errorf("archive build canceled: %w", err)
		}
		if err := addEntry(zw, name, byName[name]); err != nil {
			_ = zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func addEntry(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

func entryName(path string, flatten bool) string {
	if flatten {
		return filepath.Base(path)
	}
	name := filepath.ToSlash(path)
	name = strings.TrimPrefix(name, "/")
	return name
}
