package ingest

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrValidation classifies malformed archives, unparseable manifests, and
// invalid scenario names. The API layer maps it to a 4xx for non-streaming
// surfaces; on the upload stream it becomes an error event.
var ErrValidation = errors.New("validation")

const (
	// maxArchiveFiles bounds how many entries one archive may contain.
	maxArchiveFiles = 10_000
	// maxFileBytes bounds a single extracted file.
	maxFileBytes = 256 << 20
)

// extractArchive streams a gzipped tarball into a fresh temp directory and
// returns the directory plus a cleanup func. Entries escaping the
// extraction root (absolute paths, ".." traversal) are rejected.
func extractArchive(r io.Reader) (string, func(), error) {
	dir, err := os.MkdirTemp("", "conductor-upload-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	gz, err := gzip.NewReader(r)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("archive is not gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			cleanup()
			return "", nil, fmt.Errorf("read archive: %w", err)
		}

		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			cleanup()
			return "", nil, fmt.Errorf("archive entry %q escapes extraction root", hdr.Name)
		}
		target := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				cleanup()
				return "", nil, err
			}
		case tar.TypeReg:
			files++
			if files > maxArchiveFiles {
				cleanup()
				return "", nil, fmt.Errorf("archive contains more than %d files", maxArchiveFiles)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				cleanup()
				return "", nil, err
			}
			if err := writeFileBounded(target, tr); err != nil {
				cleanup()
				return "", nil, err
			}
		default:
			// Symlinks, devices, and the rest have no place in a data pack.
			cleanup()
			return "", nil, fmt.Errorf("archive entry %q has unsupported type %c", hdr.Name, hdr.Typeflag)
		}
	}
	return dir, cleanup, nil
}

func writeFileBounded(target string, r io.Reader) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(f, io.LimitReader(r, maxFileBytes+1))
	if err != nil {
		return err
	}
	if n > maxFileBytes {
		return fmt.Errorf("file %s exceeds the %d-byte limit", filepath.Base(target), maxFileBytes)
	}
	return nil
}
