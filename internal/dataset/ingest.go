package dataset

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// IngestResult reports the period of the freshly loaded dataset.
type IngestResult struct {
	Period         string `json:"period"`
	PeriodFriendly string `json:"periodFriendly"`
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Ingest replaces the dataset root with the contents of the uploaded archive.
//
// The body is first streamed to a temporary file, enforcing the byte ceiling
// as data arrives rather than after buffering. The destructive part, clearing
// the root and extracting into it, runs under the store's exclusive ingest
// lock so two uploads cannot interleave. If extraction fails the root may
// already be cleared; the manifest then reports an empty dataset rather than
// a stale one. The temporary archive is removed on every path.
func (s *Store) Ingest(ctx context.Context, body io.Reader, filename string) (*IngestResult, error) {
	safe := unsafeNameChars.ReplaceAllString(filename, "_")
	if safe == "" {
		safe = "upload.zip"
	}
	tmp := filepath.Join(os.TempDir(), uuid.NewString()+"_"+safe)

	if err := s.saveArchive(tmp, body); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	defer os.Remove(tmp)

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	defer s.invalidate()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset root: %w", err)
	}
	if err := clearDir(s.root); err != nil {
		return nil, fmt.Errorf("clear dataset root: %w", err)
	}
	if err := extractArchive(tmp, safe, s.root); err != nil {
		return nil, err
	}
	if err := flattenSingleDir(s.root); err != nil {
		return nil, fmt.Errorf("flatten archive directory: %w", err)
	}

	period := loadPeriod(s.root)
	return &IngestResult{Period: period, PeriodFriendly: friendlyPeriod(period)}, nil
}

// saveArchive streams the body to path, failing with ErrTooLarge as soon as
// the configured ceiling is crossed.
func (s *Store) saveArchive(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	if n > s.maxBytes {
		return fmt.Errorf("archive exceeds %d bytes: %w", s.maxBytes, ErrTooLarge)
	}
	return nil
}

// clearDir removes every entry of dir, leaving dir itself in place.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// extractArchive unpacks the archive at path into dest. Zip is the published
// format; gzipped tarballs are accepted as well since mirrors repack the
// dataset that way. Failures of either decoder surface as ErrExtraction.
func extractArchive(path, name, dest string) error {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		if err := extractTarGz(path, dest); err != nil {
			return fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		return nil
	}

	zipErr := extractZip(path, dest)
	if zipErr == nil {
		return nil
	}
	// The name may lie about the format; fall back to tar.gz before giving up.
	if tarErr := extractTarGz(path, dest); tarErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrExtraction, zipErr)
}

// extractZip unpacks a zip archive into dest, refusing entries whose paths
// would escape it.
func extractZip(path, dest string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := entryPath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		err = writeEntry(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// extractTarGz unpacks a gzipped tarball into dest.
func extractTarGz(path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		target, err := entryPath(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return err
			}
		}
	}
}

// entryPath resolves an archive entry name under dest, rejecting absolute
// paths and parent-directory escapes.
func entryPath(dest, name string) (string, error) {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("unsafe archive entry %q", name)
	}
	return filepath.Join(dest, name), nil
}

// writeEntry writes one archive entry to target, creating parent directories
// as needed.
func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return f.Close()
}

// flattenSingleDir accommodates archives that wrap their payload in one named
// folder: if dir holds exactly one directory and no files, that directory's
// contents move up a level and the wrapper is removed.
func flattenSingleDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files, dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	if len(files) != 0 || len(dirs) != 1 {
		return nil
	}

	inner := filepath.Join(dir, dirs[0].Name())
	children, err := os.ReadDir(inner)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := os.Rename(filepath.Join(inner, c.Name()), filepath.Join(dir, c.Name())); err != nil {
			return err
		}
	}
	return os.Remove(inner)
}
