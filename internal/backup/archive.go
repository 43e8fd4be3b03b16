package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// createArchive writes a gzipped tar of srcDir to destPath. Entry names are
// slash-separated paths relative to srcDir. Returns the number of regular
// files archived. A failed archive is removed rather than left half-written.
func createArchive(srcDir, destPath string) (int, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	fail := func(err error) (int, error) {
		tw.Close()
		gz.Close()
		out.Close()
		os.Remove(destPath)
		return 0, fmt.Errorf("archive %s: %w", srcDir, err)
	}

	count := 0
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		// Regular files and directories only; symlinks and specials have no
		// place in an asset backup.
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
		count++
		return nil
	})
	if walkErr != nil {
		return fail(walkErr)
	}

	if err := tw.Close(); err != nil {
		return fail(err)
	}
	if err := gz.Close(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return 0, fmt.Errorf("archive %s: %w", srcDir, err)
	}
	return count, nil
}

// extractArchive unpacks a gzipped tar into destDir. Entries that would
// escape destDir are rejected. Returns the number of regular files written.
func extractArchive(srcPath, destDir string) (int, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("read archive %s: %w", srcPath, err)
	}
	defer gz.Close()

	cleanDest := filepath.Clean(destDir)
	count := 0
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read archive %s: %w", srcPath, err)
		}

		target := filepath.Join(cleanDest, filepath.FromSlash(header.Name))
		if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return count, fmt.Errorf("archive entry %q escapes destination", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, fmt.Errorf("extract %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return count, fmt.Errorf("extract %s: %w", header.Name, err)
			}
			mode := fs.FileMode(header.Mode).Perm()
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return count, fmt.Errorf("extract %s: %w", header.Name, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return count, fmt.Errorf("extract %s: %w", header.Name, err)
			}
			if err := out.Close(); err != nil {
				return count, fmt.Errorf("extract %s: %w", header.Name, err)
			}
			count++
		default:
			// Skip anything createArchive never writes.
		}
	}
	return count, nil
}
