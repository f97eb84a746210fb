package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	fixzip "github.com/hidez8891/zip"
	"go.uber.org/multierr"
)

// MimetypeName is the entry which must come first in EPUB container.
const MimetypeName = "mimetype"

type packOptions struct {
	noDataDescriptors bool
	modified          time.Time
}

// PackOption customizes Pack.
type PackOption func(*packOptions)

// WithoutDataDescriptors rewrites resulting archive so no entry uses data
// descriptor. Some readers (older Kindle and Kobo firmware) cannot handle
// them.
func WithoutDataDescriptors() PackOption {
	return func(o *packOptions) { o.noDataDescriptors = true }
}

// WithModified stamps every entry with t instead of file modification time.
func WithModified(t time.Time) PackOption {
	return func(o *packOptions) { o.modified = t }
}

// Pack stores every regular file under sourceDir into destFile without
// compression. The "mimetype" entry, when present, is written first, the
// rest follow in lexical path order. Archive is written to a temporary file
// next to destFile and renamed over it only when complete.
func Pack(sourceDir, destFile string, opts ...PackOption) (err error) {
	var o packOptions
	for _, opt := range opts {
		opt(&o)
	}

	files, err := collect(sourceDir)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destFile), "."+filepath.Base(destFile)+".*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create archive: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			err = multierr.Append(err, removeIfExists(tmpName))
		}
	}()

	if err = writeArchive(tmp, sourceDir, files, o.modified); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("unable to finalize archive: %w", err)
	}

	if o.noDataDescriptors {
		fixed := tmpName + ".fix"
		if err = copyZipWithoutDataDescriptors(tmpName, fixed); err != nil {
			return multierr.Append(err, removeIfExists(fixed))
		}
		if err = os.Rename(fixed, tmpName); err != nil {
			return multierr.Append(err, removeIfExists(fixed))
		}
	}

	if err = os.Rename(tmpName, destFile); err != nil {
		return fmt.Errorf("unable to move archive into place: %w", err)
	}
	return nil
}

// collect returns slash separated names of regular files under dir, mimetype
// first.
func collect(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to access package directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("package source %s is not a directory", dir)
	}

	var (
		names       []string
		hasMimetype bool
	)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if name == MimetypeName {
			hasMimetype = true
			return nil
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list package directory: %w", err)
	}
	if hasMimetype {
		names = append([]string{MimetypeName}, names...)
	}
	return names, nil
}

func writeArchive(out io.Writer, dir string, names []string, modified time.Time) (err error) {
	zw := zip.NewWriter(out)
	defer func() {
		err = multierr.Append(err, zw.Close())
	}()

	for _, name := range names {
		hdr := &zip.FileHeader{Name: name, Method: zip.Store}
		if name != MimetypeName {
			// mimetype must not carry extra fields
			hdr.Modified = modified
			if hdr.Modified.IsZero() {
				if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name))); err == nil {
					hdr.Modified = info.ModTime()
				}
			}
		}
		if err := addFile(zw, hdr, filepath.Join(dir, filepath.FromSlash(name))); err != nil {
			return fmt.Errorf("unable to add %s to archive: %w", name, err)
		}
	}
	return nil
}

func addFile(zw *zip.Writer, hdr *zip.FileHeader, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

func copyZipWithoutDataDescriptors(from, to string) (err error) {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	for _, file := range r.File {
		file.Flags &= ^fixzip.FlagDataDescriptor
		if err := w.CopyFile(file); err != nil {
			return multierr.Append(fmt.Errorf("unable to write target file (%s): %w", to, err), w.Close())
		}
	}
	return w.Close()
}

func removeIfExists(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
