package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/logging"
)

// zipHelper serves .zip archives in-process. Passwords are not supported by
// the zip codec and are ignored.
type zipHelper struct{}

func (*zipHelper) Formats() []string { return []string{"zip"} }

func (*zipHelper) List(ctx context.Context, path, password string) ([]Entry, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		if st, serr := os.Stat(path); serr == nil && st.Size() == 0 {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	defer r.Close()

	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mod := f.Modified
		comp := int64(f.CompressedSize64)
		entries = append(entries, Entry{
			Filename:       f.Name,
			IsDir:          f.FileInfo().IsDir(),
			Size:           int64(f.UncompressedSize64),
			CompressedSize: &comp,
			Modified:       &mod,
		})
	}
	return entries, nil
}

func (*zipHelper) Extract(ctx context.Context, path, outDir, password string, progress ProgressFunc) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip %s: %w", path, err)
	}
	defer r.Close()

	total := len(r.File)
	var totalBytes int64
	for _, f := range r.File {
		totalBytes += int64(f.UncompressedSize64)
	}

	log := logging.WithComponent("archive")
	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest, ok := safeJoin(outDir, f.Name)
		if !ok {
			log.Warn().Str("entry", f.Name).Str("archive", path).Msg("skipping entry escaping output directory")
			continue
		}
		if err := extractZipEntry(f, dest); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
		if progress != nil {
			progress(Progress{Fraction: float64(i+1) / float64(total), TotalFiles: total, TotalBytes: totalBytes})
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, dest string) error {
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dest, f.Modified, f.Modified)
}

func (*zipHelper) ExtractFile(ctx context.Context, path, filename, password string) (io.ReadCloser, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	for _, f := range r.File {
		if f.Name == filename {
			rc, err := f.Open()
			if err != nil {
				r.Close()
				return nil, err
			}
			return &closerPair{rc: rc, closer: r}, nil
		}
	}
	r.Close()
	return nil, errs.ErrNotExistsFile.WithDetail("%s in %s", filename, path)
}

func (*zipHelper) Make(ctx context.Context, archivePath, rootDir string, files []string, progress ProgressFunc) error {
	members, err := collectMembers(rootDir, files)
	if err != nil {
		return err
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", archivePath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for i, m := range members {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return err
		}
		if err := writeZipMember(zw, m); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", m.name, err)
		}
		if progress != nil {
			progress(Progress{Fraction: float64(i+1) / float64(len(members)), TotalFiles: len(members)})
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Sync()
}

func writeZipMember(zw *zip.Writer, m member) error {
	hdr := &zip.FileHeader{Name: m.name, Modified: m.info.ModTime(), Method: zip.Deflate}
	hdr.SetMode(m.info.Mode())
	if m.info.IsDir() {
		hdr.Name += "/"
		_, err := zw.CreateHeader(hdr)
		return err
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(m.real)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// member is one path to archive with its name inside the archive.
type member struct {
	real string
	name string
	info os.FileInfo
}

// collectMembers expands the requested paths (recursing into directories)
// into archive members named relative to rootDir. When a path cannot be made
// relative, the basename is used; a parent-escaping name is never produced.
func collectMembers(rootDir string, files []string) ([]member, error) {
	var out []member
	add := func(real string, info os.FileInfo) {
		name, err := filepath.Rel(rootDir, real)
		if err != nil || strings.HasPrefix(name, "..") {
			name = filepath.Base(real)
		}
		if name == "." {
			return
		}
		out = append(out, member{real: real, name: filepath.ToSlash(name), info: info})
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(f, info)
			continue
		}
		err = filepath.Walk(f, func(p string, fi os.FileInfo, werr error) error {
			if werr != nil {
				return werr
			}
			add(p, fi)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// safeJoin joins an archive entry name under dir, refusing results that
// escape it.
func safeJoin(dir, name string) (string, bool) {
	cleaned := filepath.Clean("/" + filepath.FromSlash(name))
	dest := filepath.Join(dir, cleaned)
	if dest != dir && !strings.HasPrefix(dest, dir+string(os.PathSeparator)) {
		return "", false
	}
	return dest, true
}

// closerPair closes both the entry reader and the underlying archive.
type closerPair struct {
	rc     io.ReadCloser
	closer io.Closer
}

func (c *closerPair) Read(p []byte) (int, error) { return c.rc.Read(p) }

func (c *closerPair) Close() error {
	err := c.rc.Close()
	if cerr := c.closer.Close(); err == nil {
		err = cerr
	}
	return err
}
