package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/logging"
)

// tarZstHelper serves .tar.zst archives: a tar stream behind zstd.
// Passwords are not supported and are ignored.
type tarZstHelper struct{}

func (*tarZstHelper) Formats() []string { return []string{"tar.zst"} }

func openTarZst(path string) (*os.File, *zstd.Decoder, *tar.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		// Empty archive file: yield an empty stream.
		return f, nil, tar.NewReader(f), nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("open zstd %s: %w", path, err)
	}
	return f, dec, tar.NewReader(dec), nil
}

func (*tarZstHelper) List(ctx context.Context, path, password string) ([]Entry, error) {
	f, dec, tr, err := openTarZst(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if dec != nil {
		defer dec.Close()
	}

	entries := []Entry{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read tar %s: %w", path, err)
		}
		mod := hdr.ModTime
		entries = append(entries, Entry{
			Filename: hdr.Name,
			IsDir:    hdr.Typeflag == tar.TypeDir,
			Size:     hdr.Size,
			Modified: &mod,
		})
	}
}

func (*tarZstHelper) Extract(ctx context.Context, path, outDir, password string, progress ProgressFunc) error {
	f, dec, tr, err := openTarZst(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if dec != nil {
		defer dec.Close()
	}

	log := logging.WithComponent("archive")
	done := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", path, err)
		}
		dest, ok := safeJoin(outDir, hdr.Name)
		if !ok {
			log.Warn().Str("entry", hdr.Name).Str("archive", path).Msg("skipping entry escaping output directory")
			continue
		}
		if err := extractTarEntry(tr, hdr, dest); err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		done++
		if progress != nil {
			// Tar streams do not carry a member count up front.
			progress(Progress{Fraction: 0, TotalFiles: done})
		}
	}
}

func extractTarEntry(tr *tar.Reader, hdr *tar.Header, dest string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm()|0o200)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Chtimes(dest, hdr.ModTime, hdr.ModTime)
	default:
		// Links and specials are not produced by Make; skip quietly.
		return nil
	}
}

func (*tarZstHelper) ExtractFile(ctx context.Context, path, filename, password string) (io.ReadCloser, error) {
	f, dec, tr, err := openTarZst(path)
	if err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			closeTarZst(f, dec)
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			closeTarZst(f, dec)
			return nil, errs.ErrNotExistsFile.WithDetail("%s in %s", filename, path)
		}
		if err != nil {
			closeTarZst(f, dec)
			return nil, err
		}
		if hdr.Name == filename && hdr.Typeflag == tar.TypeReg {
			return &tarEntryReader{f: f, dec: dec, r: io.LimitReader(tr, hdr.Size)}, nil
		}
	}
}

func closeTarZst(f *os.File, dec *zstd.Decoder) {
	if dec != nil {
		dec.Close()
	}
	f.Close()
}

type tarEntryReader struct {
	f   *os.File
	dec *zstd.Decoder
	r   io.Reader
}

func (t *tarEntryReader) Read(p []byte) (int, error) { return t.r.Read(p) }

func (t *tarEntryReader) Close() error {
	closeTarZst(t.f, t.dec)
	return nil
}

func (*tarZstHelper) Make(ctx context.Context, archivePath, rootDir string, files []string, progress ProgressFunc) error {
	members, err := collectMembers(rootDir, files)
	if err != nil {
		return err
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", archivePath, err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(enc)

	for i, m := range members {
		if err := ctx.Err(); err != nil {
			tw.Close()
			enc.Close()
			return err
		}
		if err := writeTarMember(tw, m); err != nil {
			tw.Close()
			enc.Close()
			return fmt.Errorf("add %s: %w", m.name, err)
		}
		if progress != nil {
			progress(Progress{Fraction: float64(i+1) / float64(len(members)), TotalFiles: len(members)})
		}
	}
	if err := tw.Close(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return out.Sync()
}

func writeTarMember(tw *tar.Writer, m member) error {
	hdr, err := tar.FileInfoHeader(m.info, "")
	if err != nil {
		return err
	}
	hdr.Name = m.name
	if m.info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if m.info.IsDir() {
		return nil
	}
	f, err := os.Open(m.real)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
