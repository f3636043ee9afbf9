// Package files owns the virtual path space rooted at the configured root
// directory, the file task registry, and the archive operations built on the
// helper registry.
package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/swicore/switcher/internal/archive"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/event"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/pkg/types"
)

// Manager owns task ids, the task set, and all filesystem mutation under the
// root.
type Manager struct {
	root     string
	bus      *event.Bus
	archives *archive.Registry
	log      zerolog.Logger

	mu     sync.Mutex
	tasks  map[int64]*Task
	nextID atomic.Int64

	httpClient *http.Client
}

// NewManager creates the file manager rooted at root, creating the directory
// when missing.
func NewManager(root string, bus *event.Bus, archives *archive.Registry) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}
	return &Manager{
		root:       abs,
		bus:        bus,
		archives:   archives,
		log:        logging.WithComponent("files"),
		tasks:      map[int64]*Task{},
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

// Root returns the absolute root directory.
func (m *Manager) Root() string { return m.root }

// Archives exposes the helper registry.
func (m *Manager) Archives() *archive.Registry { return m.archives }

// PathInfo describes one directory entry over the wire.
type PathInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"` // virtual
	IsDir    bool      `json:"isDir"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ListDir lists a directory, sorted by name.
func (m *Manager) ListDir(p Path) ([]PathInfo, error) {
	entries, err := os.ReadDir(p.Real)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotExistsDir.WithDetail("%s", p.Virtual)
		}
		return nil, err
	}
	out := make([]PathInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		virt := p.Virtual
		if virt == "/" {
			virt = ""
		}
		out = append(out, PathInfo{
			Name:     e.Name(),
			Path:     virt + "/" + e.Name(),
			IsDir:    e.IsDir(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stat returns the info of one path.
func (m *Manager) Stat(p Path) (PathInfo, error) {
	info, err := os.Stat(p.Real)
	if err != nil {
		if os.IsNotExist(err) {
			return PathInfo{}, errs.ErrNotExistsFile.WithDetail("%s", p.Virtual)
		}
		return PathInfo{}, err
	}
	return PathInfo{
		Name:     info.Name(),
		Path:     p.Virtual,
		IsDir:    info.IsDir(),
		Size:     info.Size(),
		Modified: info.ModTime(),
	}, nil
}

// MkDir creates a directory (with parents). Fails on an existing path.
func (m *Manager) MkDir(p Path) error {
	if _, err := os.Stat(p.Real); err == nil {
		return errs.ErrAlreadyExists.WithDetail("%s", p.Virtual)
	}
	return os.MkdirAll(p.Real, 0o755)
}

// Open opens a file for streaming reads.
func (m *Manager) Open(p Path) (*os.File, error) {
	f, err := os.Open(p.Real)
	if os.IsNotExist(err) {
		return nil, errs.ErrNotExistsFile.WithDetail("%s", p.Virtual)
	}
	return f, err
}

// WriteFile streams r into the path, creating parents.
func (m *Manager) WriteFile(p Path, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(p.Real), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p.Real)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Copy registers a COPY task duplicating a file or directory tree.
func (m *Manager) Copy(src, dst Path, server string) (*Task, error) {
	if _, err := os.Stat(src.Real); err != nil {
		return nil, errs.ErrNotExistsFile.WithDetail("%s", src.Virtual)
	}
	if _, err := os.Stat(dst.Real); err == nil {
		return nil, errs.ErrAlreadyExists.WithDetail("%s", dst.Virtual)
	}
	t := m.NewTask(types.TaskCopy, src, dst, server)
	return m.Run(t, func(ctx context.Context, progress func(float64)) error {
		return copyTree(src.Real, dst.Real)
	}), nil
}

// Move registers a MOVE task. Rename first, copy+delete across devices.
func (m *Manager) Move(src, dst Path, server string) (*Task, error) {
	if _, err := os.Stat(src.Real); err != nil {
		return nil, errs.ErrNotExistsFile.WithDetail("%s", src.Virtual)
	}
	if _, err := os.Stat(dst.Real); err == nil {
		return nil, errs.ErrAlreadyExists.WithDetail("%s", dst.Virtual)
	}
	t := m.NewTask(types.TaskMove, src, dst, server)
	return m.Run(t, func(ctx context.Context, progress func(float64)) error {
		if err := os.Rename(src.Real, dst.Real); err == nil {
			return nil
		}
		if err := copyTree(src.Real, dst.Real); err != nil {
			return err
		}
		return os.RemoveAll(src.Real)
	}), nil
}

// Delete registers a DELETE task removing a file or directory tree.
func (m *Manager) Delete(p Path, server string) (*Task, error) {
	if _, err := os.Lstat(p.Real); err != nil {
		return nil, errs.ErrNotExistsFile.WithDetail("%s", p.Virtual)
	}
	t := m.NewTask(types.TaskDelete, p, Path{}, server)
	return m.Run(t, func(ctx context.Context, progress func(float64)) error {
		return os.RemoveAll(p.Real)
	}), nil
}

// ListArchive lists archive members without extracting.
func (m *Manager) ListArchive(ctx context.Context, p Path, password string) ([]archive.Entry, error) {
	h, err := m.archives.ByFilename(p.Real)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p.Real); err != nil {
		return nil, errs.ErrNotExistsFile.WithDetail("%s", p.Virtual)
	}
	return h.List(ctx, p.Real, password)
}

// ExtractArchive registers an EXTRACT_ARCHIVE task.
func (m *Manager) ExtractArchive(src, dstDir Path, password, server string) (*Task, error) {
	h, err := m.archives.ByFilename(src.Real)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(src.Real); err != nil {
		return nil, errs.ErrNotExistsFile.WithDetail("%s", src.Virtual)
	}
	t := m.NewTask(types.TaskExtractArchive, src, dstDir, server)
	return m.Run(t, func(ctx context.Context, progress func(float64)) error {
		if err := os.MkdirAll(dstDir.Real, 0o755); err != nil {
			return err
		}
		return h.Extract(ctx, src.Real, dstDir.Real, password, func(p archive.Progress) {
			progress(p.Fraction)
		})
	}), nil
}

// MakeArchive registers a CREATE_ARCHIVE task packing files (virtual paths
// under includeRoot) into dst.
func (m *Manager) MakeArchive(dst, includeRoot Path, files []Path, server string) (*Task, error) {
	h, err := m.archives.ByFilename(dst.Real)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dst.Real); err == nil {
		return nil, errs.ErrAlreadyExists.WithDetail("%s", dst.Virtual)
	}
	reals := make([]string, len(files))
	for i, f := range files {
		reals[i] = f.Real
	}
	t := m.NewTask(types.TaskCreateArchive, includeRoot, dst, server)
	return m.Run(t, func(ctx context.Context, progress func(float64)) error {
		return h.Make(ctx, dst.Real, includeRoot.Real, reals, func(p archive.Progress) {
			progress(p.Fraction)
		})
	}), nil
}

// ArchiveFileReader streams one archive member.
func (m *Manager) ArchiveFileReader(ctx context.Context, p Path, filename, password string) (io.ReadCloser, error) {
	h, err := m.archives.ByFilename(p.Real)
	if err != nil {
		return nil, err
	}
	return h.ExtractFile(ctx, p.Real, filename, password)
}

// Download registers a DOWNLOAD task fetching url into dst.
func (m *Manager) Download(url string, dst Path, server string) (*Task, error) {
	t := m.NewTask(types.TaskDownload, Path{Real: url, Virtual: url}, dst, server)
	return m.Run(t, func(ctx context.Context, progress func(float64)) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := m.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download %s: status %s", url, resp.Status)
		}
		if err := os.MkdirAll(filepath.Dir(dst.Real), 0o755); err != nil {
			return err
		}
		f, err := os.Create(dst.Real)
		if err != nil {
			return err
		}
		var copied int64
		buf := make([]byte, 128*1024)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				if _, werr := f.Write(buf[:n]); werr != nil {
					f.Close()
					return werr
				}
				copied += int64(n)
				if resp.ContentLength > 0 {
					progress(float64(copied) / float64(resp.ContentLength))
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				f.Close()
				return rerr
			}
		}
		return f.Close()
	}), nil
}

// copyTree copies a file or directory tree preserving modes and mtimes.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info)
	}
	return filepath.Walk(src, func(p string, fi os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return os.MkdirAll(target, fi.Mode().Perm())
		}
		return copyFile(p, target, fi)
	})
}

func copyFile(src, dst string, info os.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
