// Package archive provides suffix-pluggable helpers for creating, listing
// and extracting archives. The zip and tar.zst helpers are in-process
// (klauspost/compress); the 7z helper drives an external binary through
// pipes.
package archive

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/swicore/switcher/internal/errs"
)

// Entry describes one archive member.
type Entry struct {
	Filename       string     `json:"filename"`
	IsDir          bool       `json:"isDir"`
	Size           int64      `json:"size"`
	CompressedSize *int64     `json:"compressedSize,omitempty"`
	Modified       *time.Time `json:"modified,omitempty"`
}

// Progress reports extraction/creation advancement. Fraction is in [0,1].
type Progress struct {
	Fraction   float64
	TotalFiles int
	TotalBytes int64
}

// ProgressFunc receives progress updates; may be nil.
type ProgressFunc func(Progress)

// Helper implements one archive format family.
type Helper interface {
	// Formats returns the suffixes this helper serves, without leading dot
	// (e.g. "zip", "tar.zst").
	Formats() []string
	List(ctx context.Context, path, password string) ([]Entry, error)
	Extract(ctx context.Context, path, outDir, password string, progress ProgressFunc) error
	// ExtractFile streams one member; the caller closes the reader.
	ExtractFile(ctx context.Context, path, filename, password string) (io.ReadCloser, error)
	// Make archives the given real paths, recorded relative to rootDir.
	Make(ctx context.Context, archivePath, rootDir string, files []string, progress ProgressFunc) error
}

// Registry holds the available helpers in priority order.
type Registry struct {
	helpers []Helper
}

// NewRegistry probes the default helpers and registers the available ones:
// zip and tar.zst always, 7z only when a binary is found.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(&zipHelper{})
	r.Register(&tarZstHelper{})
	if h := newSevenZipHelper(); h != nil {
		r.Register(h)
	}
	return r
}

// Register appends a helper. Earlier helpers win on suffix conflicts.
func (r *Registry) Register(h Helper) { r.helpers = append(r.helpers, h) }

// Formats returns every suffix some helper serves.
func (r *Registry) Formats() []string {
	var out []string
	seen := map[string]bool{}
	for _, h := range r.helpers {
		for _, f := range h.Formats() {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// ByFilename picks the highest-priority helper whose suffix matches the
// file name.
func (r *Registry) ByFilename(name string) (Helper, error) {
	lower := strings.ToLower(name)
	for _, h := range r.helpers {
		for _, f := range h.Formats() {
			if strings.HasSuffix(lower, "."+f) {
				return h, nil
			}
		}
	}
	return nil, errs.ErrNoArchiveHelper.WithDetail("%s", name)
}

// ForCreate walks the configured suffix preferences and returns the first
// helper able to produce one, along with the chosen suffix.
func (r *Registry) ForCreate(preferred []string) (Helper, string, error) {
	for _, suffix := range preferred {
		for _, h := range r.helpers {
			for _, f := range h.Formats() {
				if f == suffix {
					return h, suffix, nil
				}
			}
		}
	}
	return nil, "", errs.ErrNoArchiveHelper.WithDetail("no helper for any of %v", preferred)
}
