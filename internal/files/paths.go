package files

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/swicore/switcher/internal/errs"
)

// Path pairs the wire representation of a location (virtual, rooted at "/")
// with its validated real path.
type Path struct {
	Real    string
	Virtual string
}

// Resolve validates a client-supplied virtual path against the manager's
// root.
func (m *Manager) Resolve(virtual string) (Path, error) {
	return ResolveUnder(m.root, virtual)
}

// ResolveUnder validates a virtual path against an arbitrary real root
// (used for server-relative file APIs).
func ResolveUnder(root, virtual string) (Path, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(virtual, "\\", "/"))
	real := filepath.Join(root, filepath.FromSlash(cleaned))
	if real != root && !strings.HasPrefix(real, root+string(os.PathSeparator)) {
		return Path{}, errs.ErrNotAllowedPath.WithDetail("%s", virtual)
	}
	// A symlink under the root must not lead outside it. Resolve the
	// deepest existing ancestor and re-check the prefix.
	if resolved, err := resolveExisting(real); err == nil {
		rootResolved, rerr := filepath.EvalSymlinks(root)
		if rerr != nil {
			rootResolved = root
		}
		if resolved != rootResolved && !strings.HasPrefix(resolved, rootResolved+string(os.PathSeparator)) {
			return Path{}, errs.ErrNotAllowedPath.WithDetail("%s", virtual)
		}
	}
	return Path{Real: real, Virtual: cleaned}, nil
}

// resolveExisting walks up from p to the deepest existing ancestor, resolves
// its symlinks, and rejoins the missing tail.
func resolveExisting(p string) (string, error) {
	missing := []string{}
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
	resolved, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, missing...)...), nil
}

// VirtualPath converts a real path under the root back to its virtual form.
// Round-trips with Resolve for any path rooted at the root.
func (m *Manager) VirtualPath(real string) (string, error) {
	rel, err := filepath.Rel(m.root, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", errs.ErrNotAllowedPath.WithDetail("%s", real)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}
