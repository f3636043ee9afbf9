package archive

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/swicore/switcher/internal/errs"
)

// sevenZipHelper drives an external 7z binary. Archive bytes are piped
// through the subprocess so large archives never buffer in memory.
type sevenZipHelper struct {
	bin string
}

// newSevenZipHelper probes for a 7z binary; nil when none is installed.
func newSevenZipHelper() *sevenZipHelper {
	for _, name := range []string{"7z", "7zz", "7za"} {
		if path, err := exec.LookPath(name); err == nil {
			return &sevenZipHelper{bin: path}
		}
	}
	return nil
}

func (*sevenZipHelper) Formats() []string { return []string{"7z"} }

func (h *sevenZipHelper) passwordArg(password string) string {
	// 7z treats -p with an empty value as "prompt"; always pass a value so
	// the subprocess never blocks on a terminal read.
	if password == "" {
		return "-p-"
	}
	return "-p" + password
}

func (h *sevenZipHelper) List(ctx context.Context, path, password string) ([]Entry, error) {
	cmd := exec.CommandContext(ctx, h.bin, "l", "-slt", "-ba", h.passwordArg(password), path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("7z list %s: %w", path, err)
	}
	return parseSevenZipListing(out), nil
}

// parseSevenZipListing parses `7z l -slt` technical output: blank-line
// separated blocks of "Key = Value" lines.
func parseSevenZipListing(out []byte) []Entry {
	entries := []Entry{}
	var cur *Entry
	flush := func() {
		if cur != nil && cur.Filename != "" {
			entries = append(entries, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, " = ")
		if !ok {
			continue
		}
		if cur == nil {
			cur = &Entry{}
		}
		switch key {
		case "Path":
			cur.Filename = value
		case "Size":
			cur.Size, _ = strconv.ParseInt(value, 10, 64)
		case "Packed Size":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.CompressedSize = &v
			}
		case "Modified":
			if t, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local); err == nil {
				cur.Modified = &t
			}
		case "Attributes":
			cur.IsDir = strings.Contains(value, "D")
		case "Folder":
			if value == "+" {
				cur.IsDir = true
			}
		}
	}
	flush()
	return entries
}

func (h *sevenZipHelper) Extract(ctx context.Context, path, outDir, password string, progress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, h.bin, "x", "-y", "-bsp1", "-bso0",
		h.passwordArg(password), "-o"+outDir, path)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start 7z: %w", err)
	}

	// -bsp1 prints percentage ticks like " 42%" on stdout.
	sc := bufio.NewScanner(stdout)
	sc.Split(scanPercentTokens)
	for sc.Scan() {
		if pct, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(sc.Text()), "%")); err == nil {
			if progress != nil {
				progress(Progress{Fraction: float64(pct) / 100})
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("7z extract %s: %w", path, err)
	}
	if progress != nil {
		progress(Progress{Fraction: 1})
	}
	return nil
}

// scanPercentTokens splits 7z progress output on carriage returns, which 7z
// uses to redraw its progress line.
func scanPercentTokens(data []byte, atEOF bool) (int, []byte, error) {
	for i, b := range data {
		if b == '\r' || b == '\n' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (h *sevenZipHelper) ExtractFile(ctx context.Context, path, filename, password string) (io.ReadCloser, error) {
	// Verify the member exists first; `7z e -so` on a missing member exits
	// zero with empty output.
	entries, err := h.List(ctx, path, password)
	if err != nil {
		return nil, err
	}
	found := false
	for _, e := range entries {
		if e.Filename == filename && !e.IsDir {
			found = true
			break
		}
	}
	if !found {
		return nil, errs.ErrNotExistsFile.WithDetail("%s in %s", filename, path)
	}

	cmd := exec.CommandContext(ctx, h.bin, "e", "-so", h.passwordArg(password), path, filename)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start 7z: %w", err)
	}
	return &cmdReader{cmd: cmd, r: stdout}, nil
}

type cmdReader struct {
	cmd *exec.Cmd
	r   io.ReadCloser
}

func (c *cmdReader) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *cmdReader) Close() error {
	c.r.Close()
	return c.cmd.Wait()
}

func (h *sevenZipHelper) Make(ctx context.Context, archivePath, rootDir string, files []string, progress ProgressFunc) error {
	members, err := collectMembers(rootDir, files)
	if err != nil {
		return err
	}
	// 7z records names relative to its working directory; run it from
	// rootDir and pass the relative member names.
	args := []string{"a", "-y", "-bso0", archivePath}
	seen := map[string]bool{}
	for _, m := range members {
		// Top-level names only; 7z recurses into directories itself.
		top, _, _ := strings.Cut(m.name, "/")
		if !seen[top] {
			seen[top] = true
			args = append(args, top)
		}
	}
	cmd := exec.CommandContext(ctx, h.bin, args...)
	cmd.Dir = rootDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("7z create %s: %w (%s)", archivePath, err, strings.TrimSpace(string(out)))
	}
	if progress != nil {
		progress(Progress{Fraction: 1, TotalFiles: len(members)})
	}
	return nil
}
