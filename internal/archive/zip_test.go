package archive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func testRoundTrip(t *testing.T, h Helper, suffix string) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"server.properties": "motd=hello",
		"world/level.dat":   "level-data-bytes",
	})

	archivePath := filepath.Join(t.TempDir(), "backup."+suffix)
	var lastFraction float64
	err := h.Make(context.Background(), archivePath, src, []string{src}, func(p Progress) {
		lastFraction = p.Fraction
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, lastFraction)

	entries, err := h.List(context.Background(), archivePath, "")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir {
			names = append(names, e.Filename)
		}
	}
	sort.Strings(names)
	assert.Equal(t, []string{"server.properties", "world/level.dat"}, names)

	out := t.TempDir()
	require.NoError(t, h.Extract(context.Background(), archivePath, out, "", nil))
	got, err := os.ReadFile(filepath.Join(out, "world", "level.dat"))
	require.NoError(t, err)
	assert.Equal(t, "level-data-bytes", string(got))
	got, err = os.ReadFile(filepath.Join(out, "server.properties"))
	require.NoError(t, err)
	assert.Equal(t, "motd=hello", string(got))
}

func TestZipRoundTrip(t *testing.T)    { testRoundTrip(t, &zipHelper{}, "zip") }
func TestTarZstRoundTrip(t *testing.T) { testRoundTrip(t, &tarZstHelper{}, "tar.zst") }

func TestZipExtractFile(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"eula.txt": "eula=true"})
	archivePath := filepath.Join(t.TempDir(), "a.zip")
	h := &zipHelper{}
	require.NoError(t, h.Make(context.Background(), archivePath, src, []string{filepath.Join(src, "eula.txt")}, nil))

	rc, err := h.ExtractFile(context.Background(), archivePath, "eula.txt", "")
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 64)
	n, _ := rc.Read(buf)
	assert.Equal(t, "eula=true", string(buf[:n]))

	_, err = h.ExtractFile(context.Background(), archivePath, "missing.txt", "")
	assert.Error(t, err)
}

func TestListEmptyArchive(t *testing.T) {
	for _, tc := range []struct {
		suffix string
		h      Helper
	}{
		{"zip", &zipHelper{}},
		{"tar.zst", &tarZstHelper{}},
	} {
		t.Run(tc.suffix, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "empty."+tc.suffix)
			require.NoError(t, os.WriteFile(path, nil, 0o644))
			entries, err := tc.h.List(context.Background(), path, "")
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestSafeJoinRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		ok   bool
	}{
		{"plain.txt", true},
		{"sub/dir/file.txt", true},
		{"../escape.txt", true}, // cleaned to dir/escape.txt, stays inside
		{"/abs/path.txt", true}, // rooted inside dir
	}
	for _, tt := range tests {
		dest, ok := safeJoin(dir, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if ok {
			assert.True(t, dest == dir || filepath.Dir(dest) == dir || len(dest) > len(dir), tt.name)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := &Registry{}
	r.Register(&zipHelper{})
	r.Register(&tarZstHelper{})

	h, err := r.ByFilename("backup.ZIP")
	require.NoError(t, err)
	assert.Contains(t, h.Formats(), "zip")

	h, err = r.ByFilename("backup.tar.zst")
	require.NoError(t, err)
	assert.Contains(t, h.Formats(), "tar.zst")

	_, err = r.ByFilename("backup.rar")
	assert.Error(t, err)

	// Creation preference order: first preferred suffix with a helper wins.
	_, suffix, err := r.ForCreate([]string{"7z", "zip"})
	require.NoError(t, err)
	assert.Equal(t, "zip", suffix)
}

func TestCollectMembersFallsBackToBasename(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	members, err := collectMembers(root, []string{outside})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "outside.txt", members[0].name)
}
