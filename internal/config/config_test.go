package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swicore/switcher/pkg/types"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.MaxLogLines)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.FileExists(t, path)

	// Second load round-trips the written defaults.
	cfg2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.RootDirectory, cfg2.RootDirectory)
	assert.Equal(t, cfg.Backup.PreferredSuffixes, cfg2.Backup.PreferredSuffixes)
}

func TestServerConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	stop := "end"
	jar := "paper.jar"
	sc := &types.ServerConfig{
		Name:        "lobby",
		Type:        types.TypeWaterfall,
		StopCommand: &stop,
		LaunchOption: types.LaunchOption{
			JarFile: &jar,
		},
	}
	require.NoError(t, SaveServerConfig(dir, sc))

	got, err := LoadServerConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "lobby", got.Name)
	assert.Equal(t, types.TypeWaterfall, got.Type)
	assert.Equal(t, "paper.jar", *got.LaunchOption.JarFile)
}

func TestLoadServerConfigUnknownType(t *testing.T) {
	dir := t.TempDir()
	sc := &types.ServerConfig{Name: "x", Type: types.ServerType("something-new")}
	require.NoError(t, SaveServerConfig(dir, sc))

	got, err := LoadServerConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, types.TypeUnknown, got.Type)
}

func TestLaunchOptionMerge(t *testing.T) {
	defHeap := 2048
	defJar := "server.jar"
	def := types.LaunchOption{MaxHeapMemory: &defHeap, MinHeapMemory: &defHeap, JarFile: &defJar}

	perHeap := 4096
	per := types.LaunchOption{MaxHeapMemory: &perHeap}

	eff := per.Merge(def)
	assert.Equal(t, 4096, *eff.MaxHeapMemory) // per-server wins
	assert.Equal(t, 2048, *eff.MinHeapMemory) // default fills nil
	assert.Equal(t, "server.jar", *eff.JarFile)
}

func TestStopCommandResolution(t *testing.T) {
	custom := "shutdown now"
	tests := []struct {
		name string
		sc   types.ServerConfig
		want string
	}{
		{"per-server wins", types.ServerConfig{Type: types.TypePaper, StopCommand: &custom}, "shutdown now"},
		{"proxy type", types.ServerConfig{Type: types.TypeBungeeCord}, "end"},
		{"game type", types.ServerConfig{Type: types.TypePaper}, "stop"},
		{"unknown falls back", types.ServerConfig{Type: types.TypeUnknown}, "stop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StopCommand(&tt.sc))
		})
	}
}
