package jardl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swicore/switcher/pkg/types"
)

func TestNeoForgeMC(t *testing.T) {
	cases := map[string]string{
		"20.4.167":  "1.20.4",
		"20.2.88":   "1.20.2",
		"20.6.119":  "1.20.6",
		"21.0.143":  "1.21",
		"21.1.77":   "1.21.1",
		"badstring": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, neoForgeMC(in), "neoForgeMC(%q)", in)
	}
}

func TestVersionLess(t *testing.T) {
	assert.True(t, versionLess("1.9", "1.20.4"))
	assert.True(t, versionLess("1.20", "1.20.1"))
	assert.False(t, versionLess("1.20.4", "1.20.4"))
	assert.False(t, versionLess("1.21", "1.8.8"))
}

// stubDownloader counts upstream calls so caching is observable.
type stubDownloader struct {
	typeCalls  int
	buildCalls int
	fetchCalls int
}

const stubType = types.ServerType("stub")

func (s *stubDownloader) Type() types.ServerType { return stubType }

func (s *stubDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	s.typeCalls++
	return []types.ServerVersion{{Version: "1.0"}}, nil
}

func (s *stubDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	s.buildCalls++
	return []types.ServerBuild{
		{MCVersion: version, Build: "7", Recommended: true},
	}, nil
}

func (s *stubDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	s.fetchCalls++
	build.DownloadURL = "https://example.invalid/server.jar"
	build.Loaded = true
	return nil
}

func TestCatalogCaching(t *testing.T) {
	c := NewCatalog()
	stub := &stubDownloader{}
	c.Register(stub)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		versions, err := c.Versions(ctx, stubType)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		builds, err := c.Builds(ctx, stubType, "1.0")
		require.NoError(t, err)
		require.Len(t, builds, 1)
	}
	assert.Equal(t, 1, stub.typeCalls)
	assert.Equal(t, 1, stub.buildCalls)

	c.ClearCache()
	_, err := c.Versions(ctx, stubType)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.typeCalls)
}

func TestCatalogBuildFetchesLazyInfo(t *testing.T) {
	c := NewCatalog()
	stub := &stubDownloader{}
	c.Register(stub)

	b, err := c.Build(context.Background(), stubType, "1.0", "7")
	require.NoError(t, err)
	assert.True(t, b.Loaded)
	assert.Equal(t, "https://example.invalid/server.jar", b.DownloadURL)
	assert.Equal(t, 1, stub.fetchCalls)

	_, err = c.Build(context.Background(), stubType, "1.0", "999")
	assert.Error(t, err)
}

func TestCatalogTypesCovered(t *testing.T) {
	c := NewCatalog()
	got := map[types.ServerType]bool{}
	for _, st := range c.Types() {
		got[st] = true
	}
	for _, st := range types.AllServerTypes() {
		assert.True(t, got[st], "missing downloader for %s", st)
	}
}

func TestInstallerArgs(t *testing.T) {
	build := &types.ServerBuild{MCVersion: "1.20.4", Build: "0.15.11"}

	args := installerArgs(types.TypeFabric, "/b/installer.jar", "/srv", build)
	assert.Equal(t, []string{"-jar", "/b/installer.jar", "server",
		"-mcversion", "1.20.4", "-loader", "0.15.11",
		"-downloadMinecraft", "-dir", "/srv"}, args)

	args = installerArgs(types.TypeSpigot, "/b/BuildTools.jar", "/srv", build)
	assert.Equal(t, []string{"-jar", "/b/BuildTools.jar", "--rev", "1.20.4", "-o", "/srv"}, args)

	args = installerArgs(types.TypeForge, "/b/installer.jar", "/srv", build)
	assert.Contains(t, args, "--installServer")
}

func TestApplyServerJar(t *testing.T) {
	build := &types.ServerBuild{MCVersion: "1.20.4", Build: "49"}

	sc := &types.ServerConfig{Installer: &types.InstallerInfo{RequireBuild: true}}
	applyServerJar(sc, types.TypeForge, build)
	assert.True(t, sc.EnableLaunchCommand)
	assert.Equal(t, "/bin/sh run.sh", sc.LaunchCommand)
	assert.False(t, sc.Installer.RequireBuild)

	sc = &types.ServerConfig{Installer: &types.InstallerInfo{RequireBuild: true}}
	applyServerJar(sc, types.TypeFabric, build)
	require.NotNil(t, sc.LaunchOption.JarFile)
	assert.Equal(t, "fabric-server-launch.jar", *sc.LaunchOption.JarFile)
	assert.False(t, sc.Installer.RequireBuild)

	sc = &types.ServerConfig{Installer: &types.InstallerInfo{RequireBuild: true}}
	applyServerJar(sc, types.TypeSpigot, build)
	require.NotNil(t, sc.LaunchOption.JarFile)
	assert.Equal(t, "spigot-1.20.4.jar", *sc.LaunchOption.JarFile)
}

// fakeBuildServer records the BUILD transitions RunBuild drives.
type fakeBuildServer struct {
	cfg     types.ServerConfig
	begun   int
	ended   int
	beginOK bool
}

func (f *fakeBuildServer) BeginBuild() error {
	f.begun++
	if !f.beginOK {
		return assert.AnError
	}
	return nil
}

func (f *fakeBuildServer) EndBuild() { f.ended++ }

func (f *fakeBuildServer) UpdateConfig(fn func(*types.ServerConfig)) { fn(&f.cfg) }

func TestRunBuild(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("PK\x03\x04fake-installer"))
	}))
	defer ts.Close()

	var ranDir string
	var ranArgs []string
	orig := runCommand
	runCommand = func(ctx context.Context, dir, logPath, name string, args ...string) error {
		ranDir = dir
		ranArgs = append([]string{name}, args...)
		return nil
	}
	defer func() { runCommand = orig }()

	serverDir := t.TempDir()
	srv := &fakeBuildServer{beginOK: true}
	srv.cfg.Installer = &types.InstallerInfo{
		Type: types.TypeForge, Version: "1.20.4", Build: "49.0.3", RequireBuild: true,
	}
	build := &types.ServerBuild{
		MCVersion:   "1.20.4",
		Build:       "49.0.3",
		DownloadURL: ts.URL + "/forge-installer.jar",
		Filename:    "forge-1.20.4-49.0.3-installer.jar",
		Loaded:      true,
	}

	c := NewCatalog()
	err := c.RunBuild(context.Background(), srv, serverDir, "java", types.TypeForge, build)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.begun)
	assert.Equal(t, 1, srv.ended)
	assert.Equal(t, filepath.Join(serverDir, ".swi_build"), ranDir)
	assert.Equal(t, "java", ranArgs[0])
	assert.Contains(t, ranArgs, "--installServer")

	artifact := filepath.Join(serverDir, ".swi_build", build.Filename)
	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fake-installer")

	assert.True(t, srv.cfg.EnableLaunchCommand)
	assert.False(t, srv.cfg.Installer.RequireBuild)
}

func TestRunBuildRefusedWhileBusy(t *testing.T) {
	srv := &fakeBuildServer{beginOK: false}
	build := &types.ServerBuild{
		MCVersion: "1.20.4", Build: "1",
		DownloadURL: "https://example.invalid/x.jar", Loaded: true,
	}
	c := NewCatalog()
	err := c.RunBuild(context.Background(), srv, t.TempDir(), "java", types.TypeForge, build)
	assert.Error(t, err)
	assert.Equal(t, 0, srv.ended)
}
