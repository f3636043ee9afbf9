package jardl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

// buildDirName is the working directory the installer runs in, inside the
// server tree.
const buildDirName = ".swi_build"

// BuildServer is the slice of a server the builder drives: the BUILD state
// transition and the config mutation after a successful install.
type BuildServer interface {
	BeginBuild() error
	EndBuild()
	UpdateConfig(fn func(*types.ServerConfig))
}

// runCommand is swapped out in tests.
var runCommand = func(ctx context.Context, dir string, logPath string, name string, args ...string) error {
	logFile, err := os.Create(logPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	return cmd.Run()
}

// RunBuild downloads the build's installer artifact and runs it to completion
// with the server in BUILD state, then rewrites the server config via
// applyServerJar. The server returns to STOPPED either way.
func (c *Catalog) RunBuild(ctx context.Context, srv BuildServer, serverDir string, javaExe string, stype types.ServerType, build *types.ServerBuild) error {
	if build.DownloadURL == "" {
		if d, err := c.downloader(stype); err == nil {
			if ferr := d.FetchInfo(ctx, build); ferr != nil {
				return ferr
			}
		}
		if build.DownloadURL == "" {
			return errs.ErrNoDownloadFile.WithDetail("%s build %s", build.MCVersion, build.Build)
		}
	}

	if err := srv.BeginBuild(); err != nil {
		return err
	}
	defer srv.EndBuild()

	buildDir := filepath.Join(serverDir, buildDirName)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return err
	}

	artifact := filepath.Join(buildDir, artifactName(build))
	if err := c.download(ctx, build.DownloadURL, artifact); err != nil {
		return err
	}

	args := installerArgs(stype, artifact, serverDir, build)
	logPath := filepath.Join(buildDir, "build.log")
	c.log.Info().Str("type", string(stype)).Str("version", build.MCVersion).
		Str("build", build.Build).Msg("running installer")
	if err := runCommand(ctx, buildDir, logPath, javaExe, args...); err != nil {
		return fmt.Errorf("installer failed (see %s): %w", logPath, err)
	}

	srv.UpdateConfig(func(sc *types.ServerConfig) {
		applyServerJar(sc, stype, build)
	})
	return nil
}

func artifactName(build *types.ServerBuild) string {
	if build.Filename != "" {
		return build.Filename
	}
	return "installer.jar"
}

// installerArgs builds the per-type installer invocation.
func installerArgs(stype types.ServerType, artifact, serverDir string, build *types.ServerBuild) []string {
	switch stype {
	case types.TypeFabric:
		return []string{"-jar", artifact, "server",
			"-mcversion", build.MCVersion, "-loader", build.Build,
			"-downloadMinecraft", "-dir", serverDir}
	case types.TypeQuilt:
		return []string{"-jar", artifact, "install", "server",
			build.MCVersion, build.Build,
			"--download-server", "--install-dir=" + serverDir}
	case types.TypeSpigot:
		return []string{"-jar", artifact, "--rev", build.MCVersion, "-o", serverDir}
	default: // forge, neoforge
		return []string{"-jar", artifact, "--installServer", serverDir}
	}
}

// applyServerJar rewrites the launch configuration for the artifact the
// installer produced. Forge-family installers emit a run script; loader
// installers emit a launch jar; BuildTools emits a versioned jar.
func applyServerJar(sc *types.ServerConfig, stype types.ServerType, build *types.ServerBuild) {
	switch stype {
	case types.TypeForge, types.TypeNeoForge:
		sc.EnableLaunchCommand = true
		sc.LaunchCommand = "/bin/sh run.sh"
	case types.TypeFabric:
		jar := "fabric-server-launch.jar"
		sc.EnableLaunchCommand = false
		sc.LaunchOption.JarFile = &jar
	case types.TypeQuilt:
		jar := "quilt-server-launch.jar"
		sc.EnableLaunchCommand = false
		sc.LaunchOption.JarFile = &jar
	case types.TypeSpigot:
		jar := "spigot-" + build.MCVersion + ".jar"
		sc.EnableLaunchCommand = false
		sc.LaunchOption.JarFile = &jar
	}
	if sc.Installer != nil {
		sc.Installer.RequireBuild = false
	}
}

// download fetches an artifact to disk.
func (c *Catalog) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %s", url, resp.Status)
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
