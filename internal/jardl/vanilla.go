package jardl

import (
	"context"
	"time"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

const pistonManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

// vanillaDownloader serves Mojang's official server jar via piston-meta.
// Download URLs live in the per-version manifest, so builds are lazy.
type vanillaDownloader struct {
	c *Catalog
}

type pistonManifest struct {
	Latest struct {
		Release string `json:"release"`
	} `json:"latest"`
	Versions []struct {
		ID          string    `json:"id"`
		Type        string    `json:"type"`
		URL         string    `json:"url"`
		ReleaseTime time.Time `json:"releaseTime"`
	} `json:"versions"`
}

type pistonVersion struct {
	Downloads struct {
		Server struct {
			URL string `json:"url"`
		} `json:"server"`
	} `json:"downloads"`
	JavaVersion struct {
		MajorVersion int `json:"majorVersion"`
	} `json:"javaVersion"`
}

func (*vanillaDownloader) Type() types.ServerType { return types.TypeVanilla }

func (d *vanillaDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	var m pistonManifest
	if err := d.c.getJSON(ctx, pistonManifestURL, &m); err != nil {
		return nil, err
	}
	out := make([]types.ServerVersion, 0, len(m.Versions))
	for _, v := range m.Versions {
		if v.Type == "release" {
			out = append(out, types.ServerVersion{Version: v.ID})
		}
	}
	return out, nil
}

func (d *vanillaDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	var m pistonManifest
	if err := d.c.getJSON(ctx, pistonManifestURL, &m); err != nil {
		return nil, err
	}
	for _, v := range m.Versions {
		if v.ID != version {
			continue
		}
		updated := v.ReleaseTime
		return []types.ServerBuild{{
			MCVersion:   version,
			Build:       v.URL, // the manifest URL doubles as the build key
			Filename:    "server.jar",
			Updated:     &updated,
			Recommended: version == m.Latest.Release,
		}}, nil
	}
	return nil, errs.ErrNoDownloadFile.WithDetail("vanilla %s", version)
}

func (d *vanillaDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	var v pistonVersion
	if err := d.c.getJSON(ctx, build.Build, &v); err != nil {
		return err
	}
	if v.Downloads.Server.URL == "" {
		return errs.ErrNoDownloadFile.WithDetail("vanilla %s has no server jar", build.MCVersion)
	}
	build.DownloadURL = v.Downloads.Server.URL
	build.JavaMajorVersion = v.JavaVersion.MajorVersion
	build.Loaded = true
	return nil
}
