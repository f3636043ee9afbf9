package jardl

import (
	"context"
	"fmt"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

// loaderDownloader serves the Fabric and Quilt meta APIs, which share a
// shape: game versions, loader versions per game, and a universal installer
// jar resolved lazily.
type loaderDownloader struct {
	c            *Catalog
	stype        types.ServerType
	meta         string // API base, e.g. https://meta.fabricmc.net/v2
	requireBuild bool
}

func (d *loaderDownloader) Type() types.ServerType { return d.stype }

func (d *loaderDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	var resp []struct {
		Version string `json:"version"`
		Stable  bool   `json:"stable"`
	}
	if err := d.c.getJSON(ctx, d.meta+"/versions/game", &resp); err != nil {
		return nil, err
	}
	var out []types.ServerVersion
	for _, v := range resp {
		if v.Stable || d.stype == types.TypeQuilt { // quilt meta has no stable flag set
			out = append(out, types.ServerVersion{Version: v.Version})
		}
	}
	return out, nil
}

func (d *loaderDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	var resp []struct {
		Loader struct {
			Version string `json:"version"`
			Stable  bool   `json:"stable"`
		} `json:"loader"`
	}
	url := fmt.Sprintf("%s/versions/loader/%s", d.meta, version)
	if err := d.c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	out := make([]types.ServerBuild, 0, len(resp))
	for i, b := range resp {
		out = append(out, types.ServerBuild{
			MCVersion:    version,
			Build:        b.Loader.Version,
			Recommended:  i == 0,
			RequireBuild: d.requireBuild,
		})
	}
	return out, nil
}

// FetchInfo resolves the newest installer jar; the builder runs it with the
// chosen loader version.
func (d *loaderDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	var resp []struct {
		Version string `json:"version"`
		URL     string `json:"url"`
		Maven   string `json:"maven"`
	}
	if err := d.c.getJSON(ctx, d.meta+"/versions/installer", &resp); err != nil {
		return err
	}
	if len(resp) == 0 {
		return errs.ErrNoDownloadFile.WithDetail("%s has no installer", d.stype)
	}
	build.DownloadURL = resp[0].URL
	if build.DownloadURL == "" {
		return errs.ErrNoDownloadFile.WithDetail("%s installer %s has no url", d.stype, resp[0].Version)
	}
	build.Filename = fmt.Sprintf("%s-installer-%s.jar", d.stype, resp[0].Version)
	build.Loaded = true
	return nil
}
