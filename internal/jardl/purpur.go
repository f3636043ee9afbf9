package jardl

import (
	"context"
	"fmt"

	"github.com/swicore/switcher/pkg/types"
)

const purpurAPI = "https://api.purpurmc.org/v2/purpur"

type purpurDownloader struct {
	c *Catalog
}

func (*purpurDownloader) Type() types.ServerType { return types.TypePurpur }

func (d *purpurDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	var resp struct {
		Versions []string `json:"versions"`
	}
	if err := d.c.getJSON(ctx, purpurAPI, &resp); err != nil {
		return nil, err
	}
	out := make([]types.ServerVersion, 0, len(resp.Versions))
	for i := len(resp.Versions) - 1; i >= 0; i-- {
		out = append(out, types.ServerVersion{Version: resp.Versions[i]})
	}
	return out, nil
}

func (d *purpurDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	var resp struct {
		Builds struct {
			Latest string   `json:"latest"`
			All    []string `json:"all"`
		} `json:"builds"`
	}
	if err := d.c.getJSON(ctx, fmt.Sprintf("%s/%s", purpurAPI, version), &resp); err != nil {
		return nil, err
	}
	out := make([]types.ServerBuild, 0, len(resp.Builds.All))
	for i := len(resp.Builds.All) - 1; i >= 0; i-- {
		b := resp.Builds.All[i]
		out = append(out, types.ServerBuild{
			MCVersion:   version,
			Build:       b,
			DownloadURL: fmt.Sprintf("%s/%s/%s/download", purpurAPI, version, b),
			Filename:    fmt.Sprintf("purpur-%s-%s.jar", version, b),
			Recommended: b == resp.Builds.Latest,
			Loaded:      true,
		})
	}
	return out, nil
}

func (d *purpurDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	build.Loaded = true
	return nil
}
