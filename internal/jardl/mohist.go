package jardl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/swicore/switcher/pkg/types"
)

const mohistAPI = "https://mohistmc.com/api/v2/projects"

// mohistDownloader serves the MohistMC project family: mohist, banner and
// youer share one API.
type mohistDownloader struct {
	c       *Catalog
	stype   types.ServerType
	project string
}

func (d *mohistDownloader) Type() types.ServerType { return d.stype }

func (d *mohistDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	var resp struct {
		Versions []string `json:"versions"`
	}
	if err := d.c.getJSON(ctx, fmt.Sprintf("%s/%s", mohistAPI, d.project), &resp); err != nil {
		return nil, err
	}
	out := make([]types.ServerVersion, 0, len(resp.Versions))
	for i := len(resp.Versions) - 1; i >= 0; i-- {
		out = append(out, types.ServerVersion{Version: resp.Versions[i]})
	}
	return out, nil
}

func (d *mohistDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	var resp struct {
		Builds []struct {
			Number    int    `json:"number"`
			FileName  string `json:"fileName"`
			URL       string `json:"url"`
			CreatedAt int64  `json:"createdAt"` // unix millis
		} `json:"builds"`
	}
	url := fmt.Sprintf("%s/%s/%s/builds", mohistAPI, d.project, version)
	if err := d.c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	out := make([]types.ServerBuild, 0, len(resp.Builds))
	for i := len(resp.Builds) - 1; i >= 0; i-- {
		b := resp.Builds[i]
		updated := time.UnixMilli(b.CreatedAt)
		out = append(out, types.ServerBuild{
			MCVersion:   version,
			Build:       strconv.Itoa(b.Number),
			DownloadURL: b.URL,
			Filename:    b.FileName,
			Updated:     &updated,
			Recommended: i == len(resp.Builds)-1,
			Loaded:      true,
		})
	}
	return out, nil
}

func (d *mohistDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	build.Loaded = true
	return nil
}
