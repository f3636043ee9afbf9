package jardl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/swicore/switcher/pkg/types"
)

const paperAPI = "https://api.papermc.io/v2/projects"

// paperDownloader covers every PaperMC project: paper, folia, waterfall and
// velocity share one API.
type paperDownloader struct {
	c       *Catalog
	stype   types.ServerType
	project string
}

func (d *paperDownloader) Type() types.ServerType { return d.stype }

func (d *paperDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	var resp struct {
		Versions []string `json:"versions"`
	}
	if err := d.c.getJSON(ctx, fmt.Sprintf("%s/%s", paperAPI, d.project), &resp); err != nil {
		return nil, err
	}
	// Upstream lists oldest first.
	out := make([]types.ServerVersion, 0, len(resp.Versions))
	for i := len(resp.Versions) - 1; i >= 0; i-- {
		out = append(out, types.ServerVersion{Version: resp.Versions[i]})
	}
	return out, nil
}

func (d *paperDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	var resp struct {
		Builds []struct {
			Build     int       `json:"build"`
			Time      time.Time `json:"time"`
			Channel   string    `json:"channel"`
			Downloads struct {
				Application struct {
					Name string `json:"name"`
				} `json:"application"`
			} `json:"downloads"`
		} `json:"builds"`
	}
	url := fmt.Sprintf("%s/%s/versions/%s/builds", paperAPI, d.project, version)
	if err := d.c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	out := make([]types.ServerBuild, 0, len(resp.Builds))
	for i := len(resp.Builds) - 1; i >= 0; i-- {
		b := resp.Builds[i]
		updated := b.Time
		out = append(out, types.ServerBuild{
			MCVersion: version,
			Build:     strconv.Itoa(b.Build),
			DownloadURL: fmt.Sprintf("%s/%s/versions/%s/builds/%d/downloads/%s",
				paperAPI, d.project, version, b.Build, b.Downloads.Application.Name),
			Filename:    b.Downloads.Application.Name,
			Updated:     &updated,
			Recommended: b.Channel == "default",
			Loaded:      true,
		})
	}
	return out, nil
}

func (d *paperDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	build.Loaded = true // nothing lazy in this API
	return nil
}
