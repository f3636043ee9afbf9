package jardl

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

const spongeAPI = "https://dl-api.spongepowered.org/v2/groups/org.spongepowered/artifacts/spongevanilla"

// spongeDownloader reads the SpongePowered download API. Artifact version
// keys are resolved to a concrete jar URL lazily.
type spongeDownloader struct {
	c *Catalog
}

func (*spongeDownloader) Type() types.ServerType { return types.TypeSpongeVanilla }

func (d *spongeDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	var resp struct {
		Tags struct {
			Minecraft []string `json:"minecraft"`
		} `json:"tags"`
	}
	if err := d.c.getJSON(ctx, spongeAPI, &resp); err != nil {
		return nil, err
	}
	out := make([]types.ServerVersion, 0, len(resp.Tags.Minecraft))
	for _, v := range resp.Tags.Minecraft {
		out = append(out, types.ServerVersion{Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (d *spongeDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	var resp struct {
		Artifacts map[string]struct {
			Recommended bool `json:"recommended"`
		} `json:"artifacts"`
	}
	u := fmt.Sprintf("%s/versions?tags=minecraft:%s&limit=25", spongeAPI, url.QueryEscape(version))
	if err := d.c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(resp.Artifacts))
	for k := range resp.Artifacts {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	out := make([]types.ServerBuild, 0, len(keys))
	for i, k := range keys {
		out = append(out, types.ServerBuild{
			MCVersion:   version,
			Build:       k,
			Recommended: resp.Artifacts[k].Recommended || i == 0,
		})
	}
	return out, nil
}

func (d *spongeDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	var resp struct {
		Assets []struct {
			Classifier  string `json:"classifier"`
			Extension   string `json:"extension"`
			DownloadURL string `json:"downloadUrl"`
		} `json:"assets"`
	}
	u := fmt.Sprintf("%s/versions/%s", spongeAPI, url.PathEscape(build.Build))
	if err := d.c.getJSON(ctx, u, &resp); err != nil {
		return err
	}
	for _, a := range resp.Assets {
		if a.Extension == "jar" && (a.Classifier == "" || a.Classifier == "universal") {
			build.DownloadURL = a.DownloadURL
			build.Filename = fmt.Sprintf("spongevanilla-%s.jar", build.Build)
			build.Loaded = true
			return nil
		}
	}
	return errs.ErrNoDownloadFile.WithDetail("spongevanilla %s has no jar asset", build.Build)
}
