package jardl

import (
	"context"
	"fmt"
	"strconv"

	"github.com/swicore/switcher/pkg/types"
)

const bungeeJenkinsURL = "https://ci.md-5.net/job/BungeeCord"

// bungeeDownloader reads the upstream Jenkins. BungeeCord is not tied to a
// Minecraft version, so a single pseudo-version carries all builds.
type bungeeDownloader struct {
	c *Catalog
}

const bungeeVersion = "latest"

func (*bungeeDownloader) Type() types.ServerType { return types.TypeBungeeCord }

func (d *bungeeDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	return []types.ServerVersion{{Version: bungeeVersion}}, nil
}

func (d *bungeeDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	var resp struct {
		Builds []struct {
			Number int    `json:"number"`
			Result string `json:"result"`
		} `json:"builds"`
	}
	if err := d.c.getJSON(ctx, bungeeJenkinsURL+"/api/json?tree=builds[number,result]", &resp); err != nil {
		return nil, err
	}
	var out []types.ServerBuild
	for _, b := range resp.Builds {
		if b.Result != "SUCCESS" {
			continue
		}
		out = append(out, types.ServerBuild{
			MCVersion:   version,
			Build:       strconv.Itoa(b.Number),
			DownloadURL: fmt.Sprintf("%s/%d/artifact/bootstrap/target/BungeeCord.jar", bungeeJenkinsURL, b.Number),
			Filename:    "BungeeCord.jar",
			Recommended: len(out) == 0, // newest successful build comes first
			Loaded:      true,
		})
	}
	return out, nil
}

func (d *bungeeDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	build.Loaded = true
	return nil
}
