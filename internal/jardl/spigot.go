package jardl

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/swicore/switcher/pkg/types"
)

const (
	spigotVersionsURL   = "https://hub.spigotmc.org/versions/"
	spigotBuildToolsURL = "https://hub.spigotmc.org/jenkins/job/BuildTools/lastSuccessfulBuild/artifact/target/BuildTools.jar"
)

// spigotDownloader lists the versions BuildTools can produce. There is no
// prebuilt jar: the single build per version is the BuildTools run itself.
type spigotDownloader struct {
	c *Catalog
}

var spigotVersionRe = regexp.MustCompile(`href="(\d+\.\d+(?:\.\d+)?)\.json"`)

func (*spigotDownloader) Type() types.ServerType { return types.TypeSpigot }

func (d *spigotDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	page, err := d.c.getText(ctx, spigotVersionsURL)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []types.ServerVersion
	for _, m := range spigotVersionRe.FindAllStringSubmatch(string(page), -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, types.ServerVersion{Version: m[1]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return versionLess(out[j].Version, out[i].Version) })
	return out, nil
}

func (d *spigotDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	return []types.ServerBuild{{
		MCVersion:    version,
		Build:        "BuildTools",
		DownloadURL:  spigotBuildToolsURL,
		Filename:     "BuildTools.jar",
		Recommended:  true,
		RequireBuild: true,
		Loaded:       true,
	}}, nil
}

func (d *spigotDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	build.Loaded = true
	return nil
}

// versionLess compares dotted numeric versions ("1.9" < "1.20.4").
func versionLess(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var ai, bi int
		if i < len(as) {
			ai, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bi, _ = strconv.Atoi(bs[i])
		}
		if ai != bi {
			return ai < bi
		}
	}
	return false
}
