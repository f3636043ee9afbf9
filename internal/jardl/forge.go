package jardl

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

const (
	forgePromotionsURL = "https://files.minecraftforge.net/net/minecraftforge/forge/promotions_slim.json"
	forgeMavenURL      = "https://maven.minecraftforge.net/net/minecraftforge/forge"
	neoForgeMavenURL   = "https://maven.neoforged.net/releases/net/neoforged/neoforge"
)

// forgeDownloader lists the promoted Forge builds per Minecraft version. The
// artifact is an installer, so every build requires the build step.
type forgeDownloader struct {
	c *Catalog
}

type forgePromotions struct {
	Promos map[string]string `json:"promos"`
}

func (*forgeDownloader) Type() types.ServerType { return types.TypeForge }

func (d *forgeDownloader) promotions(ctx context.Context) (*forgePromotions, error) {
	var p forgePromotions
	if err := d.c.getJSON(ctx, forgePromotionsURL, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *forgeDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	p, err := d.promotions(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []types.ServerVersion
	for key := range p.Promos {
		// Keys look like "1.20.1-latest" and "1.20.1-recommended".
		mc, _, ok := strings.Cut(key, "-")
		if ok && !seen[mc] {
			seen[mc] = true
			out = append(out, types.ServerVersion{Version: mc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (d *forgeDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	p, err := d.promotions(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.ServerBuild
	add := func(forgeVersion string, recommended bool) {
		for _, b := range out {
			if b.Build == forgeVersion {
				return
			}
		}
		full := version + "-" + forgeVersion
		out = append(out, types.ServerBuild{
			MCVersion:    version,
			Build:        forgeVersion,
			DownloadURL:  fmt.Sprintf("%s/%s/forge-%s-installer.jar", forgeMavenURL, full, full),
			Filename:     fmt.Sprintf("forge-%s-installer.jar", full),
			Recommended:  recommended,
			RequireBuild: true,
			Loaded:       true,
		})
	}
	if v, ok := p.Promos[version+"-recommended"]; ok {
		add(v, true)
	}
	if v, ok := p.Promos[version+"-latest"]; ok {
		add(v, false)
	}
	if len(out) == 0 {
		return nil, errs.ErrNoDownloadFile.WithDetail("forge %s", version)
	}
	return out, nil
}

func (d *forgeDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	build.Loaded = true
	return nil
}

// neoForgeDownloader reads the NeoForge maven metadata. NeoForge versions
// encode the Minecraft version: 20.4.167 targets 1.20.4.
type neoForgeDownloader struct {
	c *Catalog
}

type mavenMetadata struct {
	XMLName    xml.Name `xml:"metadata"`
	Versioning struct {
		Latest   string   `xml:"latest"`
		Versions []string `xml:"versions>version"`
	} `xml:"versioning"`
}

func (*neoForgeDownloader) Type() types.ServerType { return types.TypeNeoForge }

func (d *neoForgeDownloader) metadata(ctx context.Context) (*mavenMetadata, error) {
	data, err := d.c.getText(ctx, neoForgeMavenURL+"/maven-metadata.xml")
	if err != nil {
		return nil, err
	}
	var m mavenMetadata
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("neoforge metadata: %w", err)
	}
	return &m, nil
}

// neoForgeMC maps a NeoForge version like "20.4.167" to "1.20.4".
func neoForgeMC(v string) string {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return ""
	}
	if parts[1] == "0" {
		return "1." + parts[0]
	}
	return "1." + parts[0] + "." + parts[1]
}

func (d *neoForgeDownloader) ListVersions(ctx context.Context) ([]types.ServerVersion, error) {
	m, err := d.metadata(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []types.ServerVersion
	for _, v := range m.Versioning.Versions {
		mc := neoForgeMC(v)
		if mc != "" && !seen[mc] {
			seen[mc] = true
			out = append(out, types.ServerVersion{Version: mc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (d *neoForgeDownloader) ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error) {
	m, err := d.metadata(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.ServerBuild
	for i := len(m.Versioning.Versions) - 1; i >= 0; i-- {
		v := m.Versioning.Versions[i]
		if neoForgeMC(v) != version {
			continue
		}
		out = append(out, types.ServerBuild{
			MCVersion:    version,
			Build:        v,
			DownloadURL:  fmt.Sprintf("%s/%s/neoforge-%s-installer.jar", neoForgeMavenURL, v, v),
			Filename:     fmt.Sprintf("neoforge-%s-installer.jar", v),
			Recommended:  v == m.Versioning.Latest,
			RequireBuild: true,
			Loaded:       true,
		})
	}
	if len(out) == 0 {
		return nil, errs.ErrNoDownloadFile.WithDetail("neoforge %s", version)
	}
	return out, nil
}

func (d *neoForgeDownloader) FetchInfo(ctx context.Context, build *types.ServerBuild) error {
	build.Loaded = true
	return nil
}
