// Package jardl is the jar catalog: per-server-type downloaders for upstream
// version/build listings, plus the installer build step some types require.
package jardl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/pkg/types"
)

// Downloader lists the upstream versions and builds of one server type.
type Downloader interface {
	Type() types.ServerType
	ListVersions(ctx context.Context) ([]types.ServerVersion, error)
	ListBuilds(ctx context.Context, version string) ([]types.ServerBuild, error)
	// FetchInfo resolves lazy fields (download URL, java requirement) in
	// place and marks the build loaded.
	FetchInfo(ctx context.Context, build *types.ServerBuild) error
}

// Catalog holds one downloader per supported type and caches upstream
// listings until ClearCache.
type Catalog struct {
	client      *http.Client
	log         zerolog.Logger
	downloaders map[types.ServerType]Downloader

	versionCache *ttlcache.Cache[string, []types.ServerVersion]
	buildCache   *ttlcache.Cache[string, []types.ServerBuild]
}

const cacheTTL = 30 * time.Minute

// NewCatalog registers every supported downloader.
func NewCatalog() *Catalog {
	c := &Catalog{
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         logging.WithComponent("jardl"),
		downloaders: map[types.ServerType]Downloader{},
		versionCache: ttlcache.New(
			ttlcache.WithTTL[string, []types.ServerVersion](cacheTTL)),
		buildCache: ttlcache.New(
			ttlcache.WithTTL[string, []types.ServerBuild](cacheTTL)),
	}
	c.Register(
		&vanillaDownloader{c: c},
		&paperDownloader{c: c, stype: types.TypePaper, project: "paper"},
		&paperDownloader{c: c, stype: types.TypeFolia, project: "folia"},
		&paperDownloader{c: c, stype: types.TypeWaterfall, project: "waterfall"},
		&paperDownloader{c: c, stype: types.TypeVelocity, project: "velocity"},
		&purpurDownloader{c: c},
		&loaderDownloader{c: c, stype: types.TypeFabric, meta: "https://meta.fabricmc.net/v2", requireBuild: true},
		&loaderDownloader{c: c, stype: types.TypeQuilt, meta: "https://meta.quiltmc.org/v3", requireBuild: true},
		&spigotDownloader{c: c},
		&forgeDownloader{c: c},
		&neoForgeDownloader{c: c},
		&mohistDownloader{c: c, stype: types.TypeMohist, project: "mohist"},
		&mohistDownloader{c: c, stype: types.TypeBanner, project: "banner"},
		&mohistDownloader{c: c, stype: types.TypeYouer, project: "youer"},
		&bungeeDownloader{c: c},
		&spongeDownloader{c: c},
	)
	go c.versionCache.Start()
	go c.buildCache.Start()
	return c
}

// Register adds or replaces downloaders, keyed by their type.
func (c *Catalog) Register(ds ...Downloader) {
	for _, d := range ds {
		c.downloaders[d.Type()] = d
	}
}

// Types lists the server types a downloader exists for, sorted.
func (c *Catalog) Types() []types.ServerType {
	out := make([]types.ServerType, 0, len(c.downloaders))
	for t := range c.downloaders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Catalog) downloader(stype types.ServerType) (Downloader, error) {
	d, ok := c.downloaders[stype]
	if !ok {
		return nil, errs.ErrNoDownloadFile.WithDetail("no downloader for type %s", stype)
	}
	return d, nil
}

// Versions lists the upstream versions of a type, cached.
func (c *Catalog) Versions(ctx context.Context, stype types.ServerType) ([]types.ServerVersion, error) {
	d, err := c.downloader(stype)
	if err != nil {
		return nil, err
	}
	key := string(stype)
	if item := c.versionCache.Get(key); item != nil {
		return item.Value(), nil
	}
	versions, err := d.ListVersions(ctx)
	if err != nil {
		return nil, err
	}
	c.versionCache.Set(key, versions, ttlcache.DefaultTTL)
	return versions, nil
}

// Builds lists the builds of one version, cached.
func (c *Catalog) Builds(ctx context.Context, stype types.ServerType, version string) ([]types.ServerBuild, error) {
	d, err := c.downloader(stype)
	if err != nil {
		return nil, err
	}
	key := string(stype) + "/" + version
	if item := c.buildCache.Get(key); item != nil {
		return item.Value(), nil
	}
	builds, err := d.ListBuilds(ctx, version)
	if err != nil {
		return nil, err
	}
	c.buildCache.Set(key, builds, ttlcache.DefaultTTL)
	return builds, nil
}

// Build resolves one build of a version, fetching lazy info.
func (c *Catalog) Build(ctx context.Context, stype types.ServerType, version, buildID string) (*types.ServerBuild, error) {
	builds, err := c.Builds(ctx, stype, version)
	if err != nil {
		return nil, err
	}
	d, _ := c.downloader(stype)
	for i := range builds {
		if builds[i].Build == buildID {
			b := builds[i]
			if !b.Loaded {
				if err := d.FetchInfo(ctx, &b); err != nil {
					return nil, err
				}
			}
			return &b, nil
		}
	}
	return nil, errs.ErrNoDownloadFile.WithDetail("%s %s build %s", stype, version, buildID)
}

// ClearCache drops all cached upstream listings.
func (c *Catalog) ClearCache() {
	c.versionCache.DeleteAll()
	c.buildCache.DeleteAll()
}

// getJSON fetches a JSON document into out.
func (c *Catalog) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// getText fetches a small text document (maven metadata, jenkins api).
func (c *Catalog) getText(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
