// Package core assembles the daemon: it owns the server registry and wires
// the config, database, file manager, backup engine, java registry and jar
// catalog together.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/swicore/switcher/internal/archive"
	"github.com/swicore/switcher/internal/backup"
	"github.com/swicore/switcher/internal/config"
	"github.com/swicore/switcher/internal/db"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/event"
	"github.com/swicore/switcher/internal/files"
	"github.com/swicore/switcher/internal/jardl"
	"github.com/swicore/switcher/internal/java"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/internal/server"
	"github.com/swicore/switcher/pkg/types"
)

// Switcher is the daemon core. One instance lives per process.
type Switcher struct {
	cfg     *config.Config
	bus     *event.Bus
	store   *db.Store
	files   *files.Manager
	watcher *files.Watcher
	backups *backup.Engine
	javas   *java.Registry
	catalog *jardl.Catalog
	log     zerolog.Logger

	mu      sync.Mutex
	servers map[string]*server.Server
	order   []string // registration order; shutdown walks it in reverse
}

// New builds the core from a loaded config. Servers registered in the config
// are instantiated; a server whose directory has no config file is logged and
// skipped rather than failing the whole daemon.
func New(ctx context.Context, cfg *config.Config) (*Switcher, error) {
	bus := event.NewBus()

	store, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	fm, err := files.NewManager(cfg.RootDirectory, bus, archive.NewRegistry())
	if err != nil {
		store.Close()
		return nil, err
	}

	engine, err := backup.New(store, fm, bus, cfg.Backup)
	if err != nil {
		store.Close()
		return nil, err
	}

	javas := java.NewRegistry()
	javas.Load(ctx, cfg.Java)

	s := &Switcher{
		cfg:     cfg,
		bus:     bus,
		store:   store,
		files:   fm,
		backups: engine,
		javas:   javas,
		catalog: jardl.NewCatalog(),
		log:     logging.WithComponent("core"),
		servers: map[string]*server.Server{},
	}

	if w, err := fm.Watch(); err != nil {
		s.log.Warn().Err(err).Msg("filesystem watcher unavailable")
	} else {
		s.watcher = w
	}

	s.loadRegistry()

	// Record the completed backup on the owning server's config.
	bus.Subscribe((types.BackupEnd{}).EventType(), event.PriorityMonitor, s.onBackupEnd)

	return s, nil
}

// loadRegistry instantiates every server listed in the global config.
func (s *Switcher) loadRegistry() {
	for id, dir := range s.cfg.Servers {
		id = strings.ToLower(id)
		dir = s.resolveDir(id, dir)
		sc, err := config.LoadServerConfig(dir)
		if err != nil {
			s.log.Error().Str("server", id).Str("dir", dir).Err(err).
				Msg("server config unreadable, skipping registration")
			continue
		}
		s.register(id, dir, sc)
	}
}

// resolveDir maps a config directory entry to an absolute path. Relative
// entries live under the root directory.
func (s *Switcher) resolveDir(id, dir string) string {
	if dir == "" {
		dir = id
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.cfg.RootDirectory, dir)
	}
	return filepath.Clean(dir)
}

func (s *Switcher) register(id, dir string, sc *types.ServerConfig) *server.Server {
	srv := server.New(id, dir, sc, s.cfg, s.javas, s.bus)
	s.mu.Lock()
	s.servers[id] = srv
	s.order = append(s.order, id)
	s.mu.Unlock()
	return srv
}

var serverIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// NormalizeID lowercases and validates a server id.
func NormalizeID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if !serverIDRe.MatchString(id) {
		return "", fmt.Errorf("invalid server id %q", id)
	}
	return id, nil
}

// Server resolves a registered server by id.
func (s *Switcher) Server(id string) (*server.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[strings.ToLower(id)]
	if !ok {
		return nil, errs.ErrServerNotFound.WithDetail("%s", id)
	}
	return srv, nil
}

// Servers lists all registered servers in registration order.
func (s *Switcher) Servers() []*server.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*server.Server, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.servers[id])
	}
	return out
}

// CreateServer registers a new server, creates its directory and persists
// both the per-server and the global config.
func (s *Switcher) CreateServer(ctx context.Context, id, dir string, sc *types.ServerConfig) (*server.Server, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	_, exists := s.servers[id]
	s.mu.Unlock()
	if exists {
		return nil, errs.ErrServerExists.WithDetail("%s", id)
	}

	abs := s.resolveDir(id, dir)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create server directory: %w", err)
	}

	if sc == nil {
		sc = &types.ServerConfig{}
	}
	if sc.Name == "" {
		sc.Name = id
	}
	sc.Type = types.ParseServerType(string(sc.Type))
	now := time.Now()
	sc.CreatedAt = &now
	if err := config.SaveServerConfig(abs, sc); err != nil {
		return nil, err
	}

	srv := s.register(id, abs, sc)
	s.cfg.Servers[id] = abs
	if err := s.cfg.Save(); err != nil {
		return nil, err
	}
	s.log.Info().Str("server", id).Str("dir", abs).Str("type", string(sc.Type)).Msg("server created")
	return srv, nil
}

// ImportServer registers an existing server directory. The directory must
// already carry a config file.
func (s *Switcher) ImportServer(ctx context.Context, id, dir string) (*server.Server, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	_, exists := s.servers[id]
	s.mu.Unlock()
	if exists {
		return nil, errs.ErrServerExists.WithDetail("%s", id)
	}

	abs := s.resolveDir(id, dir)
	sc, err := config.LoadServerConfig(abs)
	if os.IsNotExist(err) {
		return nil, errs.ErrNotExistsConfig.WithDetail("%s", abs)
	}
	if err != nil {
		return nil, err
	}

	srv := s.register(id, abs, sc)
	s.cfg.Servers[id] = abs
	if err := s.cfg.Save(); err != nil {
		return nil, err
	}
	s.log.Info().Str("server", id).Str("dir", abs).Msg("server imported")
	return srv, nil
}

// DeleteServer unregisters a stopped server. With removeFiles the server
// directory is deleted too.
func (s *Switcher) DeleteServer(ctx context.Context, id string, removeFiles bool) error {
	srv, err := s.Server(id)
	if err != nil {
		return err
	}
	if srv.State().IsRunning() {
		return errs.ErrServerProcessing.WithDetail("%s is %s", srv.ID, srv.State())
	}

	s.mu.Lock()
	delete(s.servers, srv.ID)
	for i, oid := range s.order {
		if oid == srv.ID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	delete(s.cfg.Servers, srv.ID)
	if err := s.cfg.Save(); err != nil {
		return err
	}
	if removeFiles {
		if err := os.RemoveAll(srv.Dir); err != nil {
			s.log.Error().Str("server", srv.ID).Err(err).Msg("server directory removal failed")
		}
	}
	s.log.Info().Str("server", srv.ID).Bool("removed_files", removeFiles).Msg("server deleted")
	return nil
}

// SaveServerConfig persists a server's in-memory config to its directory.
func (s *Switcher) SaveServerConfig(srv *server.Server) error {
	sc := srv.Config()
	return config.SaveServerConfig(srv.Dir, &sc)
}

// Start launches a server. A pending installer build runs instead of the
// launch; the server moves through BUILD and stays stopped, and the client
// observes the transitions on the bus.
func (s *Switcher) Start(ctx context.Context, id string) error {
	srv, err := s.Server(id)
	if err != nil {
		return err
	}

	if srv.RequiresBuild() {
		go s.runBuild(srv)
		return nil
	}

	cfg := srv.Config()
	meta := cfg.Type.Meta()
	if !meta.Proxy && meta.StopCommand == "stop" {
		accepted, exists, err := server.EulaValue(srv.Dir)
		if err != nil {
			return err
		}
		if exists && !accepted {
			return errs.ErrEulaNotAccepted.WithDetail("%s", srv.ID)
		}
	}
	return srv.Start(ctx)
}

// runBuild resolves the pending catalog build and runs its installer.
func (s *Switcher) runBuild(srv *server.Server) {
	cfg := srv.Config()
	inst := cfg.Installer
	if inst == nil {
		return
	}

	ctx := context.Background()
	build, err := s.catalog.Build(ctx, inst.Type, inst.Version, inst.Build)
	if err != nil {
		s.log.Error().Str("server", srv.ID).Err(err).Msg("pending build unresolvable")
		return
	}

	opt := s.cfg.EffectiveLaunchOption(&cfg)
	javaExe := "java"
	if opt.JavaExecutable != nil && *opt.JavaExecutable != "" {
		javaExe = *opt.JavaExecutable
	} else if opt.JavaPreset != nil && *opt.JavaPreset != "" {
		if exe, err := s.javas.Executable(*opt.JavaPreset); err == nil {
			javaExe = exe
		}
	}

	if err := s.catalog.RunBuild(ctx, srv, srv.Dir, javaExe, inst.Type, build); err != nil {
		s.log.Error().Str("server", srv.ID).Err(err).Msg("installer build failed")
		return
	}
	if err := s.SaveServerConfig(srv); err != nil {
		s.log.Error().Str("server", srv.ID).Err(err).Msg("config save after build failed")
	}
}

// InstallJar records a catalog build on a server and, for direct-download
// types, downloads the jar into the server directory as a tracked task. Types
// whose artifact is an installer keep require_build set; the next Start runs
// the build.
func (s *Switcher) InstallJar(ctx context.Context, id string, stype types.ServerType, version, buildID string) (*files.Task, error) {
	srv, err := s.Server(id)
	if err != nil {
		return nil, err
	}
	if srv.State().IsRunning() {
		return nil, errs.ErrServerProcessing.WithDetail("%s is %s", srv.ID, srv.State())
	}

	build, err := s.catalog.Build(ctx, stype, version, buildID)
	if err != nil {
		return nil, err
	}

	srv.UpdateConfig(func(sc *types.ServerConfig) {
		sc.Type = stype
		sc.Installer = &types.InstallerInfo{
			Type: stype, Version: version, Build: buildID,
			RequireBuild: build.RequireBuild,
		}
	})

	var task *files.Task
	if !build.RequireBuild {
		filename := build.Filename
		if filename == "" {
			filename = "server.jar"
		}
		real := filepath.Join(srv.Dir, filename)
		virtual, err := s.files.VirtualPath(real)
		if err != nil {
			// Server directory outside the managed root; keep a display path.
			virtual = "/" + filename
		}
		task, err = s.files.Download(build.DownloadURL, files.Path{Real: real, Virtual: virtual}, srv.ID)
		if err != nil {
			return nil, err
		}
		srv.UpdateConfig(func(sc *types.ServerConfig) {
			sc.LaunchOption.JarFile = &filename
		})
	}

	if err := s.SaveServerConfig(srv); err != nil {
		return nil, err
	}
	return task, nil
}

// backupTarget snapshots the fields the backup engine needs, generating and
// persisting the source id on first use.
func (s *Switcher) backupTarget(srv *server.Server) (backup.Target, error) {
	var generated bool
	srv.UpdateConfig(func(sc *types.ServerConfig) {
		if sc.SourceID == nil {
			sid := uuid.New()
			sc.SourceID = &sid
			generated = true
		}
	})
	if generated {
		if err := s.SaveServerConfig(srv); err != nil {
			return backup.Target{}, err
		}
	}
	cfg := srv.Config()
	return backup.Target{
		ServerID:     srv.ID,
		Dir:          srv.Dir,
		SourceID:     *cfg.SourceID,
		LastBackupID: cfg.LastBackupID,
	}, nil
}

// CreateBackup starts a full or snapshot backup of a server.
func (s *Switcher) CreateBackup(ctx context.Context, id string, snapshot bool, comments string) (*files.Task, uuid.UUID, error) {
	srv, err := s.Server(id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	target, err := s.backupTarget(srv)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if snapshot {
		return s.backups.CreateSnapshot(ctx, target, comments)
	}
	return s.backups.CreateFull(ctx, target, comments)
}

// RestoreBackup restores a backup into a stopped server's directory.
func (s *Switcher) RestoreBackup(ctx context.Context, id string, backupID uuid.UUID) (*files.Task, error) {
	srv, err := s.Server(id)
	if err != nil {
		return nil, err
	}
	if srv.State().IsRunning() {
		return nil, errs.ErrServerProcessing.WithDetail("%s is %s", srv.ID, srv.State())
	}
	target, err := s.backupTarget(srv)
	if err != nil {
		return nil, err
	}
	return s.backups.Restore(ctx, target, backupID)
}

// ListBackups returns a server's backups, newest first. A server that never
// backed up has no source id yet and lists empty.
func (s *Switcher) ListBackups(ctx context.Context, id string) ([]*types.Backup, error) {
	srv, err := s.Server(id)
	if err != nil {
		return nil, err
	}
	cfg := srv.Config()
	if cfg.SourceID == nil {
		return nil, nil
	}
	return s.store.ListBackupsBySource(ctx, *cfg.SourceID)
}

// PreviewBackup compares the server's live tree against its latest snapshot.
func (s *Switcher) PreviewBackup(ctx context.Context, id string, snapshot bool) (*types.BackupPreview, error) {
	srv, err := s.Server(id)
	if err != nil {
		return nil, err
	}
	target, err := s.backupTarget(srv)
	if err != nil {
		return nil, err
	}
	return s.backups.Preview(ctx, target, snapshot)
}

// onBackupEnd persists the completed backup id on the owning server.
func (s *Switcher) onBackupEnd(ev types.Event) {
	end, ok := ev.(types.BackupEnd)
	if !ok || end.Result != types.ResultSuccess {
		return
	}
	srv, err := s.Server(end.ServerID)
	if err != nil {
		return
	}
	now := time.Now()
	srv.UpdateConfig(func(sc *types.ServerConfig) {
		id := end.BackupID
		sc.LastBackupID = &id
		sc.LastBackupAt = &now
	})
	if err := s.SaveServerConfig(srv); err != nil {
		s.log.Error().Str("server", end.ServerID).Err(err).Msg("config save after backup failed")
	}
}

// Bus exposes the event bus for API subscriptions.
func (s *Switcher) Bus() *event.Bus { return s.bus }

// Store exposes the persistence gateway.
func (s *Switcher) Store() *db.Store { return s.store }

// Files exposes the file manager.
func (s *Switcher) Files() *files.Manager { return s.files }

// Backups exposes the backup engine.
func (s *Switcher) Backups() *backup.Engine { return s.backups }

// Javas exposes the java preset registry.
func (s *Switcher) Javas() *java.Registry { return s.javas }

// Catalog exposes the jar catalog.
func (s *Switcher) Catalog() *jardl.Catalog { return s.catalog }

// Config exposes the global config.
func (s *Switcher) Config() *config.Config { return s.cfg }

// Shutdown stops every running server in reverse registration order, waits
// for the children to exit and closes the core's resources. A server that
// ignores its stop command is logged and left to the supervisor; it is never
// force-killed here.
func (s *Switcher) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ordered := make([]*server.Server, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		ordered = append(ordered, s.servers[s.order[i]])
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, srv := range ordered {
		if !srv.State().IsRunning() {
			continue
		}
		srv := srv
		if err := srv.Stop(ctx); err != nil {
			s.log.Warn().Str("server", srv.ID).Err(err).Msg("stop during shutdown refused")
			continue
		}
		g.Go(func() error {
			cfg := srv.Config()
			timeout := time.Duration(s.cfg.ShutdownTimeout(&cfg)) * time.Second
			if err := srv.WaitForShutdown(ctx, timeout); err != nil {
				s.log.Error().Str("server", srv.ID).Err(err).Msg("server did not stop in time")
			}
			return nil
		})
	}
	g.Wait()

	if s.watcher != nil {
		s.watcher.Close()
	}
	if err := s.cfg.Save(); err != nil {
		s.log.Error().Err(err).Msg("config save on shutdown failed")
	}
	return s.store.Close()
}
