// Package server drives one game-server child process through its lifecycle
// state machine, owning its PTY, log ring and state transitions.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/swicore/switcher/internal/config"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/event"
	"github.com/swicore/switcher/internal/java"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/pkg/types"
)

// Server owns exactly one child process and its log ring. All state
// transitions go through setState so every change is published.
type Server struct {
	ID  string
	Dir string

	global *config.Config
	javas  *java.Registry
	bus    *event.Bus
	log    zerolog.Logger
	ring   *LogRing

	mu                sync.Mutex
	cfg               *types.ServerConfig
	state             types.ServerState
	child             *child
	shutdownToRestart bool
}

// New instantiates a server from its loaded per-server config.
func New(id, dir string, cfg *types.ServerConfig, global *config.Config, javas *java.Registry, bus *event.Bus) *Server {
	return &Server{
		ID:     id,
		Dir:    dir,
		global: global,
		javas:  javas,
		bus:    bus,
		log:    logging.WithServer(id),
		ring:   NewLogRing(global.MaxLogLines),
		cfg:    cfg,
		state:  types.StateStopped,
	}
}

// State returns the current lifecycle state.
func (s *Server) State() types.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns a copy of the per-server config.
func (s *Server) Config() types.ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg
}

// UpdateConfig mutates the in-memory config under the lock. Persistence is
// the caller's concern.
func (s *Server) UpdateConfig(fn func(*types.ServerConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
}

// RequiresBuild reports whether an installer build step is still pending.
func (s *Server) RequiresBuild() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Installer != nil && s.cfg.Installer.RequireBuild
}

// setState must be called with s.mu held.
func (s *Server) setState(next types.ServerState) {
	old := s.state
	if old == next {
		return
	}
	s.state = next
	s.log.Info().Str("old", string(old)).Str("new", string(next)).Msg("state change")
	// Publish outside the lock; handlers may call back into the server.
	s.mu.Unlock()
	s.bus.Publish(types.ServerChangeState{ServerID: s.ID, OldState: old, NewState: next})
	s.mu.Lock()
}

// Start launches the child. The caller resolves pending builds first; Start
// refuses while any child may be alive.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state.IsRunning() {
		if s.state == types.StateBuild {
			s.mu.Unlock()
			return errs.ErrServerProcessing.WithDetail("%s is building", s.ID)
		}
		s.mu.Unlock()
		return errs.ErrAlreadyRunning.WithDetail("%s", s.ID)
	}
	cfg := *s.cfg
	s.mu.Unlock()

	opt := s.global.EffectiveLaunchOption(&cfg)
	javaExe, err := s.resolveJava(opt)
	if err != nil {
		return err
	}

	in := launchInput{ServerID: s.ID, JavaExe: javaExe, Option: opt}
	if cfg.EnableLaunchCommand && cfg.LaunchCommand != "" {
		in.CustomCommand = cfg.LaunchCommand
	}
	args, generated, err := buildArgs(in)
	if err != nil {
		return err
	}
	if generated && opt.EnableFreeMemoryCheck != nil && *opt.EnableFreeMemoryCheck {
		maxHeap := 0
		if opt.MaxHeapMemory != nil {
			maxHeap = *opt.MaxHeapMemory
		}
		if err := checkFreeMemory(maxHeap); err != nil {
			return err
		}
	}

	pre := &types.ServerPreStart{ServerID: s.ID}
	s.bus.Publish(pre)
	if cancelled, reason := pre.Cancelled(); cancelled {
		return errs.ErrCancelled.WithDetail("%s", reason)
	}

	build := &types.ServerLaunchOptionBuild{ServerID: s.ID, Args: args, Generated: generated}
	s.bus.Publish(build)
	args = build.Args

	s.mu.Lock()
	if s.state.IsRunning() {
		s.mu.Unlock()
		return errs.ErrAlreadyRunning.WithDetail("%s", s.ID)
	}
	s.setState(types.StateStarting)

	s.ring.Clear()
	c, err := spawnPTY(s.Dir, args, []string{"SWI_SERVER_ID=" + s.ID}, s.ring)
	if err != nil {
		s.setState(types.StateStopped)
		s.mu.Unlock()
		s.log.Error().Err(err).Strs("args", args).Msg("launch failed")
		return errs.ErrLaunch.WithDetail("%v", err)
	}
	s.child = c
	now := time.Now()
	s.cfg.LastLaunchAt = &now
	s.mu.Unlock()

	go s.supervise(c)

	// Catch immediate startup crashes before reporting success.
	select {
	case <-c.Done():
		if code := c.ExitCode(); code != 0 {
			return errs.ErrLaunch.WithDetail("child exited with code %d", code)
		}
	case <-time.After(250 * time.Millisecond):
	}

	s.mu.Lock()
	if s.state == types.StateStarting {
		s.setState(types.StateRunning)
	}
	s.mu.Unlock()

	s.log.Info().Int("pid", c.PID()).Bool("generated", generated).Msg("server started")
	return nil
}

func (s *Server) resolveJava(opt types.LaunchOption) (string, error) {
	if exe := strValue(opt.JavaExecutable); exe != "" {
		return exe, nil
	}
	if preset := strValue(opt.JavaPreset); preset != "" {
		return s.javas.Executable(preset)
	}
	return "java", nil
}

// supervise waits for the child to exit and settles the state machine. A
// pending restart flag re-invokes Start after a short delay.
func (s *Server) supervise(c *child) {
	<-c.Done()
	code := c.ExitCode()

	s.mu.Lock()
	if s.child != c {
		s.mu.Unlock()
		return
	}
	s.child = nil
	wasStarting := s.state == types.StateStarting
	restart := s.shutdownToRestart
	s.shutdownToRestart = false
	s.setState(types.StateStopped)
	s.mu.Unlock()

	if wasStarting && code != 0 {
		s.log.Error().Int("exit_code", code).Msg("child exited during startup")
	} else {
		s.log.Info().Int("exit_code", code).Msg("child exited")
	}

	if restart {
		time.Sleep(time.Second)
		if err := s.Start(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("restart failed")
		}
	}
}

// Stop writes the stop command to the console and transitions to STOPPING.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case types.StateStarting, types.StateStopping, types.StateBuild:
		return errs.ErrServerProcessing.WithDetail("%s is %s", s.ID, s.state)
	case types.StateRunning, types.StateStarted:
	default:
		return errs.ErrNotRunning.WithDetail("%s", s.ID)
	}

	cmd := config.StopCommand(s.cfg)
	if err := s.child.WriteLine(cmd); err != nil {
		return err
	}
	s.setState(types.StateStopping)
	return nil
}

// Restart stops the server and re-launches it once the child exits.
func (s *Server) Restart(ctx context.Context) error {
	s.mu.Lock()
	s.shutdownToRestart = true
	s.mu.Unlock()
	if err := s.Stop(ctx); err != nil {
		s.mu.Lock()
		s.shutdownToRestart = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// Kill SIGKILLs the child's process group. Never refused while a child is
// alive, regardless of the current state.
func (s *Server) Kill(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil || !s.child.Alive() {
		return errs.ErrNotRunning.WithDetail("%s", s.ID)
	}
	s.setState(types.StateStopping)
	return s.child.Kill()
}

// SendCommand writes one console line to the running child.
func (s *Server) SendCommand(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil || !s.child.Alive() {
		return errs.ErrNotRunning.WithDetail("%s", s.ID)
	}
	return s.child.WriteLine(line)
}

// SetTermSize resizes the child's PTY.
func (s *Server) SetTermSize(cols, rows uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil || !s.child.Alive() {
		return errs.ErrNotRunning.WithDetail("%s", s.ID)
	}
	return s.child.Resize(cols, rows)
}

// WaitForShutdown blocks until the child exits, the timeout passes, or the
// context is cancelled.
func (s *Server) WaitForShutdown(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	c := s.child
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.Done():
		return nil
	case <-timer.C:
		return errs.ErrServerProcessing.WithDetail("%s did not stop within %s", s.ID, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logs returns the last n console lines.
func (s *Server) Logs(n int, includePartial bool) []string {
	return s.ring.Tail(n, includePartial)
}

// BeginBuild transitions a stopped server into BUILD for an installer run.
func (s *Server) BeginBuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsRunning() {
		return errs.ErrServerProcessing.WithDetail("%s is %s", s.ID, s.state)
	}
	s.setState(types.StateBuild)
	return nil
}

// EndBuild returns the server to STOPPED after the installer exits.
func (s *Server) EndBuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == types.StateBuild {
		s.setState(types.StateStopped)
	}
}
