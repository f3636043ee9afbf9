package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swicore/switcher/internal/config"
	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/internal/event"
	"github.com/swicore/switcher/internal/java"
	"github.com/swicore/switcher/pkg/types"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestLogRing(t *testing.T) {
	r := NewLogRing(3)
	r.Write([]byte("one\ntwo\r\nthr"))
	assert.Equal(t, []string{"one", "two"}, r.Tail(10, false))
	assert.Equal(t, []string{"one", "two", "thr"}, r.Tail(10, true))

	r.Write([]byte("ee\nfour\nfive\n"))
	// Capacity 3: oldest lines fall off.
	assert.Equal(t, []string{"three", "four", "five"}, r.Tail(10, false))
	assert.Equal(t, []string{"four", "five"}, r.Tail(2, false))

	r.Clear()
	assert.Empty(t, r.Tail(10, true))
}

func TestLogRingLossyDecode(t *testing.T) {
	r := NewLogRing(10)
	r.Write([]byte{'o', 'k', 0xff, 0xfe, '\n'})
	lines := r.Tail(1, false)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ok")
	assert.Contains(t, lines[0], "�")
}

func TestBuildArgsGenerated(t *testing.T) {
	args, generated, err := buildArgs(launchInput{
		ServerID: "lobby",
		JavaExe:  "/usr/bin/java",
		Option: types.LaunchOption{
			MinHeapMemory: intPtr(1024),
			MaxHeapMemory: intPtr(4096),
			JavaOptions:   strPtr("-XX:+UseG1GC -XX:MaxGCPauseMillis=200"),
			JarFile:       strPtr("paper.jar"),
			ServerOptions: strPtr("--nogui"),
		},
	})
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Equal(t, []string{
		"/usr/bin/java", "-Xms1024M", "-Xmx4096M",
		"-XX:+UseG1GC", "-XX:MaxGCPauseMillis=200",
		"-Dswi.serverName=lobby", "-jar", "paper.jar", "--nogui",
	}, args)
}

func TestBuildArgsRequiresJar(t *testing.T) {
	_, _, err := buildArgs(launchInput{ServerID: "x", JavaExe: "java"})
	assert.ErrorIs(t, err, errs.ErrLaunch)
}

func TestBuildArgsCustomCommand(t *testing.T) {
	args, generated, err := buildArgs(launchInput{
		ServerID: "modded",
		JavaExe:  "/jvm/17/bin/java",
		Option: types.LaunchOption{
			MinHeapMemory: intPtr(2048),
			MaxHeapMemory: intPtr(2048),
			JarFile:       strPtr("forge.jar"),
			ServerOptions: strPtr("--nogui"),
		},
		CustomCommand: `$JAVA_EXE $JAVA_MEM_ARGS @user_jvm_args.txt "nether worlds" $SERVER_ARGS`,
	})
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, []string{
		"/jvm/17/bin/java", "-Xms2048M", "-Xmx2048M",
		"@user_jvm_args.txt", "nether worlds", "--nogui",
	}, args)
}

func TestCheckFreeMemory(t *testing.T) {
	orig := virtualMemory
	defer func() { virtualMemory = orig }()

	const mb = 1024 * 1024
	virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16384 * mb, Available: 6000 * mb}, nil
	}
	// need = 4096*1.25 + 16384*0.125 = 7168 > 6000
	assert.ErrorIs(t, checkFreeMemory(4096), errs.ErrOutOfMemory)
	// need = 2048*1.25 + 2048 = 4608 < 6000
	assert.NoError(t, checkFreeMemory(2048))
	assert.NoError(t, checkFreeMemory(0))

	// Exact equality refuses the start: need = 4096*1.25 + 2048 = 7168.
	virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16384 * mb, Available: 7168 * mb}, nil
	}
	assert.ErrorIs(t, checkFreeMemory(4096), errs.ErrOutOfMemory)
	// One MB above the threshold succeeds.
	virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16384 * mb, Available: 7169 * mb}, nil
	}
	assert.NoError(t, checkFreeMemory(4096))
}

func TestEula(t *testing.T) {
	dir := t.TempDir()

	accepted, exists, err := EulaValue(dir)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "eula.txt"),
		[]byte("#By changing the setting below to TRUE\neula=false\n"), 0o644))
	accepted, exists, err = EulaValue(dir)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.True(t, exists)

	require.NoError(t, AcceptEula(dir))
	accepted, _, err = EulaValue(dir)
	require.NoError(t, err)
	assert.True(t, accepted)

	// Comment lines survive the rewrite.
	data, err := os.ReadFile(filepath.Join(dir, "eula.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "#By changing the setting")
	assert.Contains(t, string(data), "eula=true")
}

func newTestServer(t *testing.T, sc *types.ServerConfig) (*Server, *event.Bus) {
	t.Helper()
	dir := t.TempDir()
	global := config.Default(t.TempDir())
	bus := event.NewBus()
	if sc == nil {
		sc = &types.ServerConfig{Name: "test", Type: types.TypeCustom}
	}
	return New("srv1", dir, sc, global, java.NewRegistry(), bus), bus
}

func TestStartStopLifecycle(t *testing.T) {
	sc := &types.ServerConfig{
		Name:                "echo",
		Type:                types.TypeCustom,
		EnableLaunchCommand: true,
		// Echo loop that exits on the stop word, standing in for a game jar.
		LaunchCommand: `/bin/sh -c 'while read line; do echo "got:$line"; if [ "$line" = stop ]; then exit 0; fi; done'`,
	}
	srv, bus := newTestServer(t, sc)

	var transitions []types.ServerState
	bus.Subscribe(types.ServerChangeState{}.EventType(), event.PriorityNormal, func(e types.Event) {
		transitions = append(transitions, e.(types.ServerChangeState).NewState)
	})

	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, types.StateRunning, srv.State())

	assert.ErrorIs(t, srv.Start(context.Background()), errs.ErrAlreadyRunning)

	require.NoError(t, srv.SendCommand("hello"))
	require.Eventually(t, func() bool {
		for _, l := range srv.Logs(50, true) {
			if l == "got:hello" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.WaitForShutdown(context.Background(), 5*time.Second))
	require.Eventually(t, func() bool { return srv.State() == types.StateStopped },
		2*time.Second, 10*time.Millisecond)

	assert.Contains(t, transitions, types.StateStarting)
	assert.Contains(t, transitions, types.StateRunning)
	assert.Contains(t, transitions, types.StateStopping)
	assert.Equal(t, types.StateStopped, transitions[len(transitions)-1])
}

func TestStopWhileStoppedRefused(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	assert.ErrorIs(t, srv.Stop(context.Background()), errs.ErrNotRunning)
	assert.ErrorIs(t, srv.SendCommand("x"), errs.ErrNotRunning)
	assert.ErrorIs(t, srv.Kill(context.Background()), errs.ErrNotRunning)
}

func TestPreStartCancellation(t *testing.T) {
	sc := &types.ServerConfig{
		Name:                "never",
		Type:                types.TypeCustom,
		EnableLaunchCommand: true,
		LaunchCommand:       "/bin/sleep 60",
	}
	srv, bus := newTestServer(t, sc)
	bus.Subscribe((&types.ServerPreStart{}).EventType(), event.PriorityHigh, func(e types.Event) {
		e.(*types.ServerPreStart).Cancel("maintenance window")
	})

	err := srv.Start(context.Background())
	require.ErrorIs(t, err, errs.ErrCancelled)
	assert.Contains(t, err.Error(), "maintenance window")
	assert.Equal(t, types.StateStopped, srv.State())
}

func TestLaunchArgsMutableViaEvent(t *testing.T) {
	sc := &types.ServerConfig{
		Name:                "true",
		Type:                types.TypeCustom,
		EnableLaunchCommand: true,
		LaunchCommand:       "/bin/echo marker-unchanged",
	}
	srv, bus := newTestServer(t, sc)
	bus.Subscribe((&types.ServerLaunchOptionBuild{}).EventType(), event.PriorityNormal, func(e types.Event) {
		b := e.(*types.ServerLaunchOptionBuild)
		b.Args = []string{"/bin/echo", "marker-mutated"}
	})

	require.NoError(t, srv.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.State() == types.StateStopped },
		5*time.Second, 20*time.Millisecond)
	assert.Contains(t, srv.Logs(10, false), "marker-mutated")
}

func TestKill(t *testing.T) {
	sc := &types.ServerConfig{
		Name:                "sleeper",
		Type:                types.TypeCustom,
		EnableLaunchCommand: true,
		LaunchCommand:       "/bin/sleep 60",
	}
	srv, _ := newTestServer(t, sc)
	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Kill(context.Background()))
	require.NoError(t, srv.WaitForShutdown(context.Background(), 5*time.Second))
	require.Eventually(t, func() bool { return srv.State() == types.StateStopped },
		2*time.Second, 10*time.Millisecond)
}

func TestStartFailsOnImmediateCrash(t *testing.T) {
	sc := &types.ServerConfig{
		Name:                "crash",
		Type:                types.TypeCustom,
		EnableLaunchCommand: true,
		LaunchCommand:       `/bin/sh -c "exit 3"`,
	}
	srv, _ := newTestServer(t, sc)
	err := srv.Start(context.Background())
	require.ErrorIs(t, err, errs.ErrLaunch)
	assert.Equal(t, types.StateStopped, srv.State())
}

func TestBuildState(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	require.NoError(t, srv.BeginBuild())
	assert.Equal(t, types.StateBuild, srv.State())
	assert.ErrorIs(t, srv.Start(context.Background()), errs.ErrServerProcessing)
	assert.ErrorIs(t, srv.BeginBuild(), errs.ErrServerProcessing)
	srv.EndBuild()
	assert.Equal(t, types.StateStopped, srv.State())
}
