package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swicore/switcher/internal/event"
	"github.com/swicore/switcher/pkg/types"
)

func TestRunningServersGauge(t *testing.T) {
	bus := event.NewBus()
	c := New(bus)

	bus.Publish(types.ServerChangeState{ServerID: "a", OldState: types.StateStopped, NewState: types.StateStarting})
	bus.Publish(types.ServerChangeState{ServerID: "a", OldState: types.StateStarting, NewState: types.StateStarted})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runningServers))

	bus.Publish(types.ServerChangeState{ServerID: "b", OldState: types.StateStopped, NewState: types.StateStarting})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.runningServers))

	bus.Publish(types.ServerChangeState{ServerID: "a", OldState: types.StateStopping, NewState: types.StateStopped})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runningServers))
}

func TestCounters(t *testing.T) {
	bus := event.NewBus()
	c := New(bus)

	bus.Publish(types.FileTaskEnd{Task: types.FileTask{Type: types.TaskDownload, Result: types.ResultSuccess}})
	bus.Publish(types.FileTaskEnd{Task: types.FileTask{Type: types.TaskDownload, Result: types.ResultFailed}})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fileTasks.WithLabelValues(string(types.TaskDownload), string(types.ResultSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fileTasks.WithLabelValues(string(types.TaskDownload), string(types.ResultFailed))))

	bus.Publish(types.BackupEnd{Type: types.BackupFull, Result: types.ResultSuccess})
	bus.Publish(types.BackupRestoreEnd{Result: types.ResultSuccess})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.backups.WithLabelValues(string(types.BackupFull), string(types.ResultSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.backups.WithLabelValues("RESTORE", string(types.ResultSuccess))))

	bus.Publish(types.WatchdogEvent{Action: types.WatchCreated, Path: "/x"})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.watchdogEvents.WithLabelValues(string(types.WatchCreated))))
}

func TestHandlerServesExposition(t *testing.T) {
	bus := event.NewBus()
	c := New(bus)
	bus.Publish(types.ServerChangeState{ServerID: "a", OldState: types.StateStopped, NewState: types.StateStarting})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "switcher_running_servers 1")
}
