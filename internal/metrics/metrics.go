// Package metrics exposes prometheus collectors fed from the event bus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swicore/switcher/internal/event"
	"github.com/swicore/switcher/pkg/types"
)

// Collector owns the daemon's prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	runningServers prometheus.Gauge
	stateChanges   *prometheus.CounterVec
	fileTasks      *prometheus.CounterVec
	backups        *prometheus.CounterVec
	watchdogEvents *prometheus.CounterVec
}

// New builds the collector set and subscribes it to the bus at monitor
// priority so counters observe the settled event.
func New(bus *event.Bus) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runningServers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "switcher_running_servers",
			Help: "Servers whose state machine is not STOPPED.",
		}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switcher_server_state_changes_total",
			Help: "Server state transitions by target state.",
		}, []string{"state"}),
		fileTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switcher_file_tasks_total",
			Help: "Completed file tasks by type and result.",
		}, []string{"type", "result"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switcher_backups_total",
			Help: "Completed backup and restore operations by type and result.",
		}, []string{"type", "result"}),
		watchdogEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switcher_watchdog_events_total",
			Help: "Filesystem watchdog events by action.",
		}, []string{"action"}),
	}
	c.registry.MustRegister(
		c.runningServers, c.stateChanges, c.fileTasks, c.backups, c.watchdogEvents)

	bus.SubscribeAll(event.PriorityMonitor, c.observe)
	return c
}

func (c *Collector) observe(ev types.Event) {
	switch e := ev.(type) {
	case types.ServerChangeState:
		c.stateChanges.WithLabelValues(string(e.NewState)).Inc()
		if !e.OldState.IsRunning() && e.NewState.IsRunning() {
			c.runningServers.Inc()
		}
		if e.OldState.IsRunning() && !e.NewState.IsRunning() {
			c.runningServers.Dec()
		}
	case types.FileTaskEnd:
		c.fileTasks.WithLabelValues(string(e.Task.Type), string(e.Task.Result)).Inc()
	case types.BackupEnd:
		c.backups.WithLabelValues(string(e.Type), string(e.Result)).Inc()
	case types.BackupRestoreEnd:
		c.backups.WithLabelValues("RESTORE", string(e.Result)).Inc()
	case types.WatchdogEvent:
		c.watchdogEvents.WithLabelValues(string(e.Action)).Inc()
	}
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
