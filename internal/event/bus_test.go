package event

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swicore/switcher/pkg/types"
)

func TestPublishOrdering(t *testing.T) {
	b := NewBus()
	var order []string

	b.Subscribe("server_pre_start", PriorityMonitor, func(types.Event) {
		order = append(order, "monitor")
	})
	b.Subscribe("server_pre_start", PriorityNormal, func(types.Event) {
		order = append(order, "first")
	})
	b.Subscribe("server_pre_start", PriorityNormal, func(types.Event) {
		order = append(order, "second")
	})
	b.Subscribe("server_pre_start", PriorityHigh, func(types.Event) {
		order = append(order, "high")
	})

	b.Publish(&types.ServerPreStart{ServerID: "srv1"})
	assert.Equal(t, []string{"high", "first", "second", "monitor"}, order)
}

func TestCancellableEvent(t *testing.T) {
	b := NewBus()
	b.Subscribe("server_pre_start", PriorityNormal, func(ev types.Event) {
		ev.(*types.ServerPreStart).Cancel("maintenance window")
	})

	ev := &types.ServerPreStart{ServerID: "srv1"}
	b.Publish(ev)

	cancelled, reason := ev.Cancelled()
	assert.True(t, cancelled)
	assert.Equal(t, "maintenance window", reason)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	calls := 0
	unsub := b.Subscribe("file_task_start", PriorityNormal, func(types.Event) { calls++ })

	b.Publish(types.FileTaskStart{})
	unsub()
	b.Publish(types.FileTaskStart{})

	assert.Equal(t, 1, calls)
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	b := NewBus()
	var seen []string
	b.SubscribeAll(PriorityMonitor, func(ev types.Event) {
		seen = append(seen, ev.EventType())
	})

	b.Publish(types.FileTaskStart{})
	b.Publish(types.ServerChangeState{ServerID: "a", OldState: types.StateStopped, NewState: types.StateStarting})

	assert.Equal(t, []string{"file_task_start", "server_change_state"}, seen)
}

func TestMutableLaunchArgs(t *testing.T) {
	b := NewBus()
	b.Subscribe("server_launch_option_build", PriorityNormal, func(ev types.Event) {
		e := ev.(*types.ServerLaunchOptionBuild)
		e.Args = append(e.Args, "--extra")
	})

	ev := &types.ServerLaunchOptionBuild{ServerID: "srv1", Args: []string{"java"}}
	b.Publish(ev)
	assert.Equal(t, []string{"java", "--extra"}, ev.Args)
}
