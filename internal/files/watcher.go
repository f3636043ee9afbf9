package files

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/swicore/switcher/pkg/types"
)

// Watcher observes the root directory tree and republishes filesystem
// changes on the bus as watchdog events with virtual paths.
type Watcher struct {
	m  *Manager
	fw *fsnotify.Watcher
}

// Watch starts the recursive watcher over the manager's root. Directories
// created later are picked up as their create events arrive.
func (m *Manager) Watch() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{m: m, fw: fw}
	if err := w.addTree(m.root); err != nil {
		fw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fw.Close() }

func (w *Watcher) addTree(dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // tree may mutate under us
		}
		if info.IsDir() {
			return w.fw.Add(p)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.m.log.Warn().Err(err).Msg("watchdog error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	virt, err := w.m.VirtualPath(ev.Name)
	if err != nil {
		return
	}
	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	var action types.WatchdogAction
	switch {
	case ev.Op.Has(fsnotify.Create):
		action = types.WatchCreated
		if isDir {
			if err := w.addTree(ev.Name); err != nil {
				w.m.log.Warn().Str("path", virt).Err(err).Msg("watch new directory")
			}
		}
	case ev.Op.Has(fsnotify.Remove):
		action = types.WatchDeleted
	case ev.Op.Has(fsnotify.Rename):
		action = types.WatchMoved
	case ev.Op.Has(fsnotify.Write):
		action = types.WatchModified
	default:
		return
	}

	w.m.bus.Publish(types.WatchdogEvent{
		Action: action,
		Path:   virt,
		IsDir:  isDir,
	})
}
