package main

import (
	"github.com/fsnotify/fsnotify"

	log "github.com/cihub/seelog"
)

// watchConfigFile layers an fsnotify watch over the configuration file's
// directory (INI editors commonly replace-then-rename rather than
// write-in-place, so the watch is on the containing directory) and signals
// reload on any write/create/rename touching it. The poll loop in
// watchConfig remains the source of truth on the fixed UpdateInterval
// cadence (matching checkConf()'s unconditional resleep-then-reparse); this
// only lets a configuration edit take effect sooner than the next poll.
func watchConfigFile(path string, reload chan<- struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnf("watcher: could not start fsnotify watcher, falling back to poll-only reload: %v", err)
		return
	}

	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		log.Warnf("watcher: could not watch %s, falling back to poll-only reload: %v", dir, err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case reload <- struct{}{}:
				default:
					// a reload is already pending; the poll loop will pick
					// up this edit on its own next tick regardless.
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("watcher: fsnotify error: %v", err)
			}
		}
	}()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
