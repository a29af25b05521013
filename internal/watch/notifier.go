// Package watch turns raw filesystem notifications into stable, debounced
// change signals.
package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a filesystem change.
type Kind int

const (
	Modified Kind = iota
	Created
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Modified:
		return "modified"
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one file change. Directory events are filtered out before
// delivery.
type Event struct {
	Path string
	Kind Kind
}

// Notifier is the capability interface over a filesystem notification
// source. Implementations deliver events until ctx is cancelled, then close
// the channel.
type Notifier interface {
	Subscribe(ctx context.Context, root string) (<-chan Event, error)
}

// FSNotifier subscribes to native filesystem notifications via fsnotify,
// watching the root recursively. SkipDir, when set, prunes directory names
// from the recursive add (node_modules, .git, ...).
type FSNotifier struct {
	SkipDir func(name string) bool
}

// Subscribe opens the native notification channel. Errors opening the
// watcher are returned so the caller can degrade to polling or manual
// reindex rather than crash.
func (n *FSNotifier) Subscribe(ctx context.Context, root string) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := n.addRecursive(watcher, root); err != nil {
		watcher.Close()
		return nil, err
	}

	events := make(chan Event, 64)
	go n.run(ctx, watcher, events)
	return events, nil
}

func (n *FSNotifier) run(ctx context.Context, watcher *fsnotify.Watcher, events chan<- Event) {
	defer close(events)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}

			// New directories join the watch; their create event is not a
			// file change.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := n.addRecursive(watcher, ev.Name); err != nil {
						log.Printf("[watch] failed to watch new directory %s: %v", ev.Name, err)
					}
					continue
				}
			}

			kind, ok := mapOp(ev.Op)
			if !ok {
				continue
			}
			if kind != Deleted {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					continue
				}
			}

			select {
			case events <- Event{Path: ev.Name, Kind: kind}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watch] notification error: %v", err)
		}
	}
}

func mapOp(op fsnotify.Op) (Kind, bool) {
	switch {
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename delivers the old path; the new path arrives as a create.
		return Deleted, true
	case op&fsnotify.Create != 0:
		return Created, true
	case op&fsnotify.Write != 0:
		return Modified, true
	default:
		return 0, false
	}
}

// addRecursive adds the directory tree rooted at path to the watcher.
// Errors below the root are logged and skipped so one unreadable directory
// does not lose the whole subscription.
func (n *FSNotifier) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Printf("[watch] error accessing %s: %v", path, err)
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && n.SkipDir != nil && n.SkipDir(info.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			log.Printf("[watch] failed to watch %s: %v", path, err)
		}
		return nil
	})
}
