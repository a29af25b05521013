package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

// PollNotifier scans the tree on an interval and diffs mtimes. It is the
// fallback when native notifications are unavailable (network mounts,
// exhausted inotify watches).
type PollNotifier struct {
	Interval time.Duration
	SkipDir  func(name string) bool
}

type fileState struct {
	modTime time.Time
	size    int64
}

// Subscribe starts the scan loop. The first scan seeds the baseline and
// emits nothing.
func (n *PollNotifier) Subscribe(ctx context.Context, root string) (<-chan Event, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	interval := n.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	events := make(chan Event, 64)
	go n.run(ctx, root, interval, events)
	return events, nil
}

func (n *PollNotifier) run(ctx context.Context, root string, interval time.Duration, events chan<- Event) {
	defer close(events)

	seen := n.scan(root)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := n.scan(root)

		for path, state := range current {
			prev, existed := seen[path]
			switch {
			case !existed:
				if !n.emit(ctx, events, Event{Path: path, Kind: Created}) {
					return
				}
			case state.modTime != prev.modTime || state.size != prev.size:
				if !n.emit(ctx, events, Event{Path: path, Kind: Modified}) {
					return
				}
			}
		}
		for path := range seen {
			if _, ok := current[path]; !ok {
				if !n.emit(ctx, events, Event{Path: path, Kind: Deleted}) {
					return
				}
			}
		}

		seen = current
	}
}

func (n *PollNotifier) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (n *PollNotifier) scan(root string) map[string]fileState {
	states := make(map[string]fileState)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != root && n.SkipDir != nil && n.SkipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		states[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	if err != nil {
		log.Printf("[watch] poll scan of %s failed: %v", root, err)
	}
	return states
}
