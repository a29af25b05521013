package watch

import (
	"context"
	"sync"
	"time"
)

// pendingChange tracks a path inside its debounce window.
type pendingChange struct {
	kind      Kind
	firstSeen time.Time
	lastSeen  time.Time
}

// Debouncer coalesces bursts of events per path. A path is released to
// OnReady only after it has been quiet for the full window; every new event
// restarts its window. Deletions bypass the window entirely and go straight
// to OnDelete, since there is nothing to settle.
type Debouncer struct {
	window   time.Duration
	onReady  func(path string)
	onDelete func(path string)

	mu      sync.Mutex
	pending map[string]*pendingChange
	now     func() time.Time
}

// NewDebouncer builds a debouncer with the given quiet window. onReady fires
// for created/modified paths once settled; onDelete fires immediately for
// deleted paths.
func NewDebouncer(window time.Duration, onReady, onDelete func(path string)) *Debouncer {
	return &Debouncer{
		window:   window,
		onReady:  onReady,
		onDelete: onDelete,
		pending:  make(map[string]*pendingChange),
		now:      time.Now,
	}
}

// Observe records one event. Called from the notifier consumption loop.
func (d *Debouncer) Observe(ev Event) {
	if ev.Kind == Deleted {
		d.mu.Lock()
		delete(d.pending, ev.Path)
		d.mu.Unlock()
		if d.onDelete != nil {
			d.onDelete(ev.Path)
		}
		return
	}

	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[ev.Path]; ok {
		p.lastSeen = now
		if ev.Kind == Created {
			p.kind = Created
		}
		return
	}
	d.pending[ev.Path] = &pendingChange{kind: ev.Kind, firstSeen: now, lastSeen: now}
}

// Flush releases every path whose window has elapsed. Returns the number of
// paths released.
func (d *Debouncer) Flush() int {
	now := d.now()

	d.mu.Lock()
	var ready []string
	for path, p := range d.pending {
		if now.Sub(p.lastSeen) >= d.window {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(d.pending, path)
	}
	d.mu.Unlock()

	if d.onReady != nil {
		for _, path := range ready {
			d.onReady(path)
		}
	}
	return len(ready)
}

// Pending reports how many paths are currently inside their window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Run flushes on a timer until ctx is cancelled, then performs one final
// flush of everything still pending so settled work is not lost on
// shutdown.
func (d *Debouncer) Run(ctx context.Context) {
	interval := d.window / 2
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.flushAll()
			return
		case <-ticker.C:
			d.Flush()
		}
	}
}

func (d *Debouncer) flushAll() {
	d.mu.Lock()
	ready := make([]string, 0, len(d.pending))
	for path := range d.pending {
		ready = append(ready, path)
	}
	d.pending = make(map[string]*pendingChange)
	d.mu.Unlock()

	if d.onReady != nil {
		for _, path := range ready {
			d.onReady(path)
		}
	}
}
