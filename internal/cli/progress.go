package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/runeset/semidx/internal/bulk"
)

// bulkProgressBar renders bulk indexing progress as a terminal bar.
type bulkProgressBar struct {
	quiet   bool
	bar     *progressbar.ProgressBar
	current int
	seen    int
}

func newBulkProgressBar(quiet bool) *bulkProgressBar {
	return &bulkProgressBar{quiet: quiet}
}

// Observe consumes progress snapshots. Safe to call from the indexer's
// goroutine; bulk serializes observer calls.
func (b *bulkProgressBar) Observe(p bulk.Progress) {
	if b.quiet {
		return
	}

	switch p.State {
	case bulk.StateDiscovering:
		if b.bar == nil && b.seen == 0 {
			fmt.Println("Discovering files...")
		}

	case bulk.StateIndexing:
		if b.bar == nil && p.TotalFiles > 0 {
			b.bar = progressbar.NewOptions(p.TotalFiles,
				progressbar.OptionSetDescription("Indexing files"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("files/s"),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		b.advance(p)

	case bulk.StateCompleted, bulk.StateFailed:
		b.advance(p)
	}
	b.seen++
}

func (b *bulkProgressBar) advance(p bulk.Progress) {
	if b.bar == nil {
		return
	}
	completed := p.ProcessedFiles + p.FailedFiles
	if completed > b.current {
		b.bar.Add(completed - b.current)
		b.current = completed
	}
}

// Finish clears the bar if one is active.
func (b *bulkProgressBar) Finish() {
	if b.bar != nil {
		b.bar.Finish()
	}
}
