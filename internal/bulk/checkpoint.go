package bulk

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// checkpoint is the persisted record of which files a run has finished, so
// an interrupted run resumes instead of starting over.
type checkpoint struct {
	Root      string    `json:"root"`
	UpdatedAt time.Time `json:"updated_at"`
	Done      []string  `json:"done"`
}

// loadCheckpoint reads the persisted checkpoint for this root. Force runs
// and unreadable checkpoints start fresh.
func (ix *Indexer) loadCheckpoint(force bool) map[string]bool {
	done := make(map[string]bool)
	if ix.checkpointPath == "" || force {
		return done
	}

	raw, err := os.ReadFile(ix.checkpointPath)
	if err != nil {
		return done
	}

	var cp checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		log.Printf("[bulk] ignoring corrupt checkpoint %s: %v", ix.checkpointPath, err)
		return done
	}
	if cp.Root != ix.root {
		return done
	}

	for _, path := range cp.Done {
		done[path] = true
	}
	return done
}

// saveCheckpoint persists progress with a temp file and rename. Failures
// are logged, not fatal; the worst case is redone work on resume.
func (ix *Indexer) saveCheckpoint(done map[string]bool) {
	if ix.checkpointPath == "" {
		return
	}

	cp := checkpoint{Root: ix.root, UpdatedAt: time.Now()}
	cp.Done = make([]string, 0, len(done))
	for path := range done {
		cp.Done = append(cp.Done, path)
	}
	sort.Strings(cp.Done)

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		log.Printf("[bulk] failed to encode checkpoint: %v", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(ix.checkpointPath), 0o755); err != nil {
		log.Printf("[bulk] failed to create checkpoint directory: %v", err)
		return
	}

	tmp := ix.checkpointPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		log.Printf("[bulk] failed to write checkpoint: %v", err)
		return
	}
	if err := os.Rename(tmp, ix.checkpointPath); err != nil {
		log.Printf("[bulk] failed to finalize checkpoint: %v", err)
	}
}

// clearCheckpoint removes the checkpoint after a completed run.
func (ix *Indexer) clearCheckpoint() {
	if ix.checkpointPath == "" {
		return
	}
	if err := os.Remove(ix.checkpointPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[bulk] failed to remove checkpoint: %v", err)
	}
}
