package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kioskworks/boothd/internal/debug"
	"github.com/kioskworks/boothd/internal/storage"
)

// Worker drains the persistent upload queue into an outbox directory
// on an interval. It runs fully decoupled from the orchestrator: the
// orchestrator only enqueues, never waits.
//
// The outbox is the handoff point for whatever ships artifacts off
// the kiosk (cloud sync agent, SMS gateway watcher); delivering past
// the local disk is outside this daemon.
type Worker struct {
	db        *storage.DB
	outboxDir string
	interval  time.Duration
	batch     int
}

// NewWorker creates an upload worker.
func NewWorker(db *storage.DB, outboxDir string, interval time.Duration) *Worker {
	return &Worker{
		db:        db,
		outboxDir: outboxDir,
		interval:  interval,
		batch:     16,
	}
}

// Run polls the queue until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	debug.Info("Upload worker: draining into %s every %v", w.outboxDir, w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(); err != nil {
				debug.Error(fmt.Errorf("upload drain: %w", err))
			}
		}
	}
}

// drainOnce delivers one batch of pending jobs.
func (w *Worker) drainOnce() error {
	jobs, err := w.db.PendingUploads(w.batch)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := w.deliver(job); err != nil {
			// Leave the row pending; it will be retried next cycle.
			debug.Error(fmt.Errorf("upload job %d: %w", job.ID, err))
			continue
		}
		if err := w.db.MarkSent(job.ID); err != nil {
			return err
		}
		debug.Verbose("Uploaded job %d (%s)", job.ID, filepath.Base(job.FilePath))
	}
	return nil
}

func (w *Worker) deliver(job storage.UploadJob) error {
	dir := filepath.Join(w.outboxDir, job.SessionID)
	if job.EventName != "" {
		dir = filepath.Join(w.outboxDir, sanitize(job.EventName), job.SessionID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	src, err := os.Open(job.FilePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, filepath.Base(job.FilePath)))
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// sanitize keeps event names filesystem-safe.
func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "event"
	}
	return string(out)
}
