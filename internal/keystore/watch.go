package keystore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long the records directory must stay quiet before a
// watch-triggered rebuild.
const DefaultSettle = 300 * time.Millisecond

// Watch rebuilds the aggregate whenever record files change and calls
// onRebuild with the outcome of each rebuild. Bursts of events are collapsed
// into one rebuild once the directory has been quiet for settle. Watch blocks
// until ctx is done.
func (s *Store) Watch(ctx context.Context, settle time.Duration, onRebuild func([]byte, error)) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if err := os.MkdirAll(s.recordsDir, 0755); err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.recordsDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.recordsDir, err)
	}
	s.logger.InfoContext(ctx, "watching record files", slog.String("dir", s.recordsDir))

	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	var pending time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isRecordEvent(ev) {
				continue
			}
			pending = time.Now()

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < settle {
				continue
			}
			pending = time.Time{}
			document, err := s.RebuildAggregate(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "watch rebuild failed", slog.String("error", err.Error()))
			}
			if onRebuild != nil {
				onRebuild(document, err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "watch error", slog.String("error", err.Error()))
		}
	}
}

// isRecordEvent filters out temp files from atomic writes and non-record
// files.
func isRecordEvent(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), recordExt)
}
