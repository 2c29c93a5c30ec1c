package infra

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultWatchDebounce coalesces the burst of writes one transaction produces.
const DefaultWatchDebounce = 50 * time.Millisecond

// StateWatcher signals when the persisted session state may have changed.
// It watches the data directory for writes to the store and daemon registry.
type StateWatcher struct {
	dir      string
	debounce time.Duration
	logger   *zap.Logger
}

// NewStateWatcher creates a watcher over dataDir.
func NewStateWatcher(dataDir string, logger *zap.Logger) *StateWatcher {
	return &StateWatcher{
		dir:      dataDir,
		debounce: DefaultWatchDebounce,
		logger:   logger,
	}
}

// WithDebounce overrides the coalescing window.
func (w *StateWatcher) WithDebounce(d time.Duration) *StateWatcher {
	w.debounce = d
	return w
}

// Watch starts watching and returns a channel that receives one value per burst of changes.
// The channel is closed when ctx is cancelled or the watcher fails.
func (w *StateWatcher) Watch(ctx context.Context) (<-chan struct{}, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go w.loop(ctx, fw, out)
	return out, nil
}

func (w *StateWatcher) loop(ctx context.Context, fw *fsnotify.Watcher, out chan<- struct{}) {
	defer close(out)
	defer fw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("state file changed",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case <-timer.C:
			select {
			case out <- struct{}{}:
			default:
				// A signal is already pending; the reader will reload once.
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("state watcher error", zap.Error(err))
		}
	}
}

func (w *StateWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasSuffix(base, ".lock") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	return strings.HasPrefix(base, storeDBName) || base == registryFileName
}
