package taxonomy

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the taxonomy file when it changes and serves the latest
// snapshot. It watches the parent directory since fsnotify cannot watch a
// file that is atomically replaced.
type Watcher struct {
	path     string
	current  atomic.Pointer[Taxonomy]
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	debounce time.Duration
}

// Watch loads the taxonomy at path and starts watching it for changes.
func Watch(path string) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     path,
		watcher:  fsw,
		cancel:   cancel,
		debounce: 200 * time.Millisecond,
	}
	w.current.Store(initial)

	go w.watchLoop(ctx)
	return w, nil
}

// Current implements Provider.
func (w *Watcher) Current() *Taxonomy {
	return w.current.Load()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors fire bursts of events; debounce before reloading.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", w.path).Msg("Taxonomy watcher error")
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Taxonomy reload failed, keeping previous snapshot")
		return
	}
	w.current.Store(next)
	log.Info().Str("path", w.path).Int("categories", len(next.order)).Msg("Taxonomy reloaded")
}
