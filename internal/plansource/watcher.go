package plansource

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// PlanCallback receives each parsed plan submission.
type PlanCallback func(sp domain.SubmittedPlan, path string)

// Watcher monitors the plans directory and delivers new submissions to
// its callback. Rapid write bursts for the same file are debounced so a
// half-written plan is only parsed once it settles.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	callback PlanCallback
	debounce time.Duration

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewWatcher creates a watcher over the given plans directory
func NewWatcher(dir string, callback PlanCallback) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		watcher:  fw,
		callback: callback,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
	}, nil
}

// SetDebounce sets the settle window for batching file writes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start sweeps plans already sitting in the directory, then begins
// watching for new ones.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	existing, err := ListPlanFiles(w.dir)
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.deliver(path)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
	return nil
}

// Stop stops watching for file changes
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("plansource: watch error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsPlanFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for path := range pending {
		w.deliver(path)
	}
}

func (w *Watcher) deliver(path string) {
	sp, err := ParsePlanFile(path)
	if err != nil {
		log.Printf("plansource: skipping %s: %v", path, err)
		return
	}
	if w.callback != nil {
		w.callback(sp, path)
	}
}
