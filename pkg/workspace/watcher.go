package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/learning"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet window after the last event on a batch.
const DefaultDebounce = 200 * time.Millisecond

// Learner is the part of the learning controller the watcher drives.
type Learner interface {
	LearnDocument(ctx context.Context, doc learning.Document) (learning.Pass, error)
}

// Watcher learns from supported files as they are created or written.
// Events are batched and deduplicated per path until the debounce window
// passes without new events.
type Watcher struct {
	root     string
	learner  Learner
	debounce time.Duration
	watcher  *fsnotify.Watcher
	log      *log.Logger

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	watching bool
	learned  int
}

// NewWatcher creates a watcher for root. debounce <= 0 uses DefaultDebounce.
func NewWatcher(root string, learner Learner, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		learner:  learner,
		debounce: debounce,
		watcher:  fw,
		log:      logger.New("watch"),
		changes:  make(chan string, 1024),
		done:     make(chan struct{}),
	}, nil
}

// Start adds root and its subdirectories and begins processing events.
// root must be an existing directory.
func (w *Watcher) Start(ctx context.Context) error {
	if info, err := os.Stat(w.root); err != nil {
		return err
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", w.root)
	}

	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	w.log.Info("watching workspace", "root", w.root)
	return nil
}

// Stop ends watching and waits for the pending batch to be learned.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// Learned returns how many files were learned since Start.
func (w *Watcher) Learned() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.learned
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && Ignored(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			rel, _ := filepath.Rel(w.root, event.Name)
			if Ignored(rel) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.log.Warn("cannot watch directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if LanguageForPath(event.Name) == "" {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
				w.log.Warn("dropping file change, queue full", "path", event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	var (
		batch  []string
		timer  *time.Timer
		timerC <-chan time.Time
	)

	flush := func() {
		for _, path := range dedupe(batch) {
			w.learnFile(ctx, path)
		}
		batch = batch[:0]
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			flush()
			return
		case path := <-w.changes:
			batch = append(batch, path)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

func (w *Watcher) learnFile(ctx context.Context, path string) {
	text, err := utils.ReadTextFile(path, syntax.MaxTextSize)
	if err != nil {
		w.log.Debug("skipping file", "path", path, "error", err)
		return
	}
	doc := learning.Document{URI: "file://" + path, LanguageID: LanguageForPath(path), Text: text}
	pass, err := w.learner.LearnDocument(ctx, doc)
	if err != nil {
		w.log.Warn("learning from file failed", "path", path, "error", err)
	}
	w.mu.Lock()
	w.learned++
	w.mu.Unlock()
	w.log.Debug("learned file", "path", path, "accepted", pass.Accepted)
}

// dedupe keeps the first occurrence of each path.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
