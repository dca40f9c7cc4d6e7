package indexing

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AbdouB/memoryd/internal/logging"
)

// watchDebounce is the delay after the last filesystem event before a
// reindex runs, grounded on roelfdiedericks-goclaw's memory indexer
// (§"Change-Detection Layer": "debounced filesystem watcher feeding the
// Indexing Pipeline's bounded input channel").
const watchDebounce = 1500 * time.Millisecond

// Watcher watches a project tree and re-runs a CodebaseIndexer pass
// whenever its contents settle after a change.
type Watcher struct {
	root    string
	indexer *CodebaseIndexer

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	dirty    bool
}

// NewWatcher constructs a Watcher over root, backed by indexer.
func NewWatcher(root string, indexer *CodebaseIndexer) *Watcher {
	return &Watcher{
		root:     root,
		indexer:  indexer,
		stopChan: make(chan struct{}),
	}
}

// Start begins watching the project tree in the background. The caller
// must call Stop to release the underlying OS watch handles.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	if err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() != filepath.Base(w.root) && isSkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if addErr := fw.Add(path); addErr != nil {
			logging.L_warn("indexing: failed to watch directory", "path", path, "error", addErr)
		}
		return nil
	}); err != nil {
		fw.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop tears down the watcher, running one final sync if changes were
// still pending.
func (w *Watcher) Stop() {
	close(w.stopChan)
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		dirty := w.dirty
		w.dirty = false
		w.mu.Unlock()
		if !dirty {
			return
		}
		if _, _, err := w.indexer.IndexProject(w.root); err != nil {
			logging.L_warn("indexing: final reindex on stop failed", "root", w.root, "error", err)
		}
	}()

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.isRelevant(event.Name) {
				w.mu.Lock()
				w.dirty = true
				w.mu.Unlock()
				debounceTimer.Reset(watchDebounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.L_warn("indexing: watcher error", "error", err)

		case <-debounceTimer.C:
			w.mu.Lock()
			dirty := w.dirty
			w.dirty = false
			w.mu.Unlock()
			if !dirty {
				continue
			}
			indexed, skipped, err := w.indexer.IndexProject(w.root)
			if err != nil {
				logging.L_warn("indexing: reindex after change failed", "root", w.root, "error", err)
				continue
			}
			logging.L_info("indexing: reindexed after filesystem change", "root", w.root, "indexed", indexed, "skipped", skipped)
		}
	}
}

// isRelevant filters out noise from directories the Codebase Indexer
// itself skips (§4.2.2 skipDirNames), so renaming node_modules doesn't
// trigger a reindex storm.
func (w *Watcher) isRelevant(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if isSkipDir(part) {
			return false
		}
	}
	return true
}
