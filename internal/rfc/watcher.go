package rfc

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// ChangeHandler receives the path of an RFC markdown file that changed on
// disk. The plan store hooks in here to re-check hashes so external edits
// surface as drift instead of going unnoticed until the next tool call.
type ChangeHandler func(path string)

// Watcher observes the RFC status folders for out-of-band edits.
type Watcher struct {
	fw      *fsnotify.Watcher
	logger  *observability.Logger
	handler ChangeHandler
	done    chan struct{}
}

// NewWatcher starts watching both RFC folders. Close releases the OS watch.
func NewWatcher(paths *workspace.Paths, handler ChangeHandler, logger *observability.Logger) (*Watcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, status := range []models.RFCStatus{models.RFCInProgress, models.RFCArchived} {
		if err := fw.Add(paths.RFCDir(status)); err != nil {
			fw.Close()
			return nil, err
		}
	}

	w := &Watcher{fw: fw, logger: logger, handler: handler, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug(context.Background(), "rfc changed on disk",
				"path", filepath.Base(event.Name), "op", event.Op.String())
			if w.handler != nil {
				w.handler(event.Name)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(context.Background(), "rfc watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
