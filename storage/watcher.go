package storage

import (
	"context"
	"path/filepath"

	"Resona/logger"

	"github.com/fsnotify/fsnotify"
)

// AssetWatcher watches the local assets directory. When an asset file
// is written or replaced, the owning track's uploaded marker must be
// cleared so the next push re-uploads it; the watcher reports the
// changed path through the callback and leaves the marking to the
// caller.
type AssetWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onChange func(path string)
}

// NewAssetWatcher creates a watcher over dir. Events are delivered once
// Run is called.
func NewAssetWatcher(dir string, onChange func(path string)) (*AssetWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &AssetWatcher{watcher: w, dir: dir, onChange: onChange}, nil
}

// Run delivers change events until the context is cancelled. Meant to
// run on its own goroutine.
func (aw *AssetWatcher) Run(ctx context.Context) {
	logger.Info("watching assets directory", logger.String("dir", aw.dir))
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug("asset file changed",
				logger.String("path", event.Name),
				logger.String("op", event.Op.String()))
			aw.onChange(filepath.Clean(event.Name))
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("asset watcher error", logger.ErrorField(err))
		}
	}
}

// Close stops the watcher.
func (aw *AssetWatcher) Close() error {
	return aw.watcher.Close()
}
