package configsource

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/null-runner/mcp-gateway/pkg/log"
)

// Watch fires fn every time the source file is written, until ctx is
// canceled. It's the local-file analogue of the notifier's cluster
// fan-out: a single-process operator edits the YAML file and the
// gateway picks it up without a manual reload request.
func (f *FileSource) Watch(ctx context.Context, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(f.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					fn()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf(nil, "config source: watch error: %v", err)
			}
		}
	}()
	return nil
}
