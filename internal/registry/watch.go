package registry

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces a burst of filesystem events (e.g. a plugin
// install writing several files in sequence) into a single rescan.
const watchDebounce = 250 * time.Millisecond

// Watch rescans the system plugin directory (and userID's, when set)
// whenever fsnotify reports a change underneath them, so a plugin
// install/update/delete through any path outside this process becomes
// visible without waiting on the next request-driven Scan. It blocks
// until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, userID string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := []string{r.layout.SystemPluginsDir()}
	if userID != "" {
		dirs = append(dirs, r.layout.UserPluginsDir(userID))
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			r.logger.Warn("registry watch: cannot watch directory", "dir", dir, "error", err)
			continue
		}
	}

	var timer *time.Timer
	rescan := func() {
		if err := r.Scan(userID); err != nil {
			r.logger.Warn("registry watch: rescan failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, rescan)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("registry watch: fsnotify error", "error", err)
		}
	}
}
