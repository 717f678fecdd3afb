package supervisor

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollFallback is how often KillSwitch re-stats the flag file when the
// fsnotify watch could not be installed, bounding observed staleness to the
// same 2s ceiling either way.
const pollFallback = 2 * time.Second

// KillSwitch is the fleet-wide pause flag: an on-disk file is the source of
// truth (so it survives a supervisor restart and is inspectable by an
// operator), mirrored into an atomic.Bool every runtime's pause check reads
// without touching the filesystem.
type KillSwitch struct {
	path   string
	active atomic.Bool
	logger *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewKillSwitch builds a KillSwitch backed by <dataDir>/KILL_SWITCH and
// starts watching it. The initial state is read from disk synchronously so
// Active() is correct immediately after construction.
func NewKillSwitch(dataDir string) (*KillSwitch, error) {
	ks := &KillSwitch{
		path:   filepath.Join(dataDir, "KILL_SWITCH"),
		logger: slog.With("component", "killswitch"),
		done:   make(chan struct{}),
	}
	ks.refresh()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		ks.logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		go ks.pollLoop()
		return ks, nil
	}
	if err := watcher.Add(dataDir); err != nil {
		ks.logger.Warn("fsnotify watch failed, falling back to polling", "error", err)
		_ = watcher.Close()
		go ks.pollLoop()
		return ks, nil
	}
	ks.watcher = watcher
	go ks.watchLoop()
	return ks, nil
}

// Active reports whether the kill switch is currently engaged. Always reads
// the in-memory mirror; never touches the filesystem on this path.
func (k *KillSwitch) Active() bool {
	return k.active.Load()
}

// Activate writes the flag file, pausing every runtime within the bounded
// staleness window.
func (k *KillSwitch) Activate() error {
	f, err := os.Create(k.path)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	k.active.Store(true)
	k.logger.Warn("kill switch activated")
	return nil
}

// Deactivate removes the flag file, allowing runtimes to resume.
func (k *KillSwitch) Deactivate() error {
	if err := os.Remove(k.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	k.active.Store(false)
	k.logger.Info("kill switch deactivated")
	return nil
}

// Close stops the background watch/poll loop.
func (k *KillSwitch) Close() {
	select {
	case <-k.done:
		return
	default:
	}
	close(k.done)
	if k.watcher != nil {
		_ = k.watcher.Close()
	}
}

func (k *KillSwitch) refresh() {
	_, err := os.Stat(k.path)
	k.active.Store(err == nil)
}

func (k *KillSwitch) watchLoop() {
	for {
		select {
		case <-k.done:
			return
		case event, ok := <-k.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == filepath.Clean(k.path) {
				k.refresh()
			}
		case err, ok := <-k.watcher.Errors:
			if !ok {
				return
			}
			k.logger.Warn("fsnotify watch error", "error", err)
		}
	}
}

func (k *KillSwitch) pollLoop() {
	ticker := time.NewTicker(pollFallback)
	defer ticker.Stop()
	for {
		select {
		case <-k.done:
			return
		case <-ticker.C:
			k.refresh()
		}
	}
}
