package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Callback is invoked once per changed path, marshalled onto the draining
// goroutine's caller rather than fsnotify's own internal goroutine (§5:
// "the file monitor may use OS threads internally but posts events
// through a thread-safe queue drained by the loop").
type Callback func(path string)

// Monitor owns one fsnotify.Watcher and the set of Watcher roles
// currently installed on it, keyed by path so duplicate Add calls for the
// same root are no-ops.
type Monitor struct {
	fsw *fsnotify.Watcher

	mu       sync.Mutex
	watchers map[string]Watcher

	events chan string
	done   chan struct{}
	once   sync.Once
}

// New starts the underlying OS watcher and the event-forwarding
// goroutine; call Events to drain, and Stop to release every watch.
func New() (*Monitor, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	m := &Monitor{
		fsw:      fsw,
		watchers: make(map[string]Watcher),
		events:   make(chan string, 256),
		done:     make(chan struct{}),
	}
	go m.pump()
	return m, nil
}

// Events returns the channel the owning event loop should drain; each
// value is a changed path (§4.J: "surface as a signal frame per changed
// path").
func (m *Monitor) Events() <-chan string { return m.events }

func (m *Monitor) pump() {
	for {
		select {
		case ev, ok := <-m.fsw.Events:
			if !ok {
				return
			}
			m.dispatch(ev.Name)
		case _, ok := <-m.fsw.Errors:
			if !ok {
				return
			}
		case <-m.done:
			return
		}
	}
}

func (m *Monitor) dispatch(path string) {
	m.mu.Lock()
	_, isFileWatch := m.watchers[path]
	m.mu.Unlock()

	if isFileWatch {
		select {
		case m.events <- path:
		default:
		}
		return
	}

	// A directory-level event (Root/Directory watches): fsnotify reports
	// the changed entry's own path even for directory watches, so this
	// still names the specific file that changed.
	select {
	case m.events <- path:
	default:
	}
}

// Add installs w on the underlying watcher and records it for
// WatchedFiles/WatchedDirectories reporting.
func (m *Monitor) Add(w Watcher) error {
	m.mu.Lock()
	_, exists := m.watchers[w.Path()]
	m.mu.Unlock()
	if exists {
		return nil
	}
	if err := w.Start(m.fsw.Add); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.Path(), err)
	}
	m.mu.Lock()
	m.watchers[w.Path()] = w
	m.mu.Unlock()
	return nil
}

// Remove releases w's watch.
func (m *Monitor) Remove(w Watcher) error {
	m.mu.Lock()
	delete(m.watchers, w.Path())
	m.mu.Unlock()
	return w.Stop(m.fsw.Remove)
}

// Stop releases all watches and stops the forwarding goroutine (§4.J
// "stop() releases all watches").
func (m *Monitor) Stop() error {
	m.once.Do(func() { close(m.done) })
	return m.fsw.Close()
}

// WatchedFiles and WatchedDirectories flatten every installed watcher's
// contribution into the two lists the wire protocol exposes (SPEC_FULL
// MODULE ADDITIONS "fileSystemWatchers detail").
func (m *Monitor) WatchedFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, w := range m.watchers {
		out = append(out, w.WatchedFiles()...)
	}
	return out
}

func (m *Monitor) WatchedDirectories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, w := range m.watchers {
		out = append(out, w.WatchedDirectories()...)
	}
	return out
}

// walkDirs lists root and every subdirectory beneath it, used by Root's
// recursive Start.
func walkDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return dirs, nil
}
