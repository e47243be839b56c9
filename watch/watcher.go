// Package watch implements the file-change notifier (§4.J): Monitor.Add
// installs a Root, Directory or File watch and Monitor.Events delivers a
// thread-safe event per changed path for the owning event loop to drain
// (§5 "Shared-resource policy"). Grounded on AleutianLocal's
// fsnotify-based FileWatcher, generalized from a debounced single-root
// watcher into the three-role split the original (`cmFileMonitor`) used.
package watch

// Watcher is the capability set every watch variant implements (§9
// Polymorphism: trigger, path, start, stop, watched-files, watched-dirs).
// The three variants differ only in what Start adds to the underlying
// fsnotify watcher and in how WatchedFiles/WatchedDirectories report
// themselves back on the wire (MODULE ADDITIONS "fileSystemWatchers
// detail").
type Watcher interface {
	Path() string
	Start(add func(path string) error) error
	Stop(remove func(path string) error) error
	WatchedFiles() []string
	WatchedDirectories() []string
}

// Root watches an entire source tree recursively so new top-level list
// files are picked up without an explicit per-file watch.
type Root struct {
	root  string
	dirs  []string
}

func NewRoot(root string) *Root { return &Root{root: root} }

func (r *Root) Path() string { return r.root }

func (r *Root) Start(add func(path string) error) error {
	dirs, err := walkDirs(r.root)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := add(d); err != nil {
			return err
		}
	}
	r.dirs = dirs
	return nil
}

func (r *Root) Stop(remove func(path string) error) error {
	var firstErr error
	for _, d := range r.dirs {
		if err := remove(d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.dirs = nil
	return firstErr
}

func (r *Root) WatchedFiles() []string       { return nil }
func (r *Root) WatchedDirectories() []string { return append([]string(nil), r.dirs...) }

// Directory watches exactly one directory, non-recursively (e.g. a
// subdirectory added via add_subdirectory, once the evaluator has seen
// it).
type Directory struct {
	path string
}

func NewDirectory(path string) *Directory { return &Directory{path: path} }

func (d *Directory) Path() string { return d.path }

func (d *Directory) Start(add func(path string) error) error { return add(d.path) }

func (d *Directory) Stop(remove func(path string) error) error { return remove(d.path) }

func (d *Directory) WatchedFiles() []string       { return nil }
func (d *Directory) WatchedDirectories() []string { return []string{d.path} }

// File watches a single file read during configure (a list file). Most
// fsnotify backends only deliver events at directory granularity, so
// File's Start call targets the file's own path; Monitor forwards each
// event's path as reported, without filtering.
type File struct {
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Path() string { return f.path }

func (f *File) Start(add func(path string) error) error { return add(f.path) }

func (f *File) Stop(remove func(path string) error) error { return remove(f.path) }

func (f *File) WatchedFiles() []string       { return []string{f.path} }
func (f *File) WatchedDirectories() []string { return nil }
