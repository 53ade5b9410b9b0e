// Package dataset implements the ingestion and query engine for the
// government real-price transaction tables.
//
// A Store owns one dataset root directory on disk. Uploaded archives replace
// the root's contents wholesale; queries and detail lookups stream the table
// files on every request and never materialize a full table in memory. The
// only shared mutable state is the root itself: ingestion holds an exclusive
// lock for the clear+extract+flatten sequence, while readers take no lock and
// treat transiently missing files as empty results.
package dataset

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultMaxArchiveBytes is the upload ceiling used when the caller does not
// configure one: 300 MB, matching the largest quarterly archive with headroom.
const DefaultMaxArchiveBytes = 300 << 20

// Store serves queries over, and ingests replacements of, a single dataset
// root directory.
type Store struct {
	root     string
	maxBytes int64

	// ingestMu serializes the destructive clear+extract+flatten sequence.
	// Readers intentionally do not take it; see the package comment.
	ingestMu sync.Mutex

	cacheMu sync.Mutex
	cached  *Manifest

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore returns a Store over root. maxArchiveBytes bounds uploaded
// archives; zero or negative selects DefaultMaxArchiveBytes. The root
// directory is created if absent so an empty deployment starts cleanly.
func NewStore(root string, maxArchiveBytes int64) (*Store, error) {
	if maxArchiveBytes <= 0 {
		maxArchiveBytes = DefaultMaxArchiveBytes
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset root: %w", err)
	}
	return &Store{root: root, maxBytes: maxArchiveBytes}, nil
}

// Root returns the dataset root directory path.
func (s *Store) Root() string { return s.root }

// Manifest returns the current dataset index. The result is cached until the
// next successful ingest or, if Watch has been started, until the root
// changes on disk.
func (s *Store) Manifest() (*Manifest, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}
	m, err := buildManifest(s.root)
	if err != nil {
		return nil, err
	}
	s.cached = m
	return m, nil
}

// invalidate drops the cached manifest so the next Manifest call rebuilds it
// from disk.
func (s *Store) invalidate() {
	s.cacheMu.Lock()
	s.cached = nil
	s.cacheMu.Unlock()
}

// Watch starts observing the dataset root with fsnotify and invalidates the
// manifest cache on any change. This covers datasets edited outside the
// upload endpoint (for example a file copied in by hand). Watch is optional;
// without it the cache is still invalidated on every successful ingest.
func (s *Store) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(s.root); err != nil {
		w.Close()
		return fmt.Errorf("watch dataset root: %w", err)
	}
	s.watcher = w
	s.done = make(chan struct{})

	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				s.invalidate()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
				// Watch errors are non-fatal: the cache still refreshes
				// on ingest.
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher if one was started.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}
