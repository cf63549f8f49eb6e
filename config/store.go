package config

import "sync"

// Store holds the current configuration File behind a mutex so a reload can
// swap it out while sampler/watcher goroutines read a consistent snapshot.
// A mutex around load/swap is sufficient; callers never need fine-grained
// per-key locking (spec.md §5).
type Store struct {
	mu   sync.RWMutex
	file *File
}

// NewStore loads path and returns a Store wrapping it.
func NewStore(path string) (*Store, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{file: f}, nil
}

// Reload reparses the store's path and atomically replaces the snapshot.
// Errors leave the previous snapshot in place.
func (s *Store) Reload() error {
	f, err := Load(s.file.Path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
	return nil
}

// Snapshot returns the currently active File.
func (s *Store) Snapshot() *File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file
}

// Get is a convenience passthrough to the current snapshot.
func (s *Store) Get(section, key string) (string, bool) {
	return s.Snapshot().Get(section, key)
}

// Section is a convenience passthrough to the current snapshot.
func (s *Store) Section(name string) map[string]string {
	return s.Snapshot().Section(name)
}
