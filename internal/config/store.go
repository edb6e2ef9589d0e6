package config

import (
	"sync"
)

// Subscriber is notified with the effective configuration after every change.
type Subscriber interface {
	ApplyConfig(cfg Config)
}

// Store holds the live configuration. Mutations are persisted to the backing
// file before subscribers see them.
type Store struct {
	mu       sync.RWMutex
	notifyMu sync.Mutex
	path     string
	file     Config
	subs     []Subscriber
}

// NewStore wraps an already loaded configuration. An empty path keeps the
// store in memory only.
func NewStore(path string, cfg Config) *Store {
	return &Store{path: path, file: cfg.Clone()}
}

// Open loads path (creating it with defaults if missing) into a Store.
func Open(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, cfg), nil
}

// Current returns the effective configuration, environment overrides applied.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return WithEnv(s.file.Clone())
}

// Subscribe registers sub for future changes. It does not replay the current value.
func (s *Store) Subscribe(sub Subscriber) {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// Update applies fn to a copy of the file configuration, saves it and then
// broadcasts the result. Nothing changes when saving fails.
func (s *Store) Update(fn func(cfg *Config)) error {
	s.mu.Lock()
	next := s.file.Clone()
	fn(&next)
	if s.path != "" {
		if err := Save(s.path, next); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.file = next
	s.broadcastLocked(next)
	return nil
}

// Reload re-reads the backing file and broadcasts it.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.file = cfg
	s.broadcastLocked(cfg)
	return nil
}

// broadcastLocked is called with s.mu held and releases it. notifyMu is taken
// first so subscribers observe changes in commit order.
func (s *Store) broadcastLocked(cfg Config) {
	subs := append([]Subscriber(nil), s.subs...)
	effective := WithEnv(cfg.Clone())
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, sub := range subs {
		sub.ApplyConfig(effective.Clone())
	}
}
