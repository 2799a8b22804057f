package memory

import (
	"context"
	"sync"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// SettingsStore implements rule.SettingsStore with in-memory maps.
type SettingsStore struct {
	modes   map[rule.Collection]rule.EnforcementMode
	version string
	mu      sync.RWMutex
}

// NewSettingsStore creates a settings store with no modes configured and
// policy version "1".
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{
		modes:   make(map[rule.Collection]rule.EnforcementMode),
		version: "1",
	}
}

// EnforcementModes returns a copy of the per-collection mode map.
func (s *SettingsStore) EnforcementModes(ctx context.Context) (map[rule.Collection]rule.EnforcementMode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[rule.Collection]rule.EnforcementMode, len(s.modes))
	for c, m := range s.modes {
		out[c] = m
	}
	return out, nil
}

// SetEnforcementMode records the mode for one collection.
func (s *SettingsStore) SetEnforcementMode(ctx context.Context, c rule.Collection, m rule.EnforcementMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modes[c] = m
	return nil
}

// Version returns the policy version string.
func (s *SettingsStore) Version(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version, nil
}

// SetVersion records the policy version string.
func (s *SettingsStore) SetVersion(ctx context.Context, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version = v
	return nil
}

// Verify interface compliance at compile time.
var _ rule.SettingsStore = (*SettingsStore)(nil)
