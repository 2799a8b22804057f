// Package memory provides in-memory store implementations. Thread-safe,
// insertion-ordered, suitable for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// RuleStore implements rule.Store with an insertion-ordered slice.
type RuleStore struct {
	rules []rule.Rule
	mu    sync.RWMutex
}

// NewRuleStore creates an empty in-memory rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{}
}

// List returns rules in insertion order, filtered to one collection when
// collection is non-empty.
func (s *RuleStore) List(ctx context.Context, collection rule.Collection) ([]rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []rule.Rule
	for i := range s.rules {
		if collection != "" && s.rules[i].Collection != collection {
			continue
		}
		result = append(result, *s.rules[i].Clone())
	}
	return result, nil
}

// Get returns a rule by ID.
// Returns rule.ErrRuleNotFound if the rule doesn't exist.
func (s *RuleStore) Get(ctx context.Context, id string) (*rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.rules {
		if s.rules[i].ID == id {
			return s.rules[i].Clone(), nil
		}
	}
	return nil, rule.ErrRuleNotFound
}

// Insert appends a new rule.
func (s *RuleStore) Insert(ctx context.Context, r *rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	s.rules = append(s.rules, *r.Clone())
	return nil
}

// Update replaces a stored rule in place, keeping its position.
func (s *RuleStore) Update(ctx context.Context, r *rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID == r.ID {
			s.rules[i] = *r.Clone()
			return nil
		}
	}
	return rule.ErrRuleNotFound
}

// Delete removes a rule by ID.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return rule.ErrRuleNotFound
}

// DeleteAll removes every rule, or every rule in one collection.
func (s *RuleStore) DeleteAll(ctx context.Context, collection rule.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if collection == "" {
		s.rules = nil
		return nil
	}
	kept := s.rules[:0]
	for i := range s.rules {
		if s.rules[i].Collection != collection {
			kept = append(kept, s.rules[i])
		}
	}
	s.rules = kept
	return nil
}

// FindEquivalent returns a stored duplicate of r, or nil when none exists.
func (s *RuleStore) FindEquivalent(ctx context.Context, r *rule.Rule) (*rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := rule.Fingerprint(r)
	for i := range s.rules {
		if rule.Fingerprint(&s.rules[i]) == want && rule.Equivalent(&s.rules[i], r) {
			return s.rules[i].Clone(), nil
		}
	}
	return nil, nil
}

// Verify interface compliance at compile time.
var _ rule.Store = (*RuleStore)(nil)
