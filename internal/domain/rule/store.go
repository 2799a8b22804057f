package rule

import (
	"context"
	"errors"
)

// ErrRuleNotFound is returned by store operations on an unknown rule ID.
var ErrRuleNotFound = errors.New("rule not found")

// Store is the persistence port for the authoritative rule collection.
// Implementations must preserve insertion order in List and must return
// copies so callers cannot mutate stored state.
type Store interface {
	// List returns rules in insertion order, optionally filtered to one
	// collection. An empty collection returns everything.
	List(ctx context.Context, collection Collection) ([]Rule, error)

	// Get returns a rule by ID, or ErrRuleNotFound.
	Get(ctx context.Context, id string) (*Rule, error)

	// Insert stores a new rule. The caller assigns ID and timestamps;
	// duplicate detection happens above the store.
	Insert(ctx context.Context, r *Rule) error

	// Update replaces a stored rule by ID, or returns ErrRuleNotFound.
	Update(ctx context.Context, r *Rule) error

	// Delete removes a rule by ID, or returns ErrRuleNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every rule, or every rule in one collection.
	DeleteAll(ctx context.Context, collection Collection) error

	// FindEquivalent returns a stored rule that is a duplicate of r per
	// Equivalent, or nil when none exists.
	FindEquivalent(ctx context.Context, r *Rule) (*Rule, error)
}

// SettingsStore holds the auxiliary per-collection enforcement modes and the
// policy version string alongside the rules.
type SettingsStore interface {
	// EnforcementModes returns the per-collection mode map. Collections
	// without an entry are NotConfigured/defaulted by callers.
	EnforcementModes(ctx context.Context) (map[Collection]EnforcementMode, error)

	// SetEnforcementMode records the mode for one collection.
	SetEnforcementMode(ctx context.Context, c Collection, m EnforcementMode) error

	// Version returns the policy version string (default "1").
	Version(ctx context.Context) (string, error)

	// SetVersion records the policy version string.
	SetVersion(ctx context.Context, v string) error
}
