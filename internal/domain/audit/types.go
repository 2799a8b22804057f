// Package audit defines the change-journal domain: who changed which rule,
// when, and how.
package audit

import (
	"context"
	"time"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// ChangeType identifies the kind of policy mutation being recorded.
type ChangeType string

const (
	ChangeCreated     ChangeType = "created"
	ChangeUpdated     ChangeType = "updated"
	ChangeDeleted     ChangeType = "deleted"
	ChangeImported    ChangeType = "imported"
	ChangeModeChanged ChangeType = "mode_changed"
)

// ChangeRecord is one journal entry. Records are immutable once written.
type ChangeRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	Change    ChangeType `json:"change"`

	// Actor identifies who made the change: an API key name, "localhost"
	// for unauthenticated local access, or "cli" for command-line edits.
	Actor string `json:"actor,omitempty"`

	RuleID     string          `json:"rule_id,omitempty"`
	RuleName   string          `json:"rule_name,omitempty"`
	Collection rule.Collection `json:"collection,omitempty"`

	// Detail carries change-specific context, such as the new enforcement
	// mode or an import source description.
	Detail string `json:"detail,omitempty"`
}

// Journal is the persistence port for change records.
type Journal interface {
	// Append stores records. Implementations may buffer; Flush forces
	// records to durable storage.
	Append(ctx context.Context, records ...ChangeRecord) error

	// Flush forces pending records to durable storage.
	Flush(ctx context.Context) error

	// Recent returns the last n records, newest first.
	Recent(n int) []ChangeRecord

	// Close flushes and releases the journal.
	Close() error
}

// NopJournal discards every record. Used when journaling is disabled.
type NopJournal struct{}

func (NopJournal) Append(context.Context, ...ChangeRecord) error { return nil }
func (NopJournal) Flush(context.Context) error                   { return nil }
func (NopJournal) Recent(int) []ChangeRecord                     { return nil }
func (NopJournal) Close() error                                  { return nil }

var _ Journal = NopJournal{}
