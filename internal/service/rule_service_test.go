package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/AppLock-Forge/applockforge/internal/adapter/outbound/memory"
	"github.com/AppLock-Forge/applockforge/internal/domain/audit"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// discardLogger returns a logger that writes nothing.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureJournal records appended change records for assertions.
type captureJournal struct {
	mu      sync.Mutex
	records []audit.ChangeRecord
}

func (j *captureJournal) Append(_ context.Context, records ...audit.ChangeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, records...)
	return nil
}

func (j *captureJournal) Flush(context.Context) error { return nil }
func (j *captureJournal) Close() error                { return nil }

func (j *captureJournal) Recent(n int) []audit.ChangeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n > len(j.records) {
		n = len(j.records)
	}
	out := make([]audit.ChangeRecord, 0, n)
	for i := len(j.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, j.records[i])
	}
	return out
}

func (j *captureJournal) all() []audit.ChangeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]audit.ChangeRecord(nil), j.records...)
}

func newTestRuleService() (*RuleService, *captureJournal) {
	journal := &captureJournal{}
	return NewRuleService(memory.NewRuleStore(), journal, discardLogger()), journal
}

func validRule(name string) *rule.Rule {
	return &rule.Rule{
		Name:       name,
		Collection: rule.CollectionExe,
		Action:     rule.ActionAllow,
		Conditions: rule.ConditionList{rule.PathCondition{Path: `C:\Tools\*`}},
	}
}

func TestRuleService_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, journal := newTestRuleService()

	result, err := svc.Create(ctx, validRule("allow tools"), "tester")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if !result.Created {
		t.Error("Create() Created = false, want true")
	}
	if result.Rule.ID == "" {
		t.Error("Create() did not assign an ID")
	}
	if result.Rule.CreatedAt.IsZero() || result.Rule.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}

	records := journal.all()
	if len(records) != 1 || records[0].Change != audit.ChangeCreated {
		t.Errorf("journal = %+v, want one created record", records)
	}
	if records[0].Actor != "tester" {
		t.Errorf("journal actor = %q, want tester", records[0].Actor)
	}
}

func TestRuleService_CreateDuplicateIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, journal := newTestRuleService()

	first, err := svc.Create(ctx, validRule("original"), "tester")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Same semantics under a different name is still equivalent.
	second, err := svc.Create(ctx, validRule("renamed duplicate"), "tester")
	if err != nil {
		t.Fatalf("Create(duplicate) error: %v", err)
	}
	if second.Created {
		t.Error("duplicate Create() Created = true, want false")
	}
	if second.Rule.ID != first.Rule.ID {
		t.Errorf("duplicate Create() returned ID %q, want existing %q", second.Rule.ID, first.Rule.ID)
	}

	rules, _ := svc.List(ctx, "")
	if len(rules) != 1 {
		t.Errorf("store has %d rules after duplicate create, want 1", len(rules))
	}
	if got := len(journal.all()); got != 1 {
		t.Errorf("journal has %d records, want 1 (duplicates not journaled)", got)
	}
}

func TestRuleService_CreateInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestRuleService()

	tests := []struct {
		name string
		r    *rule.Rule
	}{
		{name: "missing name", r: &rule.Rule{
			Collection: rule.CollectionExe,
			Action:     rule.ActionAllow,
			Conditions: rule.ConditionList{rule.PathCondition{Path: "*"}},
		}},
		{name: "no conditions", r: &rule.Rule{
			Name:       "empty",
			Collection: rule.CollectionExe,
			Action:     rule.ActionAllow,
		}},
		{name: "bad action", r: &rule.Rule{
			Name:       "bad action",
			Collection: rule.CollectionExe,
			Action:     rule.Action("Block"),
			Conditions: rule.ConditionList{rule.PathCondition{Path: "*"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.r, "tester"); !errors.Is(err, ErrInvalidRule) {
				t.Errorf("Create() error = %v, want ErrInvalidRule", err)
			}
		})
	}
}

func TestRuleService_UpdatePreservesCreatedAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, journal := newTestRuleService()

	created, err := svc.Create(ctx, validRule("before"), "tester")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	name := "after"
	got, err := svc.Update(ctx, created.Rule.ID, UpdateRuleInput{Name: &name}, "tester")
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got.Name != "after" {
		t.Errorf("Name = %q, want after", got.Name)
	}
	if !got.CreatedAt.Equal(created.Rule.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v != %v", got.CreatedAt, created.Rule.CreatedAt)
	}

	records := journal.all()
	if len(records) != 2 || records[1].Change != audit.ChangeUpdated {
		t.Errorf("journal = %+v, want created then updated", records)
	}
}

func TestRuleService_UpdateMergesPartialFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestRuleService()

	base := validRule("partial")
	base.Description = "original description"
	base.UserOrGroupSid = rule.AdministratorsSID
	created, err := svc.Create(ctx, base, "tester")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	desc := "now documented"
	got, err := svc.Update(ctx, created.Rule.ID, UpdateRuleInput{Description: &desc}, "tester")
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got.Description != desc {
		t.Errorf("Description = %q, want %q", got.Description, desc)
	}
	if got.Name != "partial" {
		t.Errorf("Name = %q, want untouched %q", got.Name, "partial")
	}
	if got.UserOrGroupSid != rule.AdministratorsSID {
		t.Errorf("UserOrGroupSid = %q, want untouched %q", got.UserOrGroupSid, rule.AdministratorsSID)
	}
	if len(got.Conditions) != len(created.Rule.Conditions) {
		t.Errorf("Conditions count = %d, want untouched %d", len(got.Conditions), len(created.Rule.Conditions))
	}
}

func TestRuleService_UpdateRejectsInvalidMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestRuleService()

	created, err := svc.Create(ctx, validRule("solid"), "tester")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	empty := rule.ConditionList{}
	if _, err := svc.Update(ctx, created.Rule.ID, UpdateRuleInput{Conditions: &empty}, "tester"); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("Update() error = %v, want ErrInvalidRule", err)
	}

	// The stored rule is unchanged after the rejected update.
	stored, err := svc.Get(ctx, created.Rule.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(stored.Conditions) == 0 {
		t.Error("stored rule lost its conditions after a rejected update")
	}
}

func TestRuleService_UpdateNotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newTestRuleService()

	name := "ghost"
	if _, err := svc.Update(context.Background(), "no-such-id", UpdateRuleInput{Name: &name}, "tester"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Update() error = %v, want ErrRuleNotFound", err)
	}
}

func TestRuleService_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, journal := newTestRuleService()

	created, err := svc.Create(ctx, validRule("doomed"), "tester")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := svc.Delete(ctx, created.Rule.ID, "tester"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := svc.Get(ctx, created.Rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrRuleNotFound", err)
	}
	if err := svc.Delete(ctx, created.Rule.ID, "tester"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Delete(deleted) error = %v, want ErrRuleNotFound", err)
	}

	records := journal.all()
	if len(records) != 2 || records[1].Change != audit.ChangeDeleted {
		t.Errorf("journal = %+v, want created then deleted", records)
	}
	if records[1].RuleName != "doomed" {
		t.Errorf("deleted record name = %q, want doomed", records[1].RuleName)
	}
}

func TestRuleService_DeleteAllByCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestRuleService()

	exe := validRule("exe rule")
	script := validRule("script rule")
	script.Collection = rule.CollectionScript
	// Distinct paths so the two rules are not equivalent across collections.
	script.Conditions = rule.ConditionList{rule.PathCondition{Path: `C:\Scripts\*`}}

	for _, r := range []*rule.Rule{exe, script} {
		if _, err := svc.Create(ctx, r, "tester"); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	if err := svc.DeleteAll(ctx, rule.CollectionExe, "tester"); err != nil {
		t.Fatalf("DeleteAll() error: %v", err)
	}
	rules, _ := svc.List(ctx, "")
	if len(rules) != 1 || rules[0].Collection != rule.CollectionScript {
		t.Errorf("DeleteAll(Exe) left %+v", rules)
	}
}
