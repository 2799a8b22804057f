package service

import (
	"context"
	"testing"

	"github.com/AppLock-Forge/applockforge/internal/adapter/outbound/memory"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/domain/simulate"
)

func newTestSimulationService(t *testing.T, rules ...*rule.Rule) *SimulationService {
	t.Helper()
	store := memory.NewRuleStore()
	ctx := context.Background()
	for i, r := range rules {
		r.ID = r.Name
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("seed rule %d: %v", i, err)
		}
	}
	return NewSimulationService(store, discardLogger())
}

func TestSimulationService_DenyWinsOverAllow(t *testing.T) {
	t.Parallel()

	svc := newTestSimulationService(t,
		&rule.Rule{
			Name:       "allow tools",
			Collection: rule.CollectionExe,
			Action:     rule.ActionAllow,
			Conditions: rule.ConditionList{rule.PathCondition{Path: `C:\Tools\*`}},
		},
		&rule.Rule{
			Name:       "deny this one tool",
			Collection: rule.CollectionExe,
			Action:     rule.ActionDeny,
			Conditions: rule.ConditionList{rule.PathCondition{Path: `C:\Tools\blocked.exe`}},
		},
	)

	result, err := svc.Test(context.Background(), rule.TestInput{
		Path:       `C:\Tools\blocked.exe`,
		Collection: rule.CollectionExe,
	})
	if err != nil {
		t.Fatalf("Test() error: %v", err)
	}
	if !result.Denied || result.Allowed {
		t.Errorf("outcome = allowed=%v denied=%v, want deny to win", result.Allowed, result.Denied)
	}
	if result.Outcome != simulate.OutcomeDenied {
		t.Errorf("Outcome = %q, want %q", result.Outcome, simulate.OutcomeDenied)
	}
}

func TestSimulationService_DefaultDeny(t *testing.T) {
	t.Parallel()

	svc := newTestSimulationService(t, &rule.Rule{
		Name:       "allow tools",
		Collection: rule.CollectionExe,
		Action:     rule.ActionAllow,
		Conditions: rule.ConditionList{rule.PathCondition{Path: `C:\Tools\*`}},
	})

	result, err := svc.Test(context.Background(), rule.TestInput{
		Path:       `C:\Elsewhere\random.exe`,
		Collection: rule.CollectionExe,
	})
	if err != nil {
		t.Fatalf("Test() error: %v", err)
	}
	if result.Allowed || result.Denied {
		t.Errorf("unmatched input: allowed=%v denied=%v, want default deny", result.Allowed, result.Denied)
	}
	if result.Outcome != simulate.OutcomeDefaultDeny {
		t.Errorf("Outcome = %q, want %q", result.Outcome, simulate.OutcomeDefaultDeny)
	}
}

func TestSimulationService_SimulateBatch(t *testing.T) {
	t.Parallel()

	svc := newTestSimulationService(t, &rule.Rule{
		Name:       "allow windir",
		Collection: rule.CollectionExe,
		Action:     rule.ActionAllow,
		Conditions: rule.ConditionList{rule.PathCondition{Path: `%WINDIR%\*`}},
	})

	results, err := svc.Simulate(context.Background(), []rule.TestInput{
		{Path: `C:\Windows\notepad.exe`, Collection: rule.CollectionExe},
		{Path: `C:\Users\alice\tool.exe`, Collection: rule.CollectionExe},
	})
	if err != nil {
		t.Fatalf("Simulate() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Simulate() returned %d results, want 2", len(results))
	}
	if !results[0].Allowed {
		t.Errorf("windir binary not allowed: %+v", results[0])
	}
	if results[1].Allowed {
		t.Errorf("user-profile binary allowed: %+v", results[1])
	}
}

func TestSimulationService_ValidateFindsConflicts(t *testing.T) {
	t.Parallel()

	svc := newTestSimulationService(t,
		&rule.Rule{
			Name:       "allow temp",
			Collection: rule.CollectionExe,
			Action:     rule.ActionAllow,
			Conditions: rule.ConditionList{rule.PathCondition{Path: `C:\Temp\*`}},
		},
		&rule.Rule{
			Name:       "deny temp",
			Collection: rule.CollectionExe,
			Action:     rule.ActionDeny,
			Conditions: rule.ConditionList{rule.PathCondition{Path: `C:\Temp\*`}},
		},
	)

	report, err := svc.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Valid {
		t.Error("report.Valid = true with an Allow/Deny conflict present")
	}
	if len(report.Conflicts) != 1 {
		t.Fatalf("Conflicts = %d, want 1", len(report.Conflicts))
	}
}
