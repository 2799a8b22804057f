package admin

import (
	"net/http"
	"testing"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/domain/simulate"
	"github.com/AppLock-Forge/applockforge/internal/domain/validation"
)

func TestHandleValidate(t *testing.T) {
	env := setupAdminTestEnv(t)

	allow := testRule("AllowTemp")
	allow.Conditions = rule.ConditionList{rule.PathCondition{Path: `C:\Temp\*`}}
	deny := testRule("DenyTemp")
	deny.Action = rule.ActionDeny
	deny.Conditions = rule.ConditionList{rule.PathCondition{Path: `C:\Temp\evil.exe`}}
	env.doRequest(t, "POST", "/api/rules", allow)
	env.doRequest(t, "POST", "/api/rules", deny)

	rec := env.doRequest(t, "GET", "/api/validate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/validate status = %d, want %d", rec.Code, http.StatusOK)
	}
	report := decodeBody[validation.Report](t, rec)
	if report.Valid {
		t.Error("report.Valid = true, want conflict to invalidate")
	}
	if len(report.Conflicts) != 1 {
		t.Fatalf("len(Conflicts) = %d, want 1", len(report.Conflicts))
	}
}

func TestHandleValidate_CleanStore(t *testing.T) {
	env := setupAdminTestEnv(t)

	env.doRequest(t, "POST", "/api/rules", testRule("App"))

	rec := env.doRequest(t, "GET", "/api/validate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/validate status = %d, want %d", rec.Code, http.StatusOK)
	}
	report := decodeBody[validation.Report](t, rec)
	if !report.Valid {
		t.Errorf("report.Valid = false, want true: %+v", report)
	}
}

func TestHandleSimulate(t *testing.T) {
	env := setupAdminTestEnv(t)

	allow := testRule("AllowApps")
	allow.Conditions = rule.ConditionList{rule.PathCondition{Path: `C:\Apps\*`}}
	env.doRequest(t, "POST", "/api/rules", allow)

	rec := env.doRequest(t, "POST", "/api/simulate", simulateRequest{
		Cases: []rule.TestInput{
			{Path: `C:\Apps\tool.exe`},
			{Path: `D:\elsewhere\tool.exe`},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/simulate status = %d, want %d (body=%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	results := decodeBody[[]simulate.Result](t, rec)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Outcome != simulate.OutcomeAllowed {
		t.Errorf("results[0].Outcome = %q, want allowed", results[0].Outcome)
	}
	if results[1].Outcome != simulate.OutcomeDefaultDeny {
		t.Errorf("results[1].Outcome = %q, want denied_default", results[1].Outcome)
	}
}

func TestHandleSimulate_EmptyCases(t *testing.T) {
	env := setupAdminTestEnv(t)

	rec := env.doRequest(t, "POST", "/api/simulate", simulateRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty cases status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = env.doRawRequest(t, "POST", "/api/simulate", "not json", "127.0.0.1:1234", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
