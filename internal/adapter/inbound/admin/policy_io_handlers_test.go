package admin

import (
	"net/http"
	"strings"
	"testing"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/service"
)

func TestHandleExport(t *testing.T) {
	env := setupAdminTestEnv(t)

	env.doRequest(t, "POST", "/api/rules", testRule("App"))

	rec := env.doRequest(t, "GET", "/api/export/xml", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/export/xml status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "<AppLockerPolicy") {
		t.Errorf("export missing AppLockerPolicy root:\n%s", body)
	}
	if !strings.Contains(body, `Name="App"`) {
		t.Errorf("export missing rule:\n%s", body)
	}
}

func TestHandleExportCollection(t *testing.T) {
	env := setupAdminTestEnv(t)

	script := testRule("ScriptApp")
	script.Collection = rule.CollectionScript
	env.doRequest(t, "POST", "/api/rules", testRule("ExeApp"))
	env.doRequest(t, "POST", "/api/rules", script)

	rec := env.doRequest(t, "GET", "/api/export/collection/Script", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/export/collection/Script status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<AppLockerPolicy") {
		t.Errorf("collection export should be a bare fragment:\n%s", body)
	}
	if !strings.Contains(body, `Name="ScriptApp"`) || strings.Contains(body, `Name="ExeApp"`) {
		t.Errorf("collection export has wrong rules:\n%s", body)
	}

	rec = env.doRequest(t, "GET", "/api/export/collection/Gadget", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown collection status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = env.doRequest(t, "GET", "/api/export/collection/Msi", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty collection status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleImport(t *testing.T) {
	env := setupAdminTestEnv(t)

	policy := `<AppLockerPolicy Version="1">
  <RuleCollection Type="Exe" EnforcementMode="AuditOnly">
    <FilePathRule Id="a5c1b0e2-94a3-4362-9ae4-0f01a8e71a1c" Name="Imported" UserOrGroupSid="S-1-1-0" Action="Allow">
      <Conditions>
        <FilePathCondition Path="%WINDIR%\*"/>
      </Conditions>
    </FilePathRule>
  </RuleCollection>
</AppLockerPolicy>`

	rec := env.doRawRequest(t, "POST", "/api/import/xml", policy, "127.0.0.1:1234", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/import/xml status = %d, want %d (body=%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	result := decodeBody[service.ImportResult](t, rec)
	if result.ImportedCount != 1 {
		t.Errorf("ImportedCount = %d, want 1", result.ImportedCount)
	}

	// Importing the same policy again only skips duplicates.
	rec = env.doRawRequest(t, "POST", "/api/import/xml", policy, "127.0.0.1:1234", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second import status = %d, want %d", rec.Code, http.StatusOK)
	}
	result = decodeBody[service.ImportResult](t, rec)
	if result.ImportedCount != 0 || result.SkippedDuplicateCount != 1 {
		t.Errorf("second import = %+v, want 0 imported, 1 duplicate", result)
	}
}

func TestHandleImport_Malformed(t *testing.T) {
	env := setupAdminTestEnv(t)

	rec := env.doRawRequest(t, "POST", "/api/import/xml", "<AppLockerPolicy", "127.0.0.1:1234", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed import status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	empty := `<AppLockerPolicy Version="1"><RuleCollection Type="Exe" EnforcementMode="AuditOnly"/></AppLockerPolicy>`
	rec = env.doRawRequest(t, "POST", "/api/import/xml", empty, "127.0.0.1:1234", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty import status = %d, want %d (body=%s)", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
}

func TestHandleDefaultRules(t *testing.T) {
	env := setupAdminTestEnv(t)

	rec := env.doRequest(t, "GET", "/api/default-rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/default-rules status = %d, want %d", rec.Code, http.StatusOK)
	}
	rules := decodeBody[[]rule.Rule](t, rec)
	if len(rules) == 0 {
		t.Fatal("default rules is empty")
	}

	// Previewing must not store anything.
	stored := decodeBody[[]rule.Rule](t, env.doRequest(t, "GET", "/api/rules", nil))
	if len(stored) != 0 {
		t.Errorf("preview stored %d rules, want 0", len(stored))
	}
}

func TestHandleImportDefaultRules(t *testing.T) {
	env := setupAdminTestEnv(t)

	rec := env.doRequest(t, "POST", "/api/import/default-rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/import/default-rules status = %d, want %d", rec.Code, http.StatusOK)
	}
	result := decodeBody[service.ImportResult](t, rec)
	if result.ImportedCount == 0 {
		t.Error("ImportedCount = 0, want default rules imported")
	}

	stored := decodeBody[[]rule.Rule](t, env.doRequest(t, "GET", "/api/rules", nil))
	if len(stored) != result.ImportedCount {
		t.Errorf("stored %d rules, want %d", len(stored), result.ImportedCount)
	}
}

func TestHandleImportDefaultRulesForCollection(t *testing.T) {
	env := setupAdminTestEnv(t)

	rec := env.doRequest(t, "POST", "/api/import/default-rules?collection=Script", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	result := decodeBody[service.ImportResult](t, rec)
	if result.ImportedCount == 0 {
		t.Error("ImportedCount = 0, want Script default rules imported")
	}

	stored := decodeBody[[]rule.Rule](t, env.doRequest(t, "GET", "/api/rules", nil))
	for _, r := range stored {
		if r.Collection != rule.CollectionScript {
			t.Errorf("stored rule %q in collection %s, want Script only", r.Name, r.Collection)
		}
	}

	rec = env.doRequest(t, "POST", "/api/import/default-rules?collection=Gadget", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown collection status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleEnforcementModes(t *testing.T) {
	env := setupAdminTestEnv(t, WithDefaultEnforcementMode(rule.ModeAuditOnly))

	rec := env.doRequest(t, "GET", "/api/enforcement-modes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/enforcement-modes status = %d, want %d", rec.Code, http.StatusOK)
	}
	modes := decodeBody[map[rule.Collection]rule.EnforcementMode](t, rec)
	if len(modes) != len(rule.Collections) {
		t.Errorf("modes cover %d collections, want %d", len(modes), len(rule.Collections))
	}
	if modes[rule.CollectionExe] != rule.ModeAuditOnly {
		t.Errorf("Exe mode = %q, want default AuditOnly", modes[rule.CollectionExe])
	}

	rec = env.doRequest(t, "PUT", "/api/enforcement-modes", setModeRequest{
		Collection: "Exe",
		Mode:       "Enabled",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /api/enforcement-modes status = %d, want %d (body=%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	modes = decodeBody[map[rule.Collection]rule.EnforcementMode](t, env.doRequest(t, "GET", "/api/enforcement-modes", nil))
	if modes[rule.CollectionExe] != rule.ModeEnabled {
		t.Errorf("Exe mode after update = %q, want Enabled", modes[rule.CollectionExe])
	}
}

func TestHandleSetEnforcementMode_Invalid(t *testing.T) {
	env := setupAdminTestEnv(t)

	rec := env.doRequest(t, "PUT", "/api/enforcement-modes", setModeRequest{Collection: "Gadget", Mode: "Enabled"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown collection status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = env.doRequest(t, "PUT", "/api/enforcement-modes", setModeRequest{Collection: "Exe", Mode: "Enforced"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mode status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
