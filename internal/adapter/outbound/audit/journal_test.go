package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/AppLock-Forge/applockforge/internal/domain/audit"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// testLogger returns a logger that only surfaces errors during tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func makeRecord(ts time.Time, ruleID string) audit.ChangeRecord {
	return audit.ChangeRecord{
		Timestamp:  ts,
		Change:     audit.ChangeCreated,
		Actor:      "cli",
		RuleID:     ruleID,
		RuleName:   "test rule",
		Collection: rule.CollectionExe,
	}
}

func TestNewFileJournal_CreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "journal")
	j, err := NewFileJournal(FileJournalConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileJournal() error: %v", err)
	}
	defer func() { _ = j.Close() }()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory, got file")
	}
}

func TestFileJournal_AppendWritesJSONLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewFileJournal(FileJournalConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileJournal() error: %v", err)
	}
	defer func() { _ = j.Close() }()

	now := time.Now().UTC()
	if err := j.Append(context.Background(), makeRecord(now, "r-1"), makeRecord(now, "r-2")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := j.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	path := filepath.Join(dir, journalFilename(now.Format("2006-01-02"), 0))
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal file: %v", err)
	}
	defer f.Close()

	var got []audit.ChangeRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec audit.ChangeRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != 2 {
		t.Fatalf("journal has %d lines, want 2", len(got))
	}
	if got[0].RuleID != "r-1" || got[1].RuleID != "r-2" {
		t.Errorf("rule IDs = %q, %q; want r-1, r-2", got[0].RuleID, got[1].RuleID)
	}
	if got[0].Change != audit.ChangeCreated {
		t.Errorf("change = %q, want created", got[0].Change)
	}
}

func TestFileJournal_RecentNewestFirst(t *testing.T) {
	t.Parallel()

	j, err := NewFileJournal(FileJournalConfig{Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("NewFileJournal() error: %v", err)
	}
	defer func() { _ = j.Close() }()

	now := time.Now().UTC()
	for _, id := range []string{"r-1", "r-2", "r-3"} {
		if err := j.Append(context.Background(), makeRecord(now, id)); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	recent := j.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d records", len(recent))
	}
	if recent[0].RuleID != "r-3" || recent[1].RuleID != "r-2" {
		t.Errorf("Recent(2) = %q, %q; want r-3, r-2", recent[0].RuleID, recent[1].RuleID)
	}
}

func TestFileJournal_DateRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewFileJournal(FileJournalConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileJournal() error: %v", err)
	}
	defer func() { _ = j.Close() }()

	day1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	if err := j.Append(context.Background(), makeRecord(day1, "r-1"), makeRecord(day2, "r-2")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	for _, date := range []string{"2026-05-01", "2026-05-02"} {
		if _, err := os.Stat(filepath.Join(dir, journalFilename(date, 0))); err != nil {
			t.Errorf("journal file for %s missing: %v", date, err)
		}
	}
}

func TestFileJournal_CachePopulatedAcrossRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now().UTC()

	j, err := NewFileJournal(FileJournalConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileJournal() error: %v", err)
	}
	if err := j.Append(context.Background(), makeRecord(now, "r-before")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := NewFileJournal(FileJournalConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	recent := reopened.Recent(10)
	if len(recent) != 1 || recent[0].RuleID != "r-before" {
		t.Errorf("Recent() after restart = %+v, want the pre-restart record", recent)
	}
}

func TestFileJournal_RetentionCleanup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	oldName := journalFilename(time.Now().UTC().AddDate(0, 0, -90).Format("2006-01-02"), 0)
	if err := os.WriteFile(filepath.Join(dir, oldName), []byte("{}\n"), 0600); err != nil {
		t.Fatalf("seed old file: %v", err)
	}

	j, err := NewFileJournal(FileJournalConfig{Dir: dir, RetentionDays: 30}, testLogger())
	if err != nil {
		t.Fatalf("NewFileJournal() error: %v", err)
	}
	defer func() { _ = j.Close() }()

	if _, err := os.Stat(filepath.Join(dir, oldName)); !os.IsNotExist(err) {
		t.Errorf("expired journal file still present: %v", err)
	}
}

func TestFileJournal_CloseStopsCleanupGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	j, err := NewFileJournal(FileJournalConfig{Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("NewFileJournal() error: %v", err)
	}
	if err := j.Append(context.Background(), makeRecord(time.Now().UTC(), "r-1")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	// Close is idempotent.
	if err := j.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}

func TestParseJournalFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantOK     bool
		wantDate   string
		wantSuffix int
	}{
		{name: "plain", input: "changes-2026-05-01.log", wantOK: true, wantDate: "2026-05-01"},
		{name: "suffixed", input: "changes-2026-05-01-3.log", wantOK: true, wantDate: "2026-05-01", wantSuffix: 3},
		{name: "other file", input: "notes.txt", wantOK: false},
		{name: "wrong prefix", input: "audit-2026-05-01.log", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info, ok := parseJournalFilename(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if info.date != tt.wantDate || info.suffix != tt.wantSuffix {
				t.Errorf("parsed %q/%d, want %q/%d", info.date, info.suffix, tt.wantDate, tt.wantSuffix)
			}
		})
	}
}
