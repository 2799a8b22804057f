// Package sqlite persists rules and policy settings in a SQLite database.
// It backs the same ports as the memory package for deployments that need
// rules to survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	collection        TEXT NOT NULL,
	action            TEXT NOT NULL,
	user_or_group_sid TEXT NOT NULL DEFAULT '',
	conditions        TEXT NOT NULL,
	exceptions        TEXT NOT NULL,
	fingerprint       TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rules_collection  ON rules (collection);
CREATE INDEX IF NOT EXISTS idx_rules_fingerprint ON rules (fingerprint);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store implements rule.Store and rule.SettingsStore on a SQLite file.
// Insertion order is the rowid order of the rules table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc.org/sqlite connections don't share in-memory databases and
	// serialize writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const ruleColumns = "id, name, description, collection, action, user_or_group_sid, conditions, exceptions, created_at, updated_at"

// List returns rules in insertion order, filtered to one collection when
// collection is non-empty.
func (s *Store) List(ctx context.Context, collection rule.Collection) ([]rule.Rule, error) {
	query := "SELECT " + ruleColumns + " FROM rules"
	var args []any
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, string(collection))
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var result []rule.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// Get returns a rule by ID, or rule.ErrRuleNotFound.
func (s *Store) Get(ctx context.Context, id string) (*rule.Rule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM rules WHERE id = ?", id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rule.ErrRuleNotFound
	}
	return r, err
}

// Insert stores a new rule.
func (s *Store) Insert(ctx context.Context, r *rule.Rule) error {
	conds, excs, err := encodeConditions(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO rules ("+ruleColumns+", fingerprint) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.Name, r.Description, string(r.Collection), string(r.Action), r.UserOrGroupSid,
		conds, excs, encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt), fingerprintKey(r))
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", r.ID, err)
	}
	return nil
}

// Update replaces a stored rule by ID, or returns rule.ErrRuleNotFound.
func (s *Store) Update(ctx context.Context, r *rule.Rule) error {
	conds, excs, err := encodeConditions(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET name = ?, description = ?, collection = ?, action = ?,
			user_or_group_sid = ?, conditions = ?, exceptions = ?,
			created_at = ?, updated_at = ?, fingerprint = ?
		 WHERE id = ?`,
		r.Name, r.Description, string(r.Collection), string(r.Action), r.UserOrGroupSid,
		conds, excs, encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt), fingerprintKey(r), r.ID)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", r.ID, err)
	}
	return requireRow(res)
}

// Delete removes a rule by ID, or returns rule.ErrRuleNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return requireRow(res)
}

// DeleteAll removes every rule, or every rule in one collection.
func (s *Store) DeleteAll(ctx context.Context, collection rule.Collection) error {
	query, args := "DELETE FROM rules", []any{}
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, string(collection))
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete rules: %w", err)
	}
	return nil
}

// FindEquivalent returns a stored duplicate of r, or nil when none exists.
// The fingerprint index narrows candidates; the domain comparison confirms.
func (s *Store) FindEquivalent(ctx context.Context, r *rule.Rule) (*rule.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM rules WHERE fingerprint = ? ORDER BY rowid", fingerprintKey(r))
	if err != nil {
		return nil, fmt.Errorf("find equivalent rule: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		cand, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		if rule.Equivalent(cand, r) {
			return cand, nil
		}
	}
	return nil, rows.Err()
}

// EnforcementModes returns the per-collection mode map.
func (s *Store) EnforcementModes(ctx context.Context) (map[rule.Collection]rule.EnforcementMode, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings WHERE key LIKE 'mode:%'")
	if err != nil {
		return nil, fmt.Errorf("load enforcement modes: %w", err)
	}
	defer rows.Close()

	modes := make(map[rule.Collection]rule.EnforcementMode)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan enforcement mode: %w", err)
		}
		if col, ok := rule.ParseCollection(key[len("mode:"):]); ok {
			modes[col] = rule.EnforcementMode(value)
		}
	}
	return modes, rows.Err()
}

// SetEnforcementMode records the mode for one collection.
func (s *Store) SetEnforcementMode(ctx context.Context, c rule.Collection, m rule.EnforcementMode) error {
	return s.setSetting(ctx, "mode:"+string(c), string(m))
}

// Version returns the policy version string, defaulting to "1".
func (s *Store) Version(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = 'version'").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "1", nil
	}
	if err != nil {
		return "", fmt.Errorf("load version: %w", err)
	}
	return v, nil
}

// SetVersion records the policy version string.
func (s *Store) SetVersion(ctx context.Context, v string) error {
	return s.setSetting(ctx, "version", v)
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rule.ErrRuleNotFound
	}
	return nil
}

func encodeConditions(r *rule.Rule) (conds, excs string, err error) {
	cb, err := json.Marshal(r.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("encode conditions for rule %s: %w", r.ID, err)
	}
	eb, err := json.Marshal(r.Exceptions)
	if err != nil {
		return "", "", fmt.Errorf("encode exceptions for rule %s: %w", r.ID, err)
	}
	return string(cb), string(eb), nil
}

func fingerprintKey(r *rule.Rule) string {
	return strconv.FormatUint(rule.Fingerprint(r), 16)
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*rule.Rule, error) {
	var (
		r                    rule.Rule
		col, action          string
		conds, excs          string
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &col, &action, &r.UserOrGroupSid,
		&conds, &excs, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	r.Collection = rule.Collection(col)
	r.Action = rule.Action(action)
	if err := json.Unmarshal([]byte(conds), &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions for rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(excs), &r.Exceptions); err != nil {
		return nil, fmt.Errorf("decode exceptions for rule %s: %w", r.ID, err)
	}
	r.CreatedAt = decodeTime(createdAt)
	r.UpdatedAt = decodeTime(updatedAt)
	return &r, nil
}

// Verify interface compliance at compile time.
var (
	_ rule.Store         = (*Store)(nil)
	_ rule.SettingsStore = (*Store)(nil)
)
