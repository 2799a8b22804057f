package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AppLock-Forge/applockforge/internal/domain/audit"
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
	"github.com/AppLock-Forge/applockforge/internal/domain/validation"
	"github.com/AppLock-Forge/applockforge/pkg/axml"
)

//go:embed default_rules.xml
var defaultRulesXML string

// ErrNoImportableRules is returned when an import yields neither new rules
// nor recognized duplicates.
var ErrNoImportableRules = errors.New("no importable rules in policy")

// ErrEmptyCollection is returned when a collection export finds no rules to
// serialize.
var ErrEmptyCollection = errors.New("no rules in collection")

// FailedRule describes one rule skipped during import.
type FailedRule struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ImportResult summarizes an import: how many rules were added, how many
// were already present, and which ones could not be imported.
type ImportResult struct {
	ImportedCount         int          `json:"importedCount"`
	SkippedDuplicateCount int          `json:"skippedDuplicateCount"`
	FailedRules           []FailedRule `json:"failedRules,omitempty"`
}

// PolicyIOService orchestrates XML export and import between the rule store
// and the AppLocker policy format.
type PolicyIOService struct {
	store    rule.Store
	settings rule.SettingsStore
	journal  audit.Journal
	logger   *slog.Logger
}

// NewPolicyIOService creates a new PolicyIOService.
func NewPolicyIOService(store rule.Store, settings rule.SettingsStore, journal audit.Journal, logger *slog.Logger) *PolicyIOService {
	return &PolicyIOService{
		store:    store,
		settings: settings,
		journal:  journal,
		logger:   logger,
	}
}

// Export renders the full policy as AppLocker XML using the stored version
// and per-collection enforcement modes.
func (s *PolicyIOService) Export(ctx context.Context, defaultMode rule.EnforcementMode) (string, error) {
	rules, err := s.store.List(ctx, "")
	if err != nil {
		return "", fmt.Errorf("load rules: %w", err)
	}
	modes, err := s.settings.EnforcementModes(ctx)
	if err != nil {
		return "", fmt.Errorf("load enforcement modes: %w", err)
	}
	version, err := s.settings.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("load policy version: %w", err)
	}

	doc := rule.PolicyDocument{
		Version:          version,
		Rules:            rules,
		EnforcementModes: modes,
	}
	return axml.Generate(doc, defaultMode)
}

// ExportCollection renders a single collection as a bare RuleCollection
// fragment.
func (s *PolicyIOService) ExportCollection(ctx context.Context, col rule.Collection, defaultMode rule.EnforcementMode) (string, error) {
	rules, err := s.store.List(ctx, col)
	if err != nil {
		return "", fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyCollection, col)
	}
	modes, err := s.settings.EnforcementModes(ctx)
	if err != nil {
		return "", fmt.Errorf("load enforcement modes: %w", err)
	}
	mode := modes[col]
	if mode == "" {
		mode = defaultMode
	}
	return axml.GenerateCollection(col, rules, mode)
}

// Import parses AppLocker XML and adds its rules to the store. Imported
// rules get fresh IDs; rules equivalent to stored ones are counted as
// duplicates and skipped; rules that fail validation are reported in
// FailedRules. An import that produces neither new rules nor duplicates
// returns ErrNoImportableRules.
func (s *PolicyIOService) Import(ctx context.Context, input, actor string) (*ImportResult, error) {
	doc, err := axml.Parse(input)
	if err != nil {
		return nil, err
	}
	result, err := s.importRules(ctx, doc.Rules, actor, "xml import")
	if err != nil {
		return nil, err
	}
	if err := s.storePolicySettings(ctx, doc.EnforcementModes, doc.Version); err != nil {
		return nil, err
	}
	return result, nil
}

// ImportDefaultRules loads the baseline rule set shipped with the binary:
// the standard Windows allow rules plus the Administrators catch-all.
// A non-empty collection restricts the import to that collection's defaults.
func (s *PolicyIOService) ImportDefaultRules(ctx context.Context, collection rule.Collection, actor string) (*ImportResult, error) {
	doc, err := axml.Parse(defaultRulesXML)
	if err != nil {
		return nil, fmt.Errorf("parse embedded default rules: %w", err)
	}
	rules := doc.Rules
	if collection != "" {
		filtered := rules[:0]
		for _, r := range rules {
			if r.Collection == collection {
				filtered = append(filtered, r)
			}
		}
		rules = filtered
	}
	result, err := s.importRules(ctx, rules, actor, "default rules")
	if err != nil {
		return nil, err
	}
	if collection != "" {
		// Only the requested collection's mode carries over; the policy
		// version and other collections stay untouched.
		if mode, ok := doc.EnforcementModes[collection]; ok {
			if err := s.settings.SetEnforcementMode(ctx, collection, mode); err != nil {
				return nil, fmt.Errorf("store enforcement mode: %w", err)
			}
		}
	} else if err := s.storePolicySettings(ctx, doc.EnforcementModes, doc.Version); err != nil {
		return nil, err
	}
	return result, nil
}

// storePolicySettings persists the enforcement modes and version carried by
// an imported policy document.
func (s *PolicyIOService) storePolicySettings(ctx context.Context, modes map[rule.Collection]rule.EnforcementMode, version string) error {
	for col, mode := range modes {
		if err := s.settings.SetEnforcementMode(ctx, col, mode); err != nil {
			return fmt.Errorf("store enforcement mode: %w", err)
		}
	}
	if version != "" {
		if err := s.settings.SetVersion(ctx, version); err != nil {
			return fmt.Errorf("store policy version: %w", err)
		}
	}
	return nil
}

// DefaultRules returns the baseline rule set without storing it.
func (s *PolicyIOService) DefaultRules() ([]rule.Rule, error) {
	doc, err := axml.Parse(defaultRulesXML)
	if err != nil {
		return nil, fmt.Errorf("parse embedded default rules: %w", err)
	}
	return doc.Rules, nil
}

func (s *PolicyIOService) importRules(ctx context.Context, rules []rule.Rule, actor, source string) (*ImportResult, error) {
	result := &ImportResult{}
	now := time.Now().UTC()

	for i := range rules {
		r := &rules[i]
		if report := validation.ValidateRule(r); len(report.Errors) > 0 {
			s.logger.Warn("skipping invalid rule during import",
				"name", r.Name, "collection", r.Collection, "errors", len(report.Errors))
			result.FailedRules = append(result.FailedRules, FailedRule{
				Name:   r.Name,
				Reason: invalidRule(report.Errors).Error(),
			})
			continue
		}

		existing, err := s.store.FindEquivalent(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("check for duplicate: %w", err)
		}
		if existing != nil {
			result.SkippedDuplicateCount++
			continue
		}

		r.ID = uuid.New().String()
		r.CreatedAt = now
		r.UpdatedAt = now
		if err := s.store.Insert(ctx, r); err != nil {
			return nil, fmt.Errorf("save imported rule: %w", err)
		}
		result.ImportedCount++
	}

	if result.ImportedCount == 0 && result.SkippedDuplicateCount == 0 {
		return nil, ErrNoImportableRules
	}

	if err := s.journal.Append(ctx, audit.ChangeRecord{
		Timestamp: now,
		Change:    audit.ChangeImported,
		Actor:     actor,
		Detail:    fmt.Sprintf("%s: %d imported, %d duplicates", source, result.ImportedCount, result.SkippedDuplicateCount),
	}); err != nil {
		s.logger.Error("journal append failed", "change", audit.ChangeImported, "error", err)
	}
	s.logger.Info("import completed",
		"source", source,
		"imported", result.ImportedCount,
		"duplicates", result.SkippedDuplicateCount,
		"failed", len(result.FailedRules))

	return result, nil
}

// SetEnforcementMode records the enforcement mode for one collection.
func (s *PolicyIOService) SetEnforcementMode(ctx context.Context, col rule.Collection, mode rule.EnforcementMode, actor string) error {
	if err := s.settings.SetEnforcementMode(ctx, col, mode); err != nil {
		return fmt.Errorf("store enforcement mode: %w", err)
	}
	if err := s.journal.Append(ctx, audit.ChangeRecord{
		Timestamp:  time.Now().UTC(),
		Change:     audit.ChangeModeChanged,
		Actor:      actor,
		Collection: col,
		Detail:     string(mode),
	}); err != nil {
		s.logger.Error("journal append failed", "change", audit.ChangeModeChanged, "error", err)
	}
	s.logger.Info("enforcement mode changed", "collection", col, "mode", mode)
	return nil
}

// EnforcementModes returns the stored per-collection mode map.
func (s *PolicyIOService) EnforcementModes(ctx context.Context) (map[rule.Collection]rule.EnforcementMode, error) {
	return s.settings.EnforcementModes(ctx)
}
