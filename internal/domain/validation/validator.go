package validation

import (
	"fmt"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// ValidateRule runs structural checks on a single rule: non-empty name,
// collection and action present, at least one condition, and the required
// fields of each condition kind. Warnings cover risky-but-legal shapes.
func ValidateRule(r *rule.Rule) RuleReport {
	report := RuleReport{RuleID: r.ID, RuleName: r.Name}

	if r.Name == "" {
		report.Errors = append(report.Errors, FieldError{
			Field: "name", Message: "rule name must not be empty",
		})
	}
	if _, ok := rule.ParseCollection(string(r.Collection)); !ok {
		report.Errors = append(report.Errors, FieldError{
			Field: "collection", Message: fmt.Sprintf("unknown collection %q", r.Collection),
		})
	}
	if r.Action != rule.ActionAllow && r.Action != rule.ActionDeny {
		report.Errors = append(report.Errors, FieldError{
			Field: "action", Message: fmt.Sprintf("action must be Allow or Deny, got %q", r.Action),
		})
	}
	if len(r.Conditions) == 0 {
		report.Errors = append(report.Errors, FieldError{
			Field: "conditions", Message: "rule must have at least one condition",
		})
	}

	for i, c := range r.Conditions {
		report.Errors = append(report.Errors, validateCondition(i, "conditions", c)...)
	}
	for i, c := range r.Exceptions {
		report.Errors = append(report.Errors, validateCondition(i, "exceptions", c)...)
	}

	report.Warnings = append(report.Warnings, ruleWarnings(r)...)
	return report
}

// validateCondition checks the required fields of one condition.
func validateCondition(i int, field string, c rule.Condition) []FieldError {
	var errs []FieldError
	at := func(sub string) string { return fmt.Sprintf("%s[%d].%s", field, i, sub) }

	switch v := c.(type) {
	case rule.PathCondition:
		if v.Path == "" {
			errs = append(errs, FieldError{Field: at("path"), Message: "path must not be empty"})
		}
	case rule.PublisherCondition:
		if v.PublisherName == "" {
			errs = append(errs, FieldError{Field: at("publisher_name"), Message: "publisher name must not be empty"})
		}
		if v.VersionRange != "" && v.VersionRange != rule.VersionAny && v.VersionValue == "" {
			errs = append(errs, FieldError{
				Field:   at("version_value"),
				Message: fmt.Sprintf("version value is required for range type %q", v.VersionRange),
			})
		}
	case rule.HashCondition:
		if v.FileHash == "" {
			errs = append(errs, FieldError{Field: at("file_hash"), Message: "file hash must not be empty"})
		}
		if v.SourceFileName == "" {
			errs = append(errs, FieldError{Field: at("source_file_name"), Message: "source file name must not be empty"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   fmt.Sprintf("%s[%d]", field, i),
			Message: fmt.Sprintf("unknown condition kind %T", c),
		})
	}
	return errs
}

// ruleWarnings reports risky-but-legal rule shapes.
func ruleWarnings(r *rule.Rule) []Warning {
	var warnings []Warning

	// A wildcard-path Allow rule open to everyone effectively disables the
	// collection unless it is scoped to Administrators.
	if r.Action == rule.ActionAllow && rule.NormalizeSID(r.UserOrGroupSid) != rule.AdministratorsSID {
		for _, c := range r.Conditions {
			pc, ok := c.(rule.PathCondition)
			if !ok {
				continue
			}
			if rule.BasePath(rule.NormalizePath(pc.Path)) == "" {
				warnings = append(warnings, Warning{
					Field:   "conditions",
					Message: fmt.Sprintf("wildcard path %q in an Allow rule not restricted to Administrators allows everything in the collection", pc.Path),
				})
				break
			}
		}
	}

	// Mixed condition kinds serialize as a FilePathRule, discarding the
	// structured publisher/hash fields.
	if kinds := conditionKinds(r.Conditions); len(kinds) > 1 {
		warnings = append(warnings, Warning{
			Field:   "conditions",
			Message: "conditions mix kinds; the XML export will encode this rule as a FilePathRule and non-path conditions will not round-trip",
		})
	}

	return warnings
}

func conditionKinds(conds rule.ConditionList) map[rule.ConditionKind]struct{} {
	kinds := make(map[rule.ConditionKind]struct{}, 3)
	for _, c := range conds {
		kinds[c.Kind()] = struct{}{}
	}
	return kinds
}

// DetectConflicts finds pairs of opposite-action rules within the same
// collection, applying to overlapping principals, whose conditions overlap.
// For each rule pair the first overlapping condition pair found wins; later
// overlaps between the same pair are not enumerated.
func DetectConflicts(rules []rule.Rule) []Conflict {
	var conflicts []Conflict
	for i := range rules {
		for j := i + 1; j < len(rules); j++ {
			a, b := &rules[i], &rules[j]
			if a.Collection != b.Collection || a.Action == b.Action {
				continue
			}
			if !principalsOverlap(a, b) {
				continue
			}
			if detail, ok := firstConditionOverlap(a, b); ok {
				conflicts = append(conflicts, Conflict{
					RuleAID:     a.ID,
					RuleAName:   a.Name,
					RuleAAction: string(a.Action),
					RuleBID:     b.ID,
					RuleBName:   b.Name,
					RuleBAction: string(b.Action),
					Detail:      detail,
				})
			}
		}
	}
	return conflicts
}

// principalsOverlap reports whether two rules could apply to the same user:
// equal principals, or either side is the Everyone default.
func principalsOverlap(a, b *rule.Rule) bool {
	if a.AppliesToEveryone() || b.AppliesToEveryone() {
		return true
	}
	return rule.NormalizeSID(a.UserOrGroupSid) == rule.NormalizeSID(b.UserOrGroupSid)
}

// firstConditionOverlap scans condition pairs in order and returns a
// human-readable description of the first overlap found.
func firstConditionOverlap(a, b *rule.Rule) (string, bool) {
	for _, ca := range a.Conditions {
		for _, cb := range b.Conditions {
			if !rule.ConditionsOverlap(ca, cb) {
				continue
			}
			return fmt.Sprintf("%s %s overlaps %s %s",
				ca.Kind(), describeCondition(ca), cb.Kind(), describeCondition(cb)), true
		}
	}
	return "", false
}

func describeCondition(c rule.Condition) string {
	switch v := c.(type) {
	case rule.PathCondition:
		return fmt.Sprintf("%q", v.Path)
	case rule.PublisherCondition:
		return fmt.Sprintf("%q", v.PublisherName)
	case rule.HashCondition:
		return fmt.Sprintf("%q", v.FileHash)
	}
	return "?"
}

// ValidateAll validates every rule and runs conflict detection once over the
// whole set. The overall result is valid only when no rule has errors and no
// conflicts exist; warnings alone do not invalidate.
func ValidateAll(rules []rule.Rule) Report {
	report := Report{Valid: true}
	for i := range rules {
		rr := ValidateRule(&rules[i])
		if len(rr.Errors) > 0 || len(rr.Warnings) > 0 {
			report.Rules = append(report.Rules, rr)
		}
		if !rr.Valid() {
			report.Valid = false
		}
	}
	report.Conflicts = DetectConflicts(rules)
	if len(report.Conflicts) > 0 {
		report.Valid = false
	}
	return report
}
