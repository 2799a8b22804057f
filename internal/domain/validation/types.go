// Package validation provides structural rule validation and pairwise
// conflict detection for AppLocker rule sets.
package validation

// FieldError is a validation failure tied to one rule field. Validation
// failures are data, not Go errors: the caller decides whether to block.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Warning is a non-blocking advisory about a rule.
type Warning struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RuleReport is the validation outcome for a single rule.
type RuleReport struct {
	RuleID   string       `json:"rule_id,omitempty"`
	RuleName string       `json:"rule_name,omitempty"`
	Errors   []FieldError `json:"errors,omitempty"`
	Warnings []Warning    `json:"warnings,omitempty"`
}

// Valid reports whether the rule passed all structural checks.
func (r RuleReport) Valid() bool { return len(r.Errors) == 0 }

// Conflict records a pair of opposite-action rules whose conditions overlap
// for overlapping principals.
type Conflict struct {
	RuleAID     string `json:"rule_a_id"`
	RuleAName   string `json:"rule_a_name"`
	RuleAAction string `json:"rule_a_action"`
	RuleBID     string `json:"rule_b_id"`
	RuleBName   string `json:"rule_b_name"`
	RuleBAction string `json:"rule_b_action"`
	// Detail names the overlapping condition pair in human-readable form.
	Detail string `json:"detail"`
}

// Report is the outcome of validating a whole rule set.
type Report struct {
	// Valid is true when no rule has errors and no conflicts exist.
	// Warnings do not affect validity.
	Valid     bool         `json:"valid"`
	Rules     []RuleReport `json:"rules,omitempty"`
	Conflicts []Conflict   `json:"conflicts,omitempty"`
}
