// Package simulate evaluates candidate file accesses against a rule set,
// reproducing AppLocker's deny-wins, default-deny decision semantics.
package simulate

import (
	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// Outcome is the final decision for one test case.
type Outcome string

const (
	// OutcomeAllowed means at least one Allow rule matched and no Deny did.
	OutcomeAllowed Outcome = "allowed"
	// OutcomeDenied means a Deny rule matched; deny wins over any Allow.
	OutcomeDenied Outcome = "denied"
	// OutcomeDefaultDeny means no rule matched; AppLocker denies by default.
	OutcomeDefaultDeny Outcome = "denied_default"
)

// MatchedRule identifies one rule that matched a test case.
type MatchedRule struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Action rule.Action `json:"action"`
}

// Result reports the evaluation of a single test case.
type Result struct {
	Input rule.TestInput `json:"input"`

	// Allowed is true when the final outcome permits the access.
	Allowed bool `json:"allowed"`
	// Denied is true only when an explicit Deny rule matched. A default
	// deny leaves both Allowed and Denied false.
	Denied bool `json:"denied"`

	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`

	// MatchingRules lists every rule that matched, in evaluation order.
	// When a Deny short-circuits, rules after it are not evaluated.
	MatchingRules []MatchedRule `json:"matching_rules,omitempty"`
}

// TestPolicy evaluates one test case against the rule set in store order.
// Every matching rule is recorded. The first matching Deny rule stops
// evaluation immediately; otherwise the case is allowed if at least one
// Allow rule matched. With no matches at all the case falls to the
// implicit default deny.
func TestPolicy(rules []rule.Rule, in rule.TestInput) Result {
	res := Result{Input: in}

	for i := range rules {
		r := &rules[i]
		if !rule.RuleMatches(r, in) {
			continue
		}
		res.MatchingRules = append(res.MatchingRules, MatchedRule{
			ID:     r.ID,
			Name:   r.Name,
			Action: r.Action,
		})
		if r.Action == rule.ActionDeny {
			res.Denied = true
			res.Outcome = OutcomeDenied
			res.Reason = "denied by rule " + quoteName(r)
			return res
		}
	}

	if len(res.MatchingRules) > 0 {
		res.Allowed = true
		res.Outcome = OutcomeAllowed
		res.Reason = "allowed by rule " + quoteName(&rule.Rule{
			Name: res.MatchingRules[0].Name, ID: res.MatchingRules[0].ID,
		})
		return res
	}

	res.Outcome = OutcomeDefaultDeny
	res.Reason = "no matching rule (default deny)"
	return res
}

// Simulate evaluates a batch of test cases.
func Simulate(rules []rule.Rule, cases []rule.TestInput) []Result {
	results := make([]Result, len(cases))
	for i, c := range cases {
		results[i] = TestPolicy(rules, c)
	}
	return results
}

func quoteName(r *rule.Rule) string {
	if r.Name != "" {
		return "\"" + r.Name + "\""
	}
	return r.ID
}
