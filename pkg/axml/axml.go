// Package axml is the codec between the rule domain model and the AppLocker
// policy XML schema. Generation produces the minimal canonical form AppLocker
// consumes; parsing is tolerant of the layout variations seen in real
// exported policies (namespace prefixes, attribute-or-child-element fields,
// merged FileHashCondition elements).
package axml

import (
	"errors"
	"strings"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// Element and attribute names of the AppLocker schema subset we round-trip.
const (
	tagPolicy         = "AppLockerPolicy"
	tagRuleCollection = "RuleCollection"
	tagPathRule       = "FilePathRule"
	tagPublisherRule  = "FilePublisherRule"
	tagHashRule       = "FileHashRule"
	tagConditions     = "Conditions"
	tagExceptions     = "Exceptions"
	tagPathCond       = "FilePathCondition"
	tagPublisherCond  = "FilePublisherCondition"
	tagHashCond       = "FileHashCondition"
	tagFileHash       = "FileHash"
	tagVersionRange   = "BinaryVersionRange"
)

// ErrMalformed is returned when the input is not well-formed XML.
var ErrMalformed = errors.New("malformed AppLocker XML")

// ErrUnexpectedRoot is returned when the root element is neither
// AppLockerPolicy nor RuleCollection.
var ErrUnexpectedRoot = errors.New("unexpected root element")

// ruleTags are the rule element names, used when enumerating a collection's
// children.
var ruleTags = map[string]bool{
	tagPathRule:      true,
	tagPublisherRule: true,
	tagHashRule:      true,
}

// conditionTags are the condition element names recovered on parse.
var conditionTags = map[string]bool{
	tagPathCond:      true,
	tagPublisherCond: true,
	tagHashCond:      true,
}

// inferRuleTag picks the AppLocker rule element name from a condition set:
// all-hash sets become FileHashRule, all-publisher sets FilePublisherRule,
// and everything else (path sets, mixed sets, empty sets) FilePathRule.
func inferRuleTag(conds rule.ConditionList) string {
	if len(conds) == 0 {
		return tagPathRule
	}
	allHash, allPublisher := true, true
	for _, c := range conds {
		switch c.Kind() {
		case rule.KindHash:
			allPublisher = false
		case rule.KindPublisher:
			allHash = false
		default:
			allHash, allPublisher = false, false
		}
	}
	switch {
	case allHash:
		return tagHashRule
	case allPublisher:
		return tagPublisherRule
	}
	return tagPathRule
}

// hashData renders a digest in XML form: 0x prefix, uppercase hex.
func hashData(h string) string {
	return "0x" + strings.ToUpper(rule.NormalizeHash(h))
}

// orStar substitutes "*" for empty publisher sub-fields.
func orStar(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
