package axml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// Parse decodes AppLocker policy XML into the domain model. The root may be
// either a full AppLockerPolicy document or a bare RuleCollection fragment.
// Anything else returns ErrUnexpectedRoot; input that is not well-formed XML
// returns ErrMalformed.
func Parse(input string) (rule.PolicyDocument, error) {
	src := etree.NewDocument()
	if err := src.ReadFromString(input); err != nil {
		return rule.PolicyDocument{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := src.Root()
	if root == nil {
		return rule.PolicyDocument{}, fmt.Errorf("%w: no root element", ErrMalformed)
	}

	doc := rule.PolicyDocument{
		Version:          "1",
		EnforcementModes: make(map[rule.Collection]rule.EnforcementMode),
	}
	switch root.Tag {
	case tagPolicy:
		if v := fieldOf(root, "Version"); v != "" {
			doc.Version = v
		}
		for _, col := range collectByTag(root, func(tag string) bool { return tag == tagRuleCollection }, nil) {
			parseCollection(col, &doc)
		}
	case tagRuleCollection:
		parseCollection(root, &doc)
	default:
		return rule.PolicyDocument{}, fmt.Errorf("%w: <%s>", ErrUnexpectedRoot, root.Tag)
	}
	return doc, nil
}

// parseCollection reads one RuleCollection element into the document. An
// unknown Type attribute falls back to Exe rather than failing the import.
func parseCollection(el *etree.Element, doc *rule.PolicyDocument) {
	col, ok := rule.ParseCollection(fieldOf(el, "Type"))
	if !ok {
		col = rule.CollectionExe
	}
	doc.EnforcementModes[col] = parseMode(fieldOf(el, "EnforcementMode"))

	for _, re := range collectByTag(el, func(tag string) bool { return ruleTags[tag] }, nil) {
		doc.Rules = append(doc.Rules, parseRule(re, col))
	}
}

// parseMode decodes an EnforcementMode attribute. "Enforced", which some
// tooling emits in place of the schema value, coerces to Enabled; anything
// unrecognized becomes AuditOnly.
func parseMode(s string) rule.EnforcementMode {
	switch rule.EnforcementMode(strings.TrimSpace(s)) {
	case rule.ModeEnabled:
		return rule.ModeEnabled
	case rule.ModeNotConfigured:
		return rule.ModeNotConfigured
	case rule.ModeAuditOnly:
		return rule.ModeAuditOnly
	}
	if strings.EqualFold(strings.TrimSpace(s), "Enforced") {
		return rule.ModeEnabled
	}
	return rule.ModeAuditOnly
}

func parseRule(el *etree.Element, col rule.Collection) rule.Rule {
	r := rule.Rule{
		ID:             fieldOf(el, "Id"),
		Name:           fieldOf(el, "Name"),
		Description:    fieldOf(el, "Description"),
		Collection:     col,
		UserOrGroupSid: fieldOf(el, "UserOrGroupSid"),
	}
	if r.UserOrGroupSid == "" {
		r.UserOrGroupSid = rule.EveryoneSID
	}
	if strings.EqualFold(fieldOf(el, "Action"), string(rule.ActionDeny)) {
		r.Action = rule.ActionDeny
	} else {
		r.Action = rule.ActionAllow
	}

	// Condition elements outside any Exceptions subtree are the rule's
	// conditions, whether or not a Conditions wrapper is present.
	inExceptions := func(tag string) bool { return tag == tagExceptions }
	for _, ce := range collectByTag(el, func(tag string) bool { return conditionTags[tag] }, inExceptions) {
		r.Conditions = append(r.Conditions, parseCondition(ce)...)
	}
	for _, exc := range collectByTag(el, inExceptions, nil) {
		for _, ce := range collectByTag(exc, func(tag string) bool { return conditionTags[tag] }, nil) {
			r.Exceptions = append(r.Exceptions, parseCondition(ce)...)
		}
	}
	return r
}

// parseCondition decodes one condition element. A FileHashCondition expands
// to one HashCondition per FileHash child, undoing the merged form the
// generator writes.
func parseCondition(el *etree.Element) []rule.Condition {
	switch el.Tag {
	case tagPathCond:
		return []rule.Condition{rule.PathCondition{Path: fieldOf(el, "Path")}}
	case tagPublisherCond:
		pc := rule.PublisherCondition{
			PublisherName: fieldOf(el, "PublisherName"),
			ProductName:   fieldOf(el, "ProductName"),
			BinaryName:    fieldOf(el, "BinaryName"),
		}
		pc.VersionRange, pc.VersionValue = parseVersionRange(el)
		return []rule.Condition{pc}
	case tagHashCond:
		hashes := collectByTag(el, func(tag string) bool { return tag == tagFileHash }, nil)
		if len(hashes) == 0 {
			// Degenerate single-hash form with the digest on the
			// condition element itself.
			hashes = []*etree.Element{el}
		}
		conds := make([]rule.Condition, 0, len(hashes))
		for _, he := range hashes {
			hc := rule.HashCondition{
				FileHash:       rule.NormalizeHash(fieldOf(he, "Data")),
				HashType:       fieldOf(he, "Type"),
				SourceFileName: fieldOf(he, "SourceFileName"),
			}
			if hc.HashType == "" {
				hc.HashType = "SHA256"
			}
			if n, err := strconv.ParseInt(fieldOf(he, "SourceFileLength"), 10, 64); err == nil {
				hc.SourceFileLength = n
			}
			conds = append(conds, hc)
		}
		return conds
	}
	return nil
}

// parseVersionRange decodes a BinaryVersionRange child, if present, into the
// domain's range form. Single-sided bounds with a wildcard on the other side
// become and_above or and_below; equal bounds become exactly; a missing
// element or a fully wildcarded range means no constraint.
func parseVersionRange(el *etree.Element) (rule.VersionRangeType, string) {
	ranges := collectByTag(el, func(tag string) bool { return tag == tagVersionRange }, nil)
	if len(ranges) == 0 {
		return rule.VersionAny, ""
	}
	low := strings.TrimSpace(fieldOf(ranges[0], "LowSection"))
	high := strings.TrimSpace(fieldOf(ranges[0], "HighSection"))
	switch {
	case (low == "" || low == "*") && (high == "" || high == "*"):
		return rule.VersionAny, ""
	case low == high:
		return rule.VersionExactly, low
	case high == "" || high == "*":
		return rule.VersionAndAbove, low
	case low == "" || low == "*":
		return rule.VersionAndBelow, high
	}
	// Two distinct real bounds have no single-sided equivalent; keep the
	// lower bound.
	return rule.VersionAndAbove, low
}

// fieldOf reads a field that may be encoded as an attribute or as a child
// element's text, preferring the attribute. Real exports use attributes; the
// child-element form shows up in hand-edited policies.
func fieldOf(el *etree.Element, name string) string {
	if a := el.SelectAttr(name); a != nil {
		return a.Value
	}
	for _, child := range el.ChildElements() {
		if child.Tag == name {
			return strings.TrimSpace(child.Text())
		}
	}
	return ""
}

// collectByTag walks a subtree in document order and returns the elements
// whose local tag satisfies match. Matched elements are not descended into,
// and subtrees whose root satisfies skip are passed over entirely. etree
// splits namespace prefixes into Element.Space, so prefixed tags compare by
// their local name for free.
func collectByTag(root *etree.Element, match func(string) bool, skip func(string) bool) []*etree.Element {
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if skip != nil && skip(child.Tag) {
				continue
			}
			if match(child.Tag) {
				out = append(out, child)
				continue
			}
			walk(child)
		}
	}
	walk(root)
	return out
}
