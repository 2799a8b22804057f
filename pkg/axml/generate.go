package axml

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/AppLock-Forge/applockforge/internal/domain/rule"
)

// Generate renders a policy document as AppLocker XML. Rules are grouped by
// collection in the canonical collection order, preserving rule order within
// each group; collections without rules are omitted. Each collection's
// enforcement mode comes from the document's mode map, falling back to
// defaultMode, then to AuditOnly.
func Generate(doc rule.PolicyDocument, defaultMode rule.EnforcementMode) (string, error) {
	out := etree.NewDocument()
	root := out.CreateElement(tagPolicy)
	version := doc.Version
	if version == "" {
		version = "1"
	}
	root.CreateAttr("Version", version)

	for _, col := range rule.Collections {
		var group []rule.Rule
		for _, r := range doc.Rules {
			if r.Collection == col {
				group = append(group, r)
			}
		}
		if len(group) == 0 {
			continue
		}
		writeCollection(root, col, group, resolveMode(doc.EnforcementModes, col, defaultMode))
	}

	out.Indent(2)
	return out.WriteToString()
}

// GenerateCollection renders a single bare RuleCollection element, the form
// Intune accepts for per-collection uploads.
func GenerateCollection(col rule.Collection, rules []rule.Rule, mode rule.EnforcementMode) (string, error) {
	out := etree.NewDocument()
	if mode == "" {
		mode = rule.ModeAuditOnly
	}
	writeCollection(&out.Element, col, rules, mode)

	out.Indent(2)
	return out.WriteToString()
}

// resolveMode picks a collection's enforcement mode: per-collection override,
// else the global default, else AuditOnly.
func resolveMode(modes map[rule.Collection]rule.EnforcementMode, col rule.Collection, def rule.EnforcementMode) rule.EnforcementMode {
	if m, ok := modes[col]; ok && m != "" {
		return m
	}
	if def != "" {
		return def
	}
	return rule.ModeAuditOnly
}

func writeCollection(parent *etree.Element, col rule.Collection, rules []rule.Rule, mode rule.EnforcementMode) {
	el := parent.CreateElement(tagRuleCollection)
	el.CreateAttr("Type", string(col))
	el.CreateAttr("EnforcementMode", string(mode))
	for i := range rules {
		writeRule(el, &rules[i])
	}
}

func writeRule(parent *etree.Element, r *rule.Rule) {
	ruleTag := inferRuleTag(r.Conditions)

	el := parent.CreateElement(ruleTag)
	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}
	el.CreateAttr("Id", id)
	el.CreateAttr("Name", r.Name)
	el.CreateAttr("Description", r.Description)
	el.CreateAttr("UserOrGroupSid", r.EffectiveSID())
	el.CreateAttr("Action", string(r.Action))

	conds := el.CreateElement(tagConditions)
	if ruleTag == tagHashRule {
		// All of a hash rule's conditions merge into one FileHashCondition
		// with a FileHash child per digest.
		merged := conds.CreateElement(tagHashCond)
		for _, c := range r.Conditions {
			if hc, ok := c.(rule.HashCondition); ok {
				writeFileHash(merged, hc)
			}
		}
	} else {
		for _, c := range r.Conditions {
			writeCondition(conds, c)
		}
	}

	if len(r.Exceptions) > 0 {
		exc := el.CreateElement(tagExceptions)
		// Exceptions are never merged: each keeps its own element.
		for _, c := range r.Exceptions {
			writeCondition(exc, c)
		}
	}
}

// writeCondition emits one condition element. Hash conditions written here
// get their own FileHashCondition wrapper with a single FileHash child.
func writeCondition(parent *etree.Element, c rule.Condition) {
	switch v := c.(type) {
	case rule.PathCondition:
		el := parent.CreateElement(tagPathCond)
		el.CreateAttr("Path", v.Path)
	case rule.PublisherCondition:
		el := parent.CreateElement(tagPublisherCond)
		el.CreateAttr("PublisherName", orStar(v.PublisherName))
		el.CreateAttr("ProductName", orStar(v.ProductName))
		el.CreateAttr("BinaryName", orStar(v.BinaryName))
		writeVersionRange(el, v)
	case rule.HashCondition:
		el := parent.CreateElement(tagHashCond)
		writeFileHash(el, v)
	}
}

// writeVersionRange emits the BinaryVersionRange child. An unconstrained
// range ([*, *]) is omitted entirely, the minimal canonical form.
func writeVersionRange(parent *etree.Element, v rule.PublisherCondition) {
	low, high := "*", "*"
	switch v.VersionRange {
	case rule.VersionAndAbove:
		low = v.VersionValue
	case rule.VersionAndBelow:
		high = v.VersionValue
	case rule.VersionExactly:
		low, high = v.VersionValue, v.VersionValue
	default:
		return
	}
	el := parent.CreateElement(tagVersionRange)
	el.CreateAttr("LowSection", low)
	el.CreateAttr("HighSection", high)
}

func writeFileHash(parent *etree.Element, h rule.HashCondition) {
	el := parent.CreateElement(tagFileHash)
	hashType := h.HashType
	if hashType == "" {
		hashType = "SHA256"
	}
	el.CreateAttr("Type", hashType)
	el.CreateAttr("Data", hashData(h.FileHash))
	el.CreateAttr("SourceFileName", h.SourceFileName)
	if h.SourceFileLength > 0 {
		el.CreateAttr("SourceFileLength", strconv.FormatInt(h.SourceFileLength, 10))
	}
}
