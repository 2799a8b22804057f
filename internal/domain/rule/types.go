// Package rule contains the domain model for AppLocker application-control
// rules: the Rule entity, the condition union, and the matching primitives
// used by validation, conflict analysis, and policy simulation.
package rule

import (
	"encoding/json"
	"fmt"
	"time"
)

// Collection identifies which AppLocker rule collection a rule belongs to.
type Collection string

const (
	// CollectionExe covers .exe and .com executables.
	CollectionExe Collection = "Exe"
	// CollectionScript covers .ps1, .bat, .cmd, .vbs and .js scripts.
	CollectionScript Collection = "Script"
	// CollectionDll covers .dll and .ocx libraries.
	CollectionDll Collection = "Dll"
	// CollectionMsi covers .msi, .msp and .mst installers.
	CollectionMsi Collection = "Msi"
	// CollectionAppx covers UWP/MSIX packaged applications.
	CollectionAppx Collection = "Appx"
)

// Collections lists every collection in the canonical AppLocker order.
// XML generation emits RuleCollection elements in this order.
var Collections = []Collection{
	CollectionExe,
	CollectionScript,
	CollectionDll,
	CollectionMsi,
	CollectionAppx,
}

// ParseCollection maps a collection tag to its Collection value.
// Returns false for unknown tags.
func ParseCollection(s string) (Collection, bool) {
	switch Collection(s) {
	case CollectionExe, CollectionScript, CollectionDll, CollectionMsi, CollectionAppx:
		return Collection(s), true
	}
	return "", false
}

// Action is the effect of a rule when it matches.
type Action string

const (
	// ActionAllow permits matching files to run.
	ActionAllow Action = "Allow"
	// ActionDeny blocks matching files from running.
	ActionDeny Action = "Deny"
)

// EnforcementMode controls whether a rule collection blocks violations or
// only logs them.
type EnforcementMode string

const (
	ModeNotConfigured EnforcementMode = "NotConfigured"
	ModeAuditOnly     EnforcementMode = "AuditOnly"
	ModeEnabled       EnforcementMode = "Enabled"
)

// Well-known security identifiers.
const (
	// EveryoneSID is the default principal when a rule does not name one.
	EveryoneSID = "S-1-1-0"
	// AdministratorsSID is the built-in Administrators group.
	AdministratorsSID = "S-1-5-32-544"
)

// ConditionKind discriminates the condition union. The values are the
// AppLocker XML element names so the wire shape and the model agree.
type ConditionKind string

const (
	KindPath      ConditionKind = "FilePathCondition"
	KindPublisher ConditionKind = "FilePublisherCondition"
	KindHash      ConditionKind = "FileHashCondition"
)

// VersionRangeType constrains a publisher condition's binary version.
type VersionRangeType string

const (
	// VersionAny places no constraint on the binary version.
	VersionAny VersionRangeType = "any"
	// VersionAndAbove matches the bound value and anything newer.
	VersionAndAbove VersionRangeType = "and_above"
	// VersionAndBelow matches the bound value and anything older.
	VersionAndBelow VersionRangeType = "and_below"
	// VersionExactly matches only the bound value.
	VersionExactly VersionRangeType = "exactly"
)

// Condition is one match criterion attached to a rule: a path pattern, a
// code-signing publisher, or a content hash. The set of implementations is
// sealed; codec and matcher switches over the concrete types are exhaustive.
type Condition interface {
	Kind() ConditionKind

	// sealed prevents implementations outside this package.
	sealed()
}

// PathCondition matches files by path pattern. The pattern may contain the
// wildcard `*` and environment-variable placeholders such as %WINDIR%.
type PathCondition struct {
	Path string
}

func (PathCondition) Kind() ConditionKind { return KindPath }
func (PathCondition) sealed()             {}

// PublisherCondition matches signed files by publisher distinguished name,
// with optional product/binary filters and a version constraint.
type PublisherCondition struct {
	PublisherName string
	ProductName   string
	BinaryName    string
	// VersionRange constrains the binary version. VersionValue holds the
	// bound when VersionRange is not VersionAny.
	VersionRange VersionRangeType
	VersionValue string
}

func (PublisherCondition) Kind() ConditionKind { return KindPublisher }
func (PublisherCondition) sealed()             {}

// HashCondition matches files by exact content hash. FileHash is hex without
// a 0x prefix; the XML codec renders it as 0x-prefixed uppercase.
type HashCondition struct {
	FileHash         string
	HashType         string // e.g. "SHA256"
	SourceFileName   string
	SourceFileLength int64
}

func (HashCondition) Kind() ConditionKind { return KindHash }
func (HashCondition) sealed()             {}

// ConditionList is a JSON-round-trippable ordered sequence of conditions.
// The wire shape is a tagged object per condition:
//
//	{"type": "FilePathCondition", "path": "%WINDIR%\\*"}
type ConditionList []Condition

// conditionJSON is the tagged wire representation of a single condition.
type conditionJSON struct {
	Type ConditionKind `json:"type"`

	Path string `json:"path,omitempty"`

	PublisherName string           `json:"publisher_name,omitempty"`
	ProductName   string           `json:"product_name,omitempty"`
	BinaryName    string           `json:"binary_name,omitempty"`
	VersionRange  VersionRangeType `json:"version_range_type,omitempty"`
	VersionValue  string           `json:"version_value,omitempty"`

	FileHash         string `json:"file_hash,omitempty"`
	HashType         string `json:"hash_type,omitempty"`
	SourceFileName   string `json:"source_file_name,omitempty"`
	SourceFileLength int64  `json:"source_file_length,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (l ConditionList) MarshalJSON() ([]byte, error) {
	out := make([]conditionJSON, len(l))
	for i, c := range l {
		switch v := c.(type) {
		case PathCondition:
			out[i] = conditionJSON{Type: KindPath, Path: v.Path}
		case PublisherCondition:
			out[i] = conditionJSON{
				Type:          KindPublisher,
				PublisherName: v.PublisherName,
				ProductName:   v.ProductName,
				BinaryName:    v.BinaryName,
				VersionRange:  v.VersionRange,
				VersionValue:  v.VersionValue,
			}
		case HashCondition:
			out[i] = conditionJSON{
				Type:             KindHash,
				FileHash:         v.FileHash,
				HashType:         v.HashType,
				SourceFileName:   v.SourceFileName,
				SourceFileLength: v.SourceFileLength,
			}
		default:
			return nil, fmt.Errorf("unknown condition kind %T", c)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Objects without an explicit
// "type" are classified by which fields are present, matching the tolerant
// input handling of the UI layer.
func (l *ConditionList) UnmarshalJSON(data []byte) error {
	var raw []conditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ConditionList, 0, len(raw))
	for i, cj := range raw {
		c, err := cj.toCondition()
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

func (cj conditionJSON) toCondition() (Condition, error) {
	kind := cj.Type
	if kind == "" {
		switch {
		case cj.Path != "":
			kind = KindPath
		case cj.PublisherName != "":
			kind = KindPublisher
		case cj.FileHash != "":
			kind = KindHash
		default:
			return nil, fmt.Errorf("condition has no type and no recognizable fields")
		}
	}
	switch kind {
	case KindPath:
		return PathCondition{Path: cj.Path}, nil
	case KindPublisher:
		vr := cj.VersionRange
		if vr == "" {
			vr = VersionAny
		}
		return PublisherCondition{
			PublisherName: cj.PublisherName,
			ProductName:   cj.ProductName,
			BinaryName:    cj.BinaryName,
			VersionRange:  vr,
			VersionValue:  cj.VersionValue,
		}, nil
	case KindHash:
		ht := cj.HashType
		if ht == "" {
			ht = "SHA256"
		}
		return HashCondition{
			FileHash:         NormalizeHash(cj.FileHash),
			HashType:         ht,
			SourceFileName:   cj.SourceFileName,
			SourceFileLength: cj.SourceFileLength,
		}, nil
	}
	return nil, fmt.Errorf("unknown condition type %q", kind)
}

// Rule is a single AppLocker application-control rule.
type Rule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Collection  Collection `json:"collection"`
	Action      Action     `json:"action"`

	// UserOrGroupSid is the principal the rule applies to. Empty means the
	// Everyone default.
	UserOrGroupSid string `json:"user_or_group_sid,omitempty"`

	// Conditions are the positive match criteria. Never empty for a valid
	// rule (enforced by validation, not by storage).
	Conditions ConditionList `json:"conditions"`

	// Exceptions carve exclusions out of an otherwise-matching rule. May mix
	// condition kinds regardless of the Conditions kind.
	Exceptions ConditionList `json:"exceptions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveSID returns the rule's principal, defaulting to Everyone.
func (r *Rule) EffectiveSID() string {
	if s := NormalizeSID(r.UserOrGroupSid); s != "" {
		return s
	}
	return EveryoneSID
}

// AppliesToEveryone reports whether the rule's principal is the Everyone
// default (explicitly or by omission).
func (r *Rule) AppliesToEveryone() bool {
	return NormalizeSID(r.UserOrGroupSid) == ""
}

// Clone returns a deep copy of the rule. Condition values are immutable
// structs, so copying the slices is sufficient.
func (r *Rule) Clone() *Rule {
	cp := *r
	cp.Conditions = append(ConditionList(nil), r.Conditions...)
	cp.Exceptions = append(ConditionList(nil), r.Exceptions...)
	return &cp
}

// PolicyDocument is the ephemeral export/import unit: every rule grouped by
// collection plus the per-collection enforcement modes and policy version.
type PolicyDocument struct {
	Version          string
	Rules            []Rule
	EnforcementModes map[Collection]EnforcementMode
}
