package rule

import (
	"strings"

	"github.com/gobwas/glob"
)

// envExpansions maps AppLocker environment-variable placeholders to their
// canonical absolute forms. Expansion is case-insensitive on the placeholder.
var envExpansions = []struct {
	placeholder string
	expansion   string
}{
	{"%WINDIR%", `C:\Windows`},
	{"%SYSTEM32%", `C:\Windows\System32`},
	{"%PROGRAMFILES(X86)%", `C:\Program Files (x86)`},
	{"%PROGRAMFILES%", `C:\Program Files`},
	{"%PROGRAMDATA%", `C:\ProgramData`},
	{"%OSDRIVE%", `C:`},
}

// ExpandEnvPath replaces AppLocker environment-variable placeholders with
// their canonical absolute forms. Unknown placeholders are left untouched.
func ExpandEnvPath(p string) string {
	upper := strings.ToUpper(p)
	for _, e := range envExpansions {
		for {
			i := strings.Index(upper, e.placeholder)
			if i < 0 {
				break
			}
			p = p[:i] + e.expansion + p[i+len(e.placeholder):]
			upper = upper[:i] + e.expansion + upper[i+len(e.placeholder):]
		}
	}
	return p
}

// NormalizePath expands placeholders, converts backslashes to forward
// slashes, and lowercases, producing the canonical comparison form.
func NormalizePath(p string) string {
	p = ExpandEnvPath(p)
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.ToLower(p)
}

// BasePath strips a single trailing "*" or "/*" from a normalized path,
// yielding the directory prefix the pattern anchors at. A bare "*" pattern
// yields the empty base.
func BasePath(normalized string) string {
	base := strings.TrimSuffix(normalized, "*")
	base = strings.TrimSuffix(base, "/")
	return base
}

// PathsOverlap reports whether two path patterns could match the same
// file-system location. It is a symmetric, deliberately conservative
// approximation: equal normalized forms, equal bases, a base that is a
// directory-aligned prefix of the other's normalized form, or a bare "*"
// all count as overlap.
func PathsOverlap(a, b string) bool {
	na, nb := NormalizePath(a), NormalizePath(b)
	if na == nb {
		return true
	}
	ba, bb := BasePath(na), BasePath(nb)
	// A bare "*" pattern overlaps everything.
	if ba == "" || bb == "" {
		return true
	}
	if ba == bb {
		return true
	}
	if strings.HasPrefix(nb, ba+"/") || strings.HasPrefix(na, bb+"/") {
		return true
	}
	return false
}

// NormalizeSID canonicalizes a principal SID for comparison: empty,
// whitespace-only, and the literal Everyone SID all normalize to "".
func NormalizeSID(sid string) string {
	sid = strings.TrimSpace(sid)
	if sid == "" || sid == EveryoneSID {
		return ""
	}
	return sid
}

// NormalizeHash canonicalizes a hex digest: any 0x prefix stripped,
// lowercased.
func NormalizeHash(h string) string {
	h = strings.TrimSpace(h)
	if len(h) >= 2 && (h[:2] == "0x" || h[:2] == "0X") {
		h = h[2:]
	}
	return strings.ToLower(h)
}

// HashesEqual compares two hex digests case-insensitively, ignoring any 0x
// prefix on either side.
func HashesEqual(a, b string) bool {
	na, nb := NormalizeHash(a), NormalizeHash(b)
	return na != "" && na == nb
}

// PublisherMatches reports whether a test value satisfies a publisher
// pattern: exact equality, a "*" wildcard on either side, or the pattern
// appearing as a substring of the value. No X.509 chain validation is
// attempted; this mirrors the best-effort subject comparison of the source
// tool.
func PublisherMatches(pattern, value string) bool {
	if pattern == "*" || value == "*" {
		return true
	}
	if pattern == value {
		return true
	}
	return pattern != "" && strings.Contains(value, pattern)
}

// PublishersOverlap reports whether two publisher patterns could match the
// same signer: equality or a wildcard on either side.
func PublishersOverlap(a, b string) bool {
	return a == b || a == "*" || b == "*"
}

// TestInput is a candidate file access used by matching and simulation.
type TestInput struct {
	// Path is the concrete file path being accessed.
	Path string `json:"path"`
	// Collection restricts evaluation to one rule collection. Empty matches
	// rules in any collection.
	Collection Collection `json:"collection,omitempty"`
	// UserSID identifies the principal performing the access. Empty is
	// treated as Everyone.
	UserSID string `json:"user_sid,omitempty"`
	// Publisher is the file's signing publisher subject, when known.
	Publisher string `json:"publisher,omitempty"`
	// Hash is the file's content hash, when known.
	Hash string `json:"hash,omitempty"`
}

// pathPatternMatches tests a concrete path against a path pattern. Both
// sides are normalized first; the `*` wildcard spans directory separators,
// matching AppLocker's recursive folder semantics.
func pathPatternMatches(pattern, path string) bool {
	np, ntarget := NormalizePath(pattern), NormalizePath(path)
	if np == ntarget {
		return true
	}
	g, err := glob.Compile(np)
	if err != nil {
		// An unparsable pattern matches nothing.
		return false
	}
	return g.Match(ntarget)
}

// ConditionMatches reports whether a condition matches the test input.
func ConditionMatches(c Condition, in TestInput) bool {
	switch v := c.(type) {
	case PathCondition:
		return in.Path != "" && pathPatternMatches(v.Path, in.Path)
	case PublisherCondition:
		return in.Publisher != "" && PublisherMatches(v.PublisherName, in.Publisher)
	case HashCondition:
		return in.Hash != "" && HashesEqual(v.FileHash, in.Hash)
	}
	return false
}

// RuleMatches reports whether a rule applies to the test input: the
// collection must agree (when the input names one), the principal must agree
// (Everyone matches anything), at least one condition must match, and no
// exception may match. Exceptions veto.
func RuleMatches(r *Rule, in TestInput) bool {
	if in.Collection != "" && r.Collection != in.Collection {
		return false
	}
	if !r.AppliesToEveryone() {
		if NormalizeSID(in.UserSID) != NormalizeSID(r.UserOrGroupSid) {
			return false
		}
	}
	matched := false
	for _, c := range r.Conditions {
		if ConditionMatches(c, in) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, e := range r.Exceptions {
		if ConditionMatches(e, in) {
			return false
		}
	}
	return true
}

// ConditionsOverlap reports whether two conditions of the same kind could
// match the same file. Cross-kind pairs never overlap (a path pattern and a
// hash constrain different attributes).
func ConditionsOverlap(a, b Condition) bool {
	switch av := a.(type) {
	case PathCondition:
		if bv, ok := b.(PathCondition); ok {
			return PathsOverlap(av.Path, bv.Path)
		}
	case PublisherCondition:
		if bv, ok := b.(PublisherCondition); ok {
			return PublishersOverlap(av.PublisherName, bv.PublisherName)
		}
	case HashCondition:
		if bv, ok := b.(HashCondition); ok {
			return HashesEqual(av.FileHash, bv.FileHash)
		}
	}
	return false
}
