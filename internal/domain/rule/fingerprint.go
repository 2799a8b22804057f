package rule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// canonicalCondition renders a condition as a deterministic string: its
// field entries rendered as key=value pairs, sorted lexicographically, then
// joined. Used for duplicate detection, where condition order within a rule
// must not matter.
func canonicalCondition(c Condition) string {
	var fields []string
	switch v := c.(type) {
	case PathCondition:
		fields = []string{
			"path=" + NormalizePath(v.Path),
			"type=" + string(KindPath),
		}
	case PublisherCondition:
		vr := v.VersionRange
		if vr == "" {
			vr = VersionAny
		}
		fields = []string{
			"binary_name=" + v.BinaryName,
			"product_name=" + v.ProductName,
			"publisher_name=" + v.PublisherName,
			"type=" + string(KindPublisher),
			"version_range_type=" + string(vr),
			"version_value=" + v.VersionValue,
		}
	case HashCondition:
		fields = []string{
			"file_hash=" + NormalizeHash(v.FileHash),
			"hash_type=" + strings.ToUpper(v.HashType),
			"source_file_length=" + strconv.FormatInt(v.SourceFileLength, 10),
			"source_file_name=" + v.SourceFileName,
			"type=" + string(KindHash),
		}
	default:
		fields = []string{fmt.Sprintf("type=unknown:%T", c)}
	}
	sort.Strings(fields)
	return strings.Join(fields, ",")
}

// canonicalConditionSet renders an unordered condition multiset as a
// deterministic string.
func canonicalConditionSet(conds ConditionList) string {
	ser := make([]string, len(conds))
	for i, c := range conds {
		ser[i] = canonicalCondition(c)
	}
	sort.Strings(ser)
	return strings.Join(ser, ";")
}

// Fingerprint returns a stable 64-bit digest of the rule's duplicate-
// detection identity: collection, action, normalized principal, and the
// canonicalized condition and exception multisets. Name, description, ID
// and timestamps do not participate.
func Fingerprint(r *Rule) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(string(r.Collection))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(string(r.Action))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(NormalizeSID(r.UserOrGroupSid))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(canonicalConditionSet(r.Conditions))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(canonicalConditionSet(r.Exceptions))
	return h.Sum64()
}

// Equivalent reports whether two rules are duplicates per the duplicate-
// detection contract: same collection, action and normalized principal, and
// equal condition/exception multisets under canonical normalization.
func Equivalent(a, b *Rule) bool {
	if a.Collection != b.Collection || a.Action != b.Action {
		return false
	}
	if NormalizeSID(a.UserOrGroupSid) != NormalizeSID(b.UserOrGroupSid) {
		return false
	}
	if canonicalConditionSet(a.Conditions) != canonicalConditionSet(b.Conditions) {
		return false
	}
	return canonicalConditionSet(a.Exceptions) == canonicalConditionSet(b.Exceptions)
}
