package rule

import (
	"encoding/json"
	"testing"
)

func TestParseCollection(t *testing.T) {
	t.Parallel()

	for _, c := range Collections {
		got, ok := ParseCollection(string(c))
		if !ok || got != c {
			t.Errorf("ParseCollection(%q) = %q, %v", c, got, ok)
		}
	}
	if _, ok := ParseCollection("Gadget"); ok {
		t.Error("ParseCollection accepted an unknown collection")
	}
}

func TestEffectiveSID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sid  string
		want string
	}{
		{name: "empty defaults to everyone", sid: "", want: EveryoneSID},
		{name: "whitespace defaults to everyone", sid: "  ", want: EveryoneSID},
		{name: "explicit everyone", sid: EveryoneSID, want: EveryoneSID},
		{name: "named group kept", sid: AdministratorsSID, want: AdministratorsSID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := Rule{UserOrGroupSid: tt.sid}
			if got := r.EffectiveSID(); got != tt.want {
				t.Errorf("EffectiveSID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConditionListJSONRoundTrip(t *testing.T) {
	t.Parallel()

	in := ConditionList{
		PathCondition{Path: `%WINDIR%\*`},
		PublisherCondition{
			PublisherName: "O=CONTOSO",
			ProductName:   "SUITE",
			BinaryName:    "APP.EXE",
			VersionRange:  VersionAndAbove,
			VersionValue:  "2.0",
		},
		HashCondition{FileHash: "aabb", HashType: "SHA256", SourceFileName: "a.exe", SourceFileLength: 42},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var out ConditionList
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("round trip produced %d conditions, want 3", len(out))
	}
	if pc := out[0].(PathCondition); pc.Path != `%WINDIR%\*` {
		t.Errorf("path = %q", pc.Path)
	}
	if pub := out[1].(PublisherCondition); pub.VersionRange != VersionAndAbove || pub.VersionValue != "2.0" {
		t.Errorf("publisher version lost: %+v", pub)
	}
	if hc := out[2].(HashCondition); hc.SourceFileLength != 42 {
		t.Errorf("hash metadata lost: %+v", hc)
	}
}

func TestConditionListUnmarshalInfersType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  ConditionKind
	}{
		{name: "path field implies path", input: `[{"path": "C:\\x\\*"}]`, want: KindPath},
		{name: "publisher field implies publisher", input: `[{"publisher_name": "O=X"}]`, want: KindPublisher},
		{name: "hash field implies hash", input: `[{"file_hash": "0xAABB"}]`, want: KindHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var l ConditionList
			if err := json.Unmarshal([]byte(tt.input), &l); err != nil {
				t.Fatalf("Unmarshal() error: %v", err)
			}
			if len(l) != 1 || l[0].Kind() != tt.want {
				t.Errorf("inferred kind = %v, want %v", l[0].Kind(), tt.want)
			}
		})
	}

	var l ConditionList
	if err := json.Unmarshal([]byte(`[{}]`), &l); err == nil {
		t.Error("Unmarshal accepted a condition with no recognizable fields")
	}
}

func TestConditionListUnmarshalDefaults(t *testing.T) {
	t.Parallel()

	var l ConditionList
	input := `[
		{"type": "FilePublisherCondition", "publisher_name": "O=X"},
		{"type": "FileHashCondition", "file_hash": "0XAABB"}
	]`
	if err := json.Unmarshal([]byte(input), &l); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	pub := l[0].(PublisherCondition)
	if pub.VersionRange != VersionAny {
		t.Errorf("VersionRange = %q, want any default", pub.VersionRange)
	}
	hc := l[1].(HashCondition)
	if hc.HashType != "SHA256" {
		t.Errorf("HashType = %q, want SHA256 default", hc.HashType)
	}
	if hc.FileHash != "aabb" {
		t.Errorf("FileHash = %q, want normalized aabb", hc.FileHash)
	}
}

func TestRuleClone(t *testing.T) {
	t.Parallel()

	orig := &Rule{
		ID:         "r-1",
		Name:       "original",
		Collection: CollectionExe,
		Action:     ActionAllow,
		Conditions: ConditionList{PathCondition{Path: "*"}},
		Exceptions: ConditionList{PathCondition{Path: `C:\Temp\*`}},
	}

	clone := orig.Clone()
	clone.Name = "mutated"
	clone.Conditions[0] = PathCondition{Path: "changed"}
	clone.Exceptions = append(clone.Exceptions, PathCondition{Path: "extra"})

	if orig.Name != "original" {
		t.Errorf("clone mutation changed the original name: %q", orig.Name)
	}
	if pc := orig.Conditions[0].(PathCondition); pc.Path != "*" {
		t.Errorf("clone mutation changed the original conditions: %q", pc.Path)
	}
	if len(orig.Exceptions) != 1 {
		t.Errorf("clone append grew the original exceptions: %d", len(orig.Exceptions))
	}
}
