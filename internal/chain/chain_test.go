package chain

import (
	"strings"
	"testing"
	"time"
)

func TestDigestDeterministic(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	details := map[string]interface{}{"ip": "10.0.0.1", "ok": true}

	h1 := Digest("id-1", ts, "user.login", "u-42", details, GenesisHash)
	h2 := Digest("id-1", ts, "user.login", "u-42", details, GenesisHash)
	if h1 != h2 {
		t.Fatalf("same inputs should produce same hash: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
	if h1 != strings.ToLower(h1) {
		t.Fatalf("digest must be lowercase hex: %s", h1)
	}
}

func TestDigestFieldSensitivity(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	details := map[string]interface{}{"ip": "10.0.0.1"}
	base := Digest("id-1", ts, "user.login", "u-42", details, GenesisHash)

	cases := []struct {
		name string
		hash string
	}{
		{"id", Digest("id-2", ts, "user.login", "u-42", details, GenesisHash)},
		{"timestamp", Digest("id-1", ts.Add(time.Nanosecond), "user.login", "u-42", details, GenesisHash)},
		{"event_type", Digest("id-1", ts, "user.logout", "u-42", details, GenesisHash)},
		{"subject_id", Digest("id-1", ts, "user.login", "u-43", details, GenesisHash)},
		{"details", Digest("id-1", ts, "user.login", "u-42", map[string]interface{}{"ip": "10.0.0.2"}, GenesisHash)},
		{"previous_hash", Digest("id-1", ts, "user.login", "u-42", details, strings.Repeat("f", 64))},
	}
	for _, c := range cases {
		if c.hash == base {
			t.Errorf("changing %s should change the digest", c.name)
		}
	}
}

func TestDigestTimezoneIndependent(t *testing.T) {
	utc := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	msk := utc.In(time.FixedZone("MSK", 3*3600))

	h1 := Digest("id-1", utc, "t", "s", nil, GenesisHash)
	h2 := Digest("id-1", msk, "t", "s", nil, GenesisHash)
	if h1 != h2 {
		t.Fatalf("same instant in different zones must hash equal: %s != %s", h1, h2)
	}
}

func TestCanonicalDetails(t *testing.T) {
	// json.Marshal сортирует ключи, порядок добавления не важен
	a := map[string]interface{}{"b": 2.0, "a": 1.0, "nested": map[string]interface{}{"y": "1", "x": "2"}}
	b := map[string]interface{}{"nested": map[string]interface{}{"x": "2", "y": "1"}, "a": 1.0, "b": 2.0}
	if CanonicalDetails(a) != CanonicalDetails(b) {
		t.Fatalf("canonical form must not depend on key order: %s != %s", CanonicalDetails(a), CanonicalDetails(b))
	}

	if CanonicalDetails(nil) != "null" {
		t.Fatalf("absent details must canonicalize to null, got %s", CanonicalDetails(nil))
	}
	if CanonicalDetails(map[string]interface{}{}) != "{}" {
		t.Fatalf("empty object must canonicalize to {}")
	}
}

// Payload не обязан быть объектом: массив, строка, число и bool — такие же
// полноправные details и хешируются без потерь.
func TestDigestAcceptsNonObjectDetails(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	cases := []struct {
		name      string
		details   interface{}
		canonical string
	}{
		{"array", []interface{}{1.0, 2.0}, "[1,2]"},
		{"string", "plain text", `"plain text"`},
		{"number", 42.0, "42"},
		{"bool", true, "true"},
	}

	seen := map[string]string{}
	for _, c := range cases {
		if got := CanonicalDetails(c.details); got != c.canonical {
			t.Errorf("%s: canonical form %s, want %s", c.name, got, c.canonical)
		}
		h := Digest("id-1", ts, "t", "s", c.details, GenesisHash)
		if prev, ok := seen[h]; ok {
			t.Errorf("%s and %s hash to the same digest", c.name, prev)
		}
		seen[h] = c.name
	}
}

func TestGenesisHashSentinel(t *testing.T) {
	if len(GenesisHash) != 64 || strings.Trim(GenesisHash, "0") != "" {
		t.Fatalf("genesis sentinel must be 64 zero chars, got %q", GenesisHash)
	}
}
