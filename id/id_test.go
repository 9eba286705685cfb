package id

import "testing"

func TestNewHasPrefix(t *testing.T) {
	if got := NewLeaseID().Prefix(); got != PrefixLease {
		t.Errorf("lease prefix = %q, want %q", got, PrefixLease)
	}
	if got := NewUsageRecordID().Prefix(); got != PrefixUsageRecord {
		t.Errorf("usage record prefix = %q, want %q", got, PrefixUsageRecord)
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := NewLeaseID()

	parsed, err := Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", orig, err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed, orig)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not a typeid", "lse_!!!"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestParseWithPrefix(t *testing.T) {
	leaseID := NewLeaseID()

	if _, err := ParseLeaseID(leaseID.String()); err != nil {
		t.Errorf("ParseLeaseID(%q): %v", leaseID, err)
	}
	if _, err := ParseUsageRecordID(leaseID.String()); err == nil {
		t.Error("ParseUsageRecordID should reject a lease ID")
	}
}

func TestNil(t *testing.T) {
	if !Nil.IsNil() {
		t.Error("Nil.IsNil() should be true")
	}
	if Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", Nil.String())
	}
	if NewLeaseID().IsNil() {
		t.Error("fresh ID should not be nil")
	}
}

func TestTextRoundTrip(t *testing.T) {
	orig := NewLeaseID()

	text, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ID
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", decoded, orig)
	}

	var empty ID
	if err := empty.UnmarshalText(nil); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if !empty.IsNil() {
		t.Error("empty text should decode to Nil")
	}
}

func TestSQLRoundTrip(t *testing.T) {
	orig := NewLeaseID()

	v, err := orig.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var scanned ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", scanned, orig)
	}

	var fromNull ID
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !fromNull.IsNil() {
		t.Error("NULL should scan to Nil")
	}

	if v, err := Nil.Value(); err != nil || v != nil {
		t.Errorf("Nil.Value() = %v, %v; want nil, nil", v, err)
	}
}
