package memory

import (
	"errors"
	"testing"
)

func TestParseSignatureRoundTrip(t *testing.T) {
	patterns := []string{
		"F8 01 74 04 83 65",
		"C8 FF ?? ?? ?? ?? ?? 81 0D ?? ?? ?? ?? 00 08 00 00",
		"0A D7 23 3C 00 00 ?? 01",
		"??",
		"DB 5C 24 34 8B 44 24 34",
	}
	for _, pattern := range patterns {
		sig, err := ParseSignature(pattern)
		if err != nil {
			t.Fatalf("ParseSignature(%q) returned error: %v", pattern, err)
		}
		if sig.String() != pattern {
			t.Fatalf("round trip mismatch: got %q, want %q", sig.String(), pattern)
		}
		again, err := ParseSignature(sig.String())
		if err != nil {
			t.Fatalf("reparse of %q failed: %v", sig.String(), err)
		}
		if again.String() != pattern {
			t.Fatalf("reparse mismatch: got %q, want %q", again.String(), pattern)
		}
	}
}

func TestParseSignatureNormalizesCase(t *testing.T) {
	sig, err := ParseSignature("ab cd ?? Ef")
	if err != nil {
		t.Fatalf("ParseSignature returned error: %v", err)
	}
	if sig.String() != "AB CD ?? EF" {
		t.Fatalf("expected uppercase rendering, got %q", sig.String())
	}
}

func TestParseSignatureErrors(t *testing.T) {
	cases := []struct {
		pattern string
		want    error
	}{
		{"F", ErrInvalidLength},
		{"ABC DE", ErrInvalidLength},
		{"ZZ", ErrInvalidHex},
		{"AB G1", ErrInvalidHex},
	}
	for _, tc := range cases {
		_, err := ParseSignature(tc.pattern)
		if !errors.Is(err, tc.want) {
			t.Fatalf("ParseSignature(%q): got %v, want %v", tc.pattern, err, tc.want)
		}
	}
}

func TestSignatureByteMatching(t *testing.T) {
	sig, err := ParseSignature("AB ??")
	if err != nil {
		t.Fatalf("ParseSignature returned error: %v", err)
	}
	concrete := sig.bytes[0]
	if !concrete.Matches(0xAB) || concrete.Matches(0xFF) {
		t.Fatal("concrete byte matching broken")
	}
	wildcard := sig.bytes[1]
	for _, v := range []byte{0x00, 0x50, 0xAB, 0xFF} {
		if !wildcard.Matches(v) {
			t.Fatalf("wildcard should match 0x%02X", v)
		}
	}
}

func TestSignatureFind(t *testing.T) {
	//          0     1     2     3     4     5     6     7
	buf := []byte{0xFF, 0x30, 0xA3, 0x50, 0x12, 0xAB, 0x2B, 0xCB}

	cases := []struct {
		pattern string
		idx     int
		found   bool
	}{
		{"AB 2B CB", 5, true},
		{"AB ?? CB", 5, true},
		{"30 ?? 50", 1, true},
		{"FF ?? ?? 50", 0, true},
		{"12 AB ?? CB", 4, true},
		{"CB FF", 0, false},
		{"FF 30 A3 50 12 AB 2B CB 00", 0, false},
	}
	for _, tc := range cases {
		sig, err := ParseSignature(tc.pattern)
		if err != nil {
			t.Fatalf("ParseSignature(%q) returned error: %v", tc.pattern, err)
		}
		idx, found := sig.Find(buf)
		if found != tc.found || idx != tc.idx {
			t.Fatalf("Find(%q) = (%d, %v), want (%d, %v)", tc.pattern, idx, found, tc.idx, tc.found)
		}
	}
}

func TestSignatureFindReturnsSmallestIndex(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x01, 0x02, 0x01, 0x02}
	sig := MustSignature("01 02")
	idx, found := sig.Find(buf)
	if !found || idx != 0 {
		t.Fatalf("expected first match at 0, got (%d, %v)", idx, found)
	}
}

func TestEmptySignatureNeverMatches(t *testing.T) {
	sig, err := ParseSignature("")
	if err != nil {
		t.Fatalf("empty pattern should parse, got %v", err)
	}
	if _, found := sig.Find([]byte{0x00, 0x01}); found {
		t.Fatal("empty signature must not match")
	}
}
