package security

import "testing"

func TestGenerateNumericCodeLengths(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		code, err := GenerateNumericCode(length)
		if err != nil {
			t.Fatalf("GenerateNumericCode(%d) returned error: %v", length, err)
		}
		if len(code) != length {
			t.Fatalf("expected %d digits, got %q", length, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit %q in code %q", r, code)
			}
		}
	}

	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestHashToken(t *testing.T) {
	first := HashToken("482913")
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
	if first != HashToken("482913") {
		t.Fatal("digest is not deterministic")
	}
	if first == HashToken("482914") {
		t.Fatal("distinct codes share a digest")
	}
}
