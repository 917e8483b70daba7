package idcodec

import (
	"strings"
	"testing"
)

func TestCompressRoundtrip(t *testing.T) {
	for _, id := range []int64{0, 1, 42, 999, 1<<31 - 1, 1 << 40} {
		token := Compress(id)
		if !strings.HasPrefix(token, "x") {
			t.Fatalf("compressed id %d = %q, want x prefix", id, token)
		}
		got, err := Parse(token)
		if err != nil {
			t.Fatalf("parse %q: %v", token, err)
		}
		if got != id {
			t.Fatalf("roundtrip %d -> %q -> %d", id, token, got)
		}
	}
}

func TestCompressIsStable(t *testing.T) {
	if Compress(42) != Compress(42) {
		t.Fatal("compression must be deterministic")
	}
	if Compress(42) == Compress(43) {
		t.Fatal("distinct ids must compress distinctly")
	}
}

func TestParsePlain(t *testing.T) {
	id, err := Parse("1234")
	if err != nil {
		t.Fatalf("parse plain: %v", err)
	}
	if id != 1234 {
		t.Fatalf("parse plain = %d, want 1234", id)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{"", "abc", "-5", "12.5", "x!!!"} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("parse %q: expected error", raw)
		}
	}
}

func TestIsID(t *testing.T) {
	if !IsID("7") || !IsID(Compress(7)) {
		t.Fatal("both id forms must be recognized")
	}
	if IsID("admin") {
		t.Fatal("alternate keys are not ids")
	}
}
