package cache

import (
	"strings"
	"testing"

	"github.com/hyperjump/embedapi/internal/models"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	for _, text := range []string{"", "hello", "a longer sentence with spaces", "日本語"} {
		for _, b := range models.Backends {
			if DeriveKey(text, b) != DeriveKey(text, b) {
				t.Errorf("DeriveKey(%q, %s) is not deterministic", text, b)
			}
		}
	}
}

func TestDeriveKey_BackendSeparates(t *testing.T) {
	for _, text := range []string{"", "hello"} {
		if DeriveKey(text, models.BackendLocal) == DeriveKey(text, models.BackendRemote) {
			t.Errorf("same key for %q across backends", text)
		}
	}
}

func TestDeriveKey_EmptyTextIsDistinct(t *testing.T) {
	empty := DeriveKey("", models.BackendLocal)
	if empty == (Key{}) {
		t.Error("empty text produced the zero key")
	}
	if empty == DeriveKey(" ", models.BackendLocal) {
		t.Error("empty and single-space text collide")
	}
}

func TestDeriveKey_NoBoundaryConfusion(t *testing.T) {
	a := DeriveKey("fooopenai", models.BackendLocal)
	b := DeriveKey("foo", models.Backend("openailocal"))
	if a == b {
		t.Error("text/backend boundary is ambiguous")
	}
}

func TestKey_String(t *testing.T) {
	got := DeriveKey("hello", models.BackendLocal).String()
	if len(got) != 64 {
		t.Fatalf("hex length = %d, want 64", len(got))
	}
	for _, r := range got {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("non-hex rune %q in %s", r, got)
		}
	}
}

func TestParseKey(t *testing.T) {
	k := DeriveKey("x", models.BackendRemote)
	back, err := ParseKey(k.String())
	if err != nil {
		t.Fatal(err)
	}
	if back != k {
		t.Error("ParseKey(String()) did not round trip")
	}
	if _, err := ParseKey("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := ParseKey("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}
