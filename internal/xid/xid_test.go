package xid

import (
	"regexp"
	"strings"
	"testing"
)

func TestReferenceFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^GR-[0-9A-F]{20}$`)
	seen := make(map[string]bool, 64)
	for i := 0; i < 64; i++ {
		ref := Reference("GR")
		if !pattern.MatchString(ref) {
			t.Fatalf("unexpected reference format %q", ref)
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}
}

func TestNewKeepsPrefix(t *testing.T) {
	id := New("sale")
	if !strings.HasPrefix(id, "sale-") {
		t.Fatalf("expected sale- prefix, got %q", id)
	}
}
