package session

import (
	"strings"
	"testing"
	"time"
)

func TestNewProducesValidID(t *testing.T) {
	s := New()

	if !idPattern.MatchString(s.ID) {
		t.Errorf("generated id %q does not match the expected format", s.ID)
	}

	parsed, err := Parse(s.ID)
	if err != nil {
		t.Fatalf("failed to parse own id: %v", err)
	}

	// Creation time round-trips through the id at millisecond precision
	if parsed.CreatedAt.UnixMilli() != s.CreatedAt.UnixMilli() {
		t.Errorf("creation time mismatch: %v vs %v", parsed.CreatedAt, s.CreatedAt)
	}
}

func TestParseRejectsMalformedIDs(t *testing.T) {
	bad := []string{
		"",
		"not-a-session",
		"1693406471234",              // missing suffix
		"1693406471234-XYZ12345",     // uppercase suffix
		"1693406471234-a1b2c3",       // suffix too short
		"169340647123-a1b2c3d4",      // timestamp too short
		"1693406471234-a1b2c3d4e5",   // suffix too long
		"../1693406471234-a1b2c3d4",  // traversal attempt
		"1693406471234-a1b2c3d4/sub", // trailing path
	}

	for _, id := range bad {
		if _, err := Parse(id); err == nil {
			t.Errorf("expected error for %q", id)
		}
	}
}

func TestExpired(t *testing.T) {
	s := New()

	if s.Expired(time.Now()) {
		t.Error("fresh session reported expired")
	}

	if !s.Expired(time.Now().Add(TTL + time.Minute)) {
		t.Error("session past TTL not reported expired")
	}
}

func TestNamespaces(t *testing.T) {
	s, err := Parse("1693406471234-a1b2c3d4")
	if err != nil {
		t.Fatal(err)
	}

	if got := s.Namespace(KindTTSAudio); got != "tts-audio/1693406471234-a1b2c3d4/" {
		t.Errorf("unexpected namespace: %q", got)
	}

	all := s.Namespaces()
	if len(all) != 4 {
		t.Fatalf("expected 4 namespaces, got %d", len(all))
	}
	for _, ns := range all {
		if !strings.Contains(ns, s.ID) {
			t.Errorf("namespace %q does not contain the session id", ns)
		}
		if !strings.HasSuffix(ns, "/") {
			t.Errorf("namespace %q is not prefix-shaped", ns)
		}
	}
}

func TestTempDirIsolation(t *testing.T) {
	a := New()
	b := New()

	if a.TempDir("/tmp/x") == b.TempDir("/tmp/x") {
		t.Error("two sessions share a temp directory")
	}
}
