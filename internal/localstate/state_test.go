package localstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpiryRoundTrip(t *testing.T) {
	t.Parallel()
	s := New(t.TempDir())

	if _, ok := s.LoadExpiry(); ok {
		t.Fatalf("fresh store must have no expiry")
	}

	exp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveExpiry(exp); err != nil {
		t.Fatalf("SaveExpiry: %v", err)
	}

	got, ok := s.LoadExpiry()
	if !ok {
		t.Fatalf("want stored expiry")
	}
	if !got.Equal(exp) {
		t.Fatalf("want %v, got %v", exp, got)
	}

	if err := s.ClearExpiry(); err != nil {
		t.Fatalf("ClearExpiry: %v", err)
	}
	if _, ok := s.LoadExpiry(); ok {
		t.Fatalf("expiry must be gone after clear")
	}
	// clearing twice is fine
	if err := s.ClearExpiry(); err != nil {
		t.Fatalf("second ClearExpiry: %v", err)
	}
}

func TestLoadExpiry_GarbageIgnored(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New(dir)

	if err := os.WriteFile(filepath.Join(dir, "token_expiry"), []byte("not-a-number"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LoadExpiry(); ok {
		t.Fatalf("garbage expiry must read as absent")
	}
}

func TestEnsureVersion_WipesOnMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := New(dir)

	if err := s.EnsureVersion("1.0.0"); err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}

	// cached state plus entries that must survive a wipe
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("cached_members", "[]")
	write("token.json", "{}")
	if err := s.SaveExpiry(time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	// same version: nothing happens
	if err := s.EnsureVersion("1.0.0"); err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cached_members")); err != nil {
		t.Fatalf("same version must not wipe: %v", err)
	}

	// new version: cache wiped, session state kept
	if err := s.EnsureVersion("1.1.0"); err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cached_members")); !os.IsNotExist(err) {
		t.Fatalf("cached entry must be wiped on version change")
	}
	if _, err := os.Stat(filepath.Join(dir, "token.json")); err != nil {
		t.Fatalf("token.json must survive the wipe: %v", err)
	}
	if _, ok := s.LoadExpiry(); !ok {
		t.Fatalf("token expiry must survive the wipe")
	}

	b, err := os.ReadFile(filepath.Join(dir, "app_version"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "1.1.0" {
		t.Fatalf("want stamped version 1.1.0, got %q", b)
	}
}
