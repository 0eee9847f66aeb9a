// Package localstate persists the small amount of client-side state that
// must survive process restarts: the session-token expiry and the app
// version used to invalidate stale cached state.
package localstate

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// File names under the state directory.
const (
	expiryFile  = "token_expiry"
	versionFile = "app_version"
)

// keepOnWipe lists the entries that survive a version-mismatch wipe.
var keepOnWipe = map[string]bool{
	expiryFile:   true,
	versionFile:  true,
	"token.json": true,
}

// Store reads and writes state files under one directory.
type Store struct {
	dir string
}

// DefaultDir returns the per-user state directory, honoring XDG_CONFIG_HOME.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "nbti")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "nbti")
}

// New constructs a Store rooted at dir, creating it if needed.
func New(dir string) *Store {
	_ = os.MkdirAll(dir, 0o700)
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// LoadExpiry returns the persisted token expiry, reporting whether one exists.
func (s *Store) LoadExpiry() (time.Time, bool) {
	b, err := os.ReadFile(filepath.Join(s.dir, expiryFile))
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// SaveExpiry persists the token expiry as epoch milliseconds.
func (s *Store) SaveExpiry(t time.Time) error {
	return os.WriteFile(
		filepath.Join(s.dir, expiryFile),
		[]byte(strconv.FormatInt(t.UnixMilli(), 10)),
		0o600,
	)
}

// ClearExpiry removes the persisted expiry.
func (s *Store) ClearExpiry() error {
	err := os.Remove(filepath.Join(s.dir, expiryFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// EnsureVersion compares the stored app version with current and, on
// mismatch, wipes every entry in the state directory except the keep list,
// then stamps the new version. First run counts as a mismatch with nothing
// to wipe.
func (s *Store) EnsureVersion(current string) error {
	stored, _ := os.ReadFile(filepath.Join(s.dir, versionFile))
	if strings.TrimSpace(string(stored)) == current {
		return nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, e := range entries {
		if keepOnWipe[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(s.dir, versionFile), []byte(current), 0o600)
}
