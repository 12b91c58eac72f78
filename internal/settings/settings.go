// Package settings persists user preferences as a small JSON document.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	KeyRepoSearchFilter = "repo_search_filter"
	// KeyRefreshTime holds the refresh interval in seconds.
	KeyRefreshTime = "refresh_time"

	dirName  = "PRMonitor"
	fileName = "config.json"
)

// ErrInvalidRefreshInterval is returned for refresh intervals that are not a
// whole number of minutes of at least one.
var ErrInvalidRefreshInterval = errors.New("refresh interval must be a whole number of minutes, at least 1")

// DefaultPath is config.json under the user's configuration directory
// (~/Library/Application Support/PRMonitor on macOS).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, dirName, fileName), nil
}

// Store is a JSON key-value document. Every Set is written to disk before it returns.
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]any
}

// Open loads the document at path. A missing file yields an empty store; the
// file is created on the first Set.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]any)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.values == nil {
		s.values = make(map[string]any)
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Get returns the raw value stored under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key and writes the document.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[key]
	s.values[key] = value
	if err := s.save(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// Delete removes key and writes the document.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	prev := s.values[key]
	delete(s.values, key)
	if err := s.save(); err != nil {
		s.values[key] = prev
		return err
	}
	return nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(maps.Clone(s.values), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename settings: %w", err)
	}
	return nil
}

// RepoSearchFilter returns the stored repository name filter, or "".
func (s *Store) RepoSearchFilter() string {
	v, ok := s.Get(KeyRepoSearchFilter)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// SetRepoSearchFilter stores the filter lowercased. An empty or blank filter
// removes it.
func (s *Store) SetRepoSearchFilter(filter string) error {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return s.Delete(KeyRepoSearchFilter)
	}
	return s.Set(KeyRepoSearchFilter, filter)
}

// RefreshInterval returns the stored refresh interval. ok is false when none
// is stored or the stored value is unusable.
func (s *Store) RefreshInterval() (time.Duration, bool) {
	v, ok := s.Get(KeyRefreshTime)
	if !ok {
		return 0, false
	}
	var seconds float64
	switch n := v.(type) {
	case float64:
		seconds = n
	case int:
		seconds = float64(n)
	case int64:
		seconds = float64(n)
	default:
		return 0, false
	}
	if seconds < 1 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// SetRefreshInterval stores d in whole seconds.
func (s *Store) SetRefreshInterval(d time.Duration) error {
	if d < time.Minute {
		return ErrInvalidRefreshInterval
	}
	return s.Set(KeyRefreshTime, int(d/time.Second))
}

// ParseRefreshMinutes parses user input such as "5" into a duration. Only
// whole minutes of at least one are accepted.
func ParseRefreshMinutes(input string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRefreshInterval, input)
	}
	return time.Duration(n) * time.Minute, nil
}
