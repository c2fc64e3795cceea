// Package config loads and hot-reloads the engine's JSON tuning file.
//
// Secrets (database URL, API credentials) are read from the environment
// separately (see Env in env.go) — this package only owns the small set of
// runtime-tunable values spec.md documents in §6, the ones an operator may
// want to change without a restart.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Values holds the typed, validated configuration snapshot.
type Values struct {
	BufferTime       float64 `json:"BUFFER_TIME"`
	Delay            float64 `json:"DELAY"`
	TypingDelay      float64 `json:"TYPING_DELAY"`
	InactivityTimeout int    `json:"INACTIVITY_TIMEOUT"`
	GreetPeriod      int     `json:"GREET_PERIOD"`
	UpdateBDPeriod   int     `json:"UPDATE_BD_PERIOD"`
	FloodWait        int     `json:"FLOOD_WAIT"`
	Timezone         string  `json:"TIMEZONE"`
	Morning          int     `json:"MORNING"`
	Night            int     `json:"NIGHT"`
	SecondGreet      bool    `json:"SECOND_GREET"`
}

// Defaults mirrors original_source/settings.py's _DEFAULTS exactly.
func Defaults() Values {
	return Values{
		BufferTime:        6.0,
		Delay:              5.0,
		TypingDelay:        0.3,
		InactivityTimeout:  50,
		GreetPeriod:        300,
		UpdateBDPeriod:     100,
		FloodWait:          1000,
		Timezone:           "Europe/Moscow",
		Morning:            9,
		Night:              21,
		SecondGreet:        false,
	}
}

// fieldKeys lists every JSON key Values recognizes, used to reject unknown
// keys on load (spec.md §6: "unknown keys reject with a validation error").
var fieldKeys = map[string]bool{
	"BUFFER_TIME": true, "DELAY": true, "TYPING_DELAY": true,
	"INACTIVITY_TIMEOUT": true, "GREET_PERIOD": true, "UPDATE_BD_PERIOD": true,
	"FLOOD_WAIT": true, "TIMEZONE": true, "MORNING": true, "NIGHT": true,
	"SECOND_GREET": true,
}

// Store hot-reloads Values from a JSON file, checking the file's mtime on
// every Get call (original_source/settings.py's _maybe_reload_unlocked).
// Writes go through a temp-file-then-rename so readers never observe a
// partially written file (original_source/settings.py's _atomic_write).
type Store struct {
	path string

	mu      sync.RWMutex
	values  Values
	modTime time.Time
}

// Load reads path, merging onto Defaults(). If path does not exist it is
// created with the defaults. A malformed file or an unknown key is a
// process-fatal error per spec.md §7 ("failure to load configuration").
func Load(path string) (*Store, error) {
	s := &Store{path: path, values: Defaults()}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeLocked(s.values); err != nil {
			return nil, fmt.Errorf("config: create default file: %w", err)
		}
	}
	if err := s.reloadLocked(); err != nil {
		return nil, fmt.Errorf("config: initial load: %w", err)
	}
	return s, nil
}

// Get returns the current snapshot, reloading first if the file's mtime has
// advanced since the last read. A reload failure after startup is logged by
// the caller and the previous snapshot is kept — only the initial Load can
// be process-fatal.
func (s *Store) Get() (Values, error) {
	s.mu.RLock()
	path := s.path
	lastMod := s.modTime
	s.mu.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		return s.snapshot(), fmt.Errorf("config: stat: %w", err)
	}
	if !info.ModTime().After(lastMod) {
		return s.snapshot(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(); err != nil {
		return s.values, err
	}
	return s.values, nil
}

func (s *Store) snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

func (s *Store) reloadLocked() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("malformed config json: %w", err)
	}
	for key := range generic {
		if !fieldKeys[key] {
			return fmt.Errorf("unknown config key %q", key)
		}
	}

	values := Defaults()
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("malformed config json: %w", err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	s.values = values
	s.modTime = info.ModTime()
	return nil
}

// Update merges a partial set of changes into the current values and writes
// them back atomically. Returns the new snapshot.
func (s *Store) Update(mutate func(*Values)) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.values
	mutate(&next)
	if err := s.writeLocked(next); err != nil {
		return s.values, err
	}
	s.values = next
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return s.values, nil
}

func (s *Store) writeLocked(v Values) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
