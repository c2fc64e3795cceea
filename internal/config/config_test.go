package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.BufferTime != 6.0 || v.Timezone != "Europe/Moscow" || v.Morning != 9 || v.Night != 21 {
		t.Fatalf("unexpected defaults: %+v", v)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to be created: %v", err)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	bad := map[string]any{"NOT_A_KEY": 1}
	b, _ := json.Marshal(bad)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown config key")
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	want, err := s.Update(func(v *Values) {
		v.BufferTime = 12.5
		v.SecondGreet = true
		v.Timezone = "Europe/Berlin"
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestHotReloadOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	v := Defaults()
	v.BufferTime = 42
	b, _ := json.Marshal(v)
	// Ensure the new mtime is observably later than the one Load recorded.
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get after external write: %v", err)
	}
	if got.BufferTime != 42 {
		t.Fatalf("expected hot-reloaded value 42, got %v", got.BufferTime)
	}
}
