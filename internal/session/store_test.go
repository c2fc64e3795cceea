package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreRecordsJSONLPerUser(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	s.Record(7, "user", "привет")
	s.Record(7, "assistant", "здравствуйте")
	s.Record(8, "user", "другой диалог")
	s.Close()

	f, err := os.Open(filepath.Join(dir, "7.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("malformed line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for user 7, got %d", len(entries))
	}
	if entries[0].Role != "user" || entries[0].Text != "привет" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Role != "assistant" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}

	if _, err := os.Stat(filepath.Join(dir, "8.jsonl")); err != nil {
		t.Fatalf("expected a separate transcript for user 8: %v", err)
	}
}

func TestRecordAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.Record(7, "user", "first")
	s.Close()

	s, err = NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.Record(7, "user", "second")
	s.Close()

	raw, err := os.ReadFile(filepath.Join(dir, "7.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, b := range raw {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines after reopen, got %d", lines)
	}
}
