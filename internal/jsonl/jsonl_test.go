package jsonl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Seq  int    `json:"seq"`
	Name string `json:"name"`
}

func TestAppendAndReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")

	for i := 1; i <= 3; i++ {
		if err := Append(path, record{Seq: i, Name: "r"}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, line := range lines {
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if r.Seq != i+1 {
			t.Errorf("line %d: seq = %d, want %d (append order must be preserved)", i, r.Seq, i+1)
		}
	}
}

func TestReadLinesMissingFile(t *testing.T) {
	lines, err := ReadLines(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("ReadLines on missing file failed: %v", err)
	}
	if lines != nil {
		t.Fatalf("got %d lines, want none", len(lines))
	}
}

func TestReadLinesDropsTornTrailingWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	content := `{"seq":1,"name":"ok"}` + "\n" + `{"seq":2,"na`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (torn final line must be dropped)", len(lines))
	}
}

func TestReadLinesKeepsCompleteTrailingFragment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	content := `{"seq":1,"name":"ok"}` + "\n" + `{"seq":2,"name":"no newline"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestRewriteReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	if err := Append(path, record{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	if err := Append(path, record{Seq: 2}); err != nil {
		t.Fatal(err)
	}

	if err := Rewrite(path, []any{record{Seq: 9}}); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	lines, err := ReadLines(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines after rewrite, want 1", len(lines))
	}
	var r record
	if err := json.Unmarshal(lines[0], &r); err != nil {
		t.Fatal(err)
	}
	if r.Seq != 9 {
		t.Errorf("seq = %d, want 9", r.Seq)
	}
}
