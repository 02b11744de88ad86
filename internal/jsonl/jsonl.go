// Package jsonl provides utilities for reading and appending JSONL files.
//
// The working log and the rewrite-event log are both newline-delimited JSON.
// Records are appended with a single write syscall on an O_APPEND descriptor
// so a crashed writer can leave at most one partial trailing line, which the
// read path discards instead of failing the whole file.
package jsonl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Append marshals v and appends it to path as one line. The open uses
// O_APPEND and the line is written with one Write call, so concurrent
// appenders never interleave within a record.
func Append(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}

// ReadLines returns the JSON records in path, one per line, in file order.
// A missing file reads as empty. Blank lines are skipped. A trailing
// fragment without a newline is kept only when it is complete JSON;
// otherwise it is treated as a torn write and dropped.
func ReadLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var lines [][]byte
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		var line []byte
		if idx < 0 {
			// Final fragment with no newline: a writer died mid-append.
			if json.Valid(bytes.TrimSpace(data)) {
				line = data
				data = nil
			} else {
				break
			}
		} else {
			line, data = data[:idx], data[idx+1:]
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		lines = append(lines, out)
	}
	return lines, nil
}

// Rewrite atomically replaces path with the given records, one line each.
// Used by maintenance paths that rebuild a log; normal operation only
// appends.
func Rewrite(path string, records []any) error {
	var buf bytes.Buffer
	for _, v := range records {
		line, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
