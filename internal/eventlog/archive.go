package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// writeArchive stores events as zstd-compressed JSONL named by the
// sequence span it covers.
func (s *Store) writeArchive(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.archiveDir, err)
	}
	name := fmt.Sprintf("rewrite_events-%06d-%06d.jsonl.zst",
		events[0].Seq, events[len(events)-1].Seq)
	path := filepath.Join(s.archiveDir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to open zstd writer: %w", err)
	}
	for i := range events {
		line, err := json.Marshal(&events[i])
		if err != nil {
			enc.Close()
			f.Close()
			return fmt.Errorf("failed to marshal event %d: %w", events[i].Seq, err)
		}
		line = append(line, '\n')
		if _, err := enc.Write(line); err != nil {
			enc.Close()
			f.Close()
			return fmt.Errorf("failed to write archive: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

// Archives lists archive files, oldest span first.
func (s *Store) Archives() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.archiveDir, "rewrite_events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// ReadArchive decodes one archive file back into events.
func ReadArchive(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd reader: %w", err)
	}
	defer dec.Close()

	var events []Event
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("malformed archived event: %w", err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return events, nil
}
