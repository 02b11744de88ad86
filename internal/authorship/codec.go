package authorship

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The note format keeps attestations as plain text so humans can read
// them in `git notes show`, with a single JSON metadata line after the
// separator:
//
//	src/main.go
//	  [1, 3] 82a0dd96f0f8d051
//	  [8, 9] human
//	"path with spaces.txt"
//	  [2, 2] human
//	---
//	{"schema_version":"authorship/3.0.0","base_commit_sha":"...","prompts":{}}
const metadataSeparator = "---"

// Serialize renders the log in canonical form: paths sorted, entries
// sorted by author, every range as "[start, end]".
func (l *Log) Serialize() ([]byte, error) {
	c := l.Clone()
	c.normalize()
	if c.Metadata.Prompts == nil {
		c.Metadata.Prompts = map[string]PromptRecord{}
	}
	if c.Metadata.SchemaVersion == "" {
		c.Metadata.SchemaVersion = SchemaVersion
	}

	var buf bytes.Buffer
	for _, f := range c.Attestations {
		buf.WriteString(quotePath(f.Path))
		buf.WriteByte('\n')
		for _, e := range f.Entries {
			for _, r := range e.Ranges {
				fmt.Fprintf(&buf, "  [%d, %d] %s\n", r.Start, r.End, e.AuthorID)
			}
		}
	}
	buf.WriteString(metadataSeparator)
	buf.WriteByte('\n')
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	buf.Write(meta)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Deserialize parses a serialized log. Any structural violation,
// including a schema version this build does not speak, is a hard
// error: guessing at attribution data corrupts history silently.
func Deserialize(data []byte) (*Log, error) {
	body, meta, found := strings.Cut(string(data), "\n"+metadataSeparator+"\n")
	if !found {
		// A log with no attestations starts with the separator.
		if rest, ok := strings.CutPrefix(string(data), metadataSeparator+"\n"); ok {
			body, meta = "", rest
		} else {
			return nil, fmt.Errorf("%w: missing metadata separator", ErrDecode)
		}
	}

	log := &Log{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(meta)), &log.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrDecode, err)
	}
	if log.Metadata.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %q (engine supports %q)",
			ErrDecode, log.Metadata.SchemaVersion, SchemaVersion)
	}
	if log.Metadata.Prompts == nil {
		log.Metadata.Prompts = map[string]PromptRecord{}
	}

	// author → ranges, per file, in appearance order.
	var (
		paths   []string
		byFile  = map[string]map[string][]LineRange{}
		authors = map[string][]string{}
	)
	current := ""
	for _, line := range strings.Split(body, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "  "):
			if current == "" {
				return nil, fmt.Errorf("%w: attestation before any path: %q", ErrDecode, line)
			}
			r, author, err := parseAttestationLine(line)
			if err != nil {
				return nil, err
			}
			if _, seen := byFile[current][author]; !seen {
				authors[current] = append(authors[current], author)
			}
			byFile[current][author] = append(byFile[current][author], r)
		default:
			path, err := unquotePath(line)
			if err != nil {
				return nil, err
			}
			if _, dup := byFile[path]; dup {
				return nil, fmt.Errorf("%w: duplicate path %q", ErrDecode, path)
			}
			current = path
			paths = append(paths, path)
			byFile[path] = map[string][]LineRange{}
		}
	}

	for _, path := range paths {
		f := FileAttestation{Path: path}
		for _, author := range authors[path] {
			f.Entries = append(f.Entries, AttestationEntry{
				AuthorID: author,
				Ranges:   byFile[path][author],
			})
		}
		log.Attestations = append(log.Attestations, f)
	}
	log.normalize()
	return log, nil
}

// TouchedPathsFromRaw extracts the attested paths without parsing
// attestations or metadata. Used when filtering many notes cheaply.
func TouchedPathsFromRaw(data []byte) []string {
	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		if line == metadataSeparator {
			break
		}
		if line == "" || strings.HasPrefix(line, "  ") {
			continue
		}
		path, err := unquotePath(line)
		if err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// parseAttestationLine decodes `  [start, end] author` (a bare
// `[line]` is accepted for single lines).
func parseAttestationLine(line string) (LineRange, string, error) {
	s := strings.TrimPrefix(line, "  ")
	if !strings.HasPrefix(s, "[") {
		return LineRange{}, "", fmt.Errorf("%w: attestation %q", ErrDecode, line)
	}
	closing := strings.Index(s, "]")
	if closing < 0 {
		return LineRange{}, "", fmt.Errorf("%w: attestation %q", ErrDecode, line)
	}
	author := strings.TrimSpace(s[closing+1:])
	if author == "" || strings.ContainsAny(author, " \t") {
		return LineRange{}, "", fmt.Errorf("%w: attestation %q", ErrDecode, line)
	}

	var r LineRange
	inner := s[1:closing]
	if first, second, ok := strings.Cut(inner, ","); ok {
		start, err1 := strconv.Atoi(strings.TrimSpace(first))
		end, err2 := strconv.Atoi(strings.TrimSpace(second))
		if err1 != nil || err2 != nil {
			return LineRange{}, "", fmt.Errorf("%w: attestation %q", ErrDecode, line)
		}
		r = LineRange{Start: start, End: end}
	} else {
		n, err := strconv.Atoi(strings.TrimSpace(inner))
		if err != nil {
			return LineRange{}, "", fmt.Errorf("%w: attestation %q", ErrDecode, line)
		}
		r = LineRange{Start: n, End: n}
	}
	if r.Start < 1 || r.End < r.Start {
		return LineRange{}, "", fmt.Errorf("%w: range [%d, %d]", ErrDecode, r.Start, r.End)
	}
	return r, author, nil
}

func quotePath(path string) string {
	// A path literally named "---" must not masquerade as the separator.
	if path == "" || path == metadataSeparator || strings.ContainsAny(path, " \"\\") || strings.ContainsFunc(path, func(r rune) bool { return r < 0x20 }) {
		return strconv.Quote(path)
	}
	return path
}

func unquotePath(line string) (string, error) {
	if !strings.HasPrefix(line, "\"") {
		return line, nil
	}
	path, err := strconv.Unquote(line)
	if err != nil {
		return "", fmt.Errorf("%w: path %q", ErrDecode, line)
	}
	return path, nil
}
