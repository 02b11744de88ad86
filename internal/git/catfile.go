package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrMalformedBatch marks a framing violation in cat-file --batch output.
// Unlike a missing object (which is an expected empty result), a framing
// error means the stream is corrupt and must never be silently swallowed.
var ErrMalformedBatch = errors.New("malformed cat-file --batch output")

// CatFileBatch reads many objects in one subprocess. Input OIDs are
// deduplicated and sorted so the object store is hit once per unique id
// regardless of how many callers asked for it. Missing objects are simply
// absent from the result map.
func (r *Repo) CatFileBatch(ctx context.Context, oids []string) (map[string][]byte, error) {
	unique := make([]string, 0, len(oids))
	seen := make(map[string]struct{}, len(oids))
	for _, oid := range oids {
		if oid == "" {
			continue
		}
		if _, ok := seen[oid]; ok {
			continue
		}
		seen[oid] = struct{}{}
		unique = append(unique, oid)
	}
	if len(unique) == 0 {
		return map[string][]byte{}, nil
	}
	sort.Strings(unique)

	dir := r.workDir
	if dir == "" {
		dir = r.gitDir
	}

	// The errgroup context kills the subprocess when either side fails,
	// so a framing error can never deadlock the feeder on a full pipe.
	eg, egCtx := errgroup.WithContext(ctx)
	cmd := exec.CommandContext(egCtx, r.gitCmd, "-C", dir, "cat-file", "--batch")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open cat-file stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open cat-file stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start cat-file --batch: %w", err)
	}

	results := make(map[string][]byte, len(unique))

	eg.Go(func() error {
		defer stdin.Close()
		for _, oid := range unique {
			if _, err := io.WriteString(stdin, oid+"\n"); err != nil {
				return fmt.Errorf("failed to feed cat-file --batch: %w", err)
			}
		}
		return nil
	})

	eg.Go(func() error {
		reader := bufio.NewReader(stdout)
		for range unique {
			header, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("%w: missing header: %v", ErrMalformedBatch, err)
			}
			fields := strings.Fields(strings.TrimSpace(header))
			if len(fields) == 2 && fields[1] == "missing" {
				continue
			}
			if len(fields) != 3 {
				return fmt.Errorf("%w: unexpected header %q", ErrMalformedBatch, strings.TrimSpace(header))
			}
			size, err := strconv.Atoi(fields[2])
			if err != nil {
				return fmt.Errorf("%w: bad size in header %q", ErrMalformedBatch, strings.TrimSpace(header))
			}
			content := make([]byte, size)
			if _, err := io.ReadFull(reader, content); err != nil {
				return fmt.Errorf("%w: truncated content for %s", ErrMalformedBatch, fields[0])
			}
			// Each object is followed by one LF.
			if _, err := reader.ReadByte(); err != nil && err != io.EOF {
				return fmt.Errorf("%w: missing trailer for %s", ErrMalformedBatch, fields[0])
			}
			results[fields[0]] = content
		}
		return nil
	})

	waitErr := eg.Wait()
	if err := cmd.Wait(); waitErr == nil && err != nil {
		waitErr = fmt.Errorf("cat-file --batch failed: %w", err)
	}
	if waitErr != nil {
		return nil, waitErr
	}
	return results, nil
}
