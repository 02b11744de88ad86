//go:build !unix

package lockfile

import "os"

// Non-unix platforms fall back to no-op locking. Hook invocations there are
// effectively single-writer because git serializes hook execution, and the
// idempotency keys still suppress duplicate records.

func flockExclusive(f *os.File) error { return nil }

func flockExclusiveNonBlock(f *os.File) error { return nil }

func flockUnlock(f *os.File) error { return nil }
