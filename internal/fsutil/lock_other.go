//go:build !unix

package fsutil

import "os"

// LockShared is a no-op on platforms without flock; version checks still
// detect concurrent writers.
func LockShared(f *os.File) (func(), error) { return func() {}, nil }

// LockExclusive is a no-op on platforms without flock.
func LockExclusive(f *os.File) (func(), error) { return func() {}, nil }
