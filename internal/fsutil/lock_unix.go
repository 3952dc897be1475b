//go:build unix

package fsutil

import (
	"os"

	"golang.org/x/sys/unix"
)

// LockShared blocks until a shared advisory lock is held on f.
func LockShared(f *os.File) (func(), error) {
	return flock(f, unix.LOCK_SH)
}

// LockExclusive blocks until an exclusive advisory lock is held on f.
func LockExclusive(f *os.File) (func(), error) {
	return flock(f, unix.LOCK_EX)
}

func flock(f *os.File, how int) (func(), error) {
	fd := int(f.Fd())
	for {
		err := unix.Flock(fd, how)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, &os.PathError{Op: "flock", Path: f.Name(), Err: err}
		}
		break
	}
	return func() { _ = unix.Flock(fd, unix.LOCK_UN) }, nil
}
