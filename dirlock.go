package gourdianfanout

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = ".gourdianfanout.lock"

// dirLock is exclusive ownership of a log directory. Only the pipeline
// holding it may create, append to or delete segments there.
type dirLock struct {
	dir  string
	lock *flock.Flock
}

// canonicalDir resolves dir to an absolute path with symlinks followed where
// possible, so two spellings of one directory compare equal.
func canonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// acquireDir takes a non-blocking lock on the directory's lock file. Each
// lock opens its own file handle, so a second pipeline in the same process
// conflicts just like one in another process.
func acquireDir(dir string) (*dirLock, error) {
	abs, err := canonicalDir(dir)
	if err != nil {
		return nil, &ConfigError{Field: "log_directory", Err: err}
	}

	lock := flock.New(filepath.Join(abs, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", abs, err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to lock %s: %w", abs, ErrDirectoryInUse)
	}
	return &dirLock{dir: abs, lock: lock}, nil
}

func (l *dirLock) owns(dir string) bool {
	abs, err := canonicalDir(dir)
	return err == nil && abs == l.dir
}

func (l *dirLock) release() {
	if l == nil || l.lock == nil {
		return
	}
	_ = l.lock.Unlock()
	l.lock = nil
}
