package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WriteFileAtomic writes data to path via a temp file and rename, so readers
// never observe a partially written document.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// DocLocker serialises mutations of named documents (RFC ids, plan names).
// Locks are advisory and in-process; the stores hold one for the duration of
// a read-modify-write.
type DocLocker struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewDocLocker creates an empty locker.
func NewDocLocker() *DocLocker {
	return &DocLocker{locks: make(map[string]*docLock)}
}

// Lock acquires the lock for a document and returns its release function.
func (l *DocLocker) Lock(name string) func() {
	l.mu.Lock()
	lock := l.locks[name]
	if lock == nil {
		lock = &docLock{}
		l.locks[name] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}
}
