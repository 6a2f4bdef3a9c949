package toolcontext

import "sync"

// Locker is the hook spec.md §5 calls "delegated to the locking
// external collaborator": Lock takes a lock on a VG's name and returns
// the function that releases it. ToolContext carries one as tc.Locker;
// the VG operations in this module do not call it. This module ships only
// the two single-process implementations below — never a cluster lock
// transport (clvmd/dlm), which spec.md §1 places out of scope.
type Locker interface {
	Lock(vgName string) (unlock func(), err error)
}

// NoopLocker grants every lock immediately, for tests and single-shot
// CLI invocations that don't need cross-process exclusion.
type NoopLocker struct{}

func (NoopLocker) Lock(string) (func(), error) { return func() {}, nil }

var _ Locker = NoopLocker{}

// MutexLocker serializes access per VG name within one process, the
// most a locking_type=1 ("local file lock") setup can promise without
// an actual flock(2) against a lock directory.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMutexLocker builds an empty per-VG-name lock table.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: map[string]*sync.Mutex{}}
}

func (l *MutexLocker) Lock(vgName string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[vgName]
	if !ok {
		m = &sync.Mutex{}
		l.locks[vgName] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

var _ Locker = (*MutexLocker)(nil)
