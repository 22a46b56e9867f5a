// File: bytestream/locked.go
// Mutex-guarded stream facade for embedding callers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The engine itself is single-threaded and uses Stream directly. Locked
// exists for host applications that feed or drain a stream from a
// foreign goroutine.

package bytestream

import (
	"sync"

	"github.com/momentics/wsloop/api"
)

// Locked serializes access to an underlying Stream.
type Locked struct {
	mu sync.Mutex
	s  *Stream
}

// NewLocked wraps s. The caller must stop touching s directly.
func NewLocked(s *Stream) *Locked {
	return &Locked{s: s}
}

// With runs fn while holding the lock, giving full access to the
// underlying stream for compound operations.
func (l *Locked) With(fn func(*Stream)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.s)
}

// PushBackN appends src at the tail.
func (l *Locked) PushBackN(src []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.PushBackN(src)
}

// Pull copies and removes bytes from the front.
func (l *Locked) Pull(dst []byte, offset int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.Pull(dst, offset)
}

// Len reports the logical length.
func (l *Locked) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.Len()
}

// TryPushBackN appends without blocking; api.ErrBusy when the lock is
// held elsewhere.
func (l *Locked) TryPushBackN(src []byte) error {
	if !l.mu.TryLock() {
		return api.ErrBusy
	}
	defer l.mu.Unlock()
	return l.s.PushBackN(src)
}

// TryPull pulls without blocking; api.ErrBusy when the lock is held
// elsewhere.
func (l *Locked) TryPull(dst []byte, offset int) (int, error) {
	if !l.mu.TryLock() {
		return 0, api.ErrBusy
	}
	defer l.mu.Unlock()
	return l.s.Pull(dst, offset)
}
