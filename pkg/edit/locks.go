package edit

import (
	"fmt"
	"sync"
	"time"
)

// pathLocks serializes concurrent edits to the same canonical path. Locks
// are acquired with a deadline; a single edit never holds more than one, so
// the deadline guards against a stuck handler, not lock ordering.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]chan struct{})}
}

func (p *pathLocks) acquire(path string, timeout time.Duration) (release func(), err error) {
	p.mu.Lock()
	ch, ok := p.locks[path]
	if !ok {
		ch = make(chan struct{}, 1)
		p.locks[path] = ch
	}
	p.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out waiting for edit lock on %s", path)
	}
}
