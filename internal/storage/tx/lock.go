package tx

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

// ErrDeadlock is returned when a lock request cannot be granted without a
// deadlock, or when it waited longer than the lock timeout.
var ErrDeadlock = errors.New("tx: deadlock detected")

type lockRequest struct {
	txID    uint64
	mode    storage.LockMode
	ready   chan struct{}
	granted bool
}

type lockEntry struct {
	holders map[uint64]storage.LockMode
	waiters []*lockRequest
}

// LockManager grants shared and exclusive row locks.
type LockManager struct {
	mu       sync.Mutex
	locks    map[string]*lockEntry
	held     map[uint64]map[string]struct{}
	waitsFor map[uint64]map[uint64]struct{}
	timeout  time.Duration

	deadlocks uint64
}

// NewLockManager creates a lock manager. A zero timeout waits forever
// unless a cycle is detected.
func NewLockManager(timeout time.Duration) *LockManager {
	return &LockManager{
		locks:    make(map[string]*lockEntry),
		held:     make(map[uint64]map[string]struct{}),
		waitsFor: make(map[uint64]map[uint64]struct{}),
		timeout:  timeout,
	}
}

// Acquire takes a lock on key for txID. Re-acquiring a held lock is a no-op;
// requesting LockRMW while holding LockShared upgrades the lock.
func (lm *LockManager) Acquire(txID uint64, key string, mode storage.LockMode) error {
	if mode == storage.LockNone {
		return nil
	}

	lm.mu.Lock()
	e, ok := lm.locks[key]
	if !ok {
		e = &lockEntry{holders: make(map[uint64]storage.LockMode)}
		lm.locks[key] = e
	}

	cur, holds := e.holders[txID]
	if holds && (cur == storage.LockRMW || mode == storage.LockShared) {
		lm.mu.Unlock()
		return nil
	}

	if lm.compatible(e, txID, mode) && (holds || len(e.waiters) == 0) {
		lm.grant(e, txID, key, mode)
		lm.mu.Unlock()
		return nil
	}

	req := &lockRequest{txID: txID, mode: mode, ready: make(chan struct{}, 1)}
	if holds {
		// Upgrades go first so they cannot queue behind their own shared lock.
		e.waiters = append([]*lockRequest{req}, e.waiters...)
	} else {
		e.waiters = append(e.waiters, req)
	}
	lm.updateWaits(e)

	if lm.hasCycle(txID) {
		lm.dequeue(e, req)
		delete(lm.waitsFor, txID)
		lm.updateWaits(e)
		lm.deadlocks++
		lm.mu.Unlock()
		return errors.Wrapf(ErrDeadlock, "lock %x", key)
	}
	lm.mu.Unlock()

	var timer <-chan time.Time
	if lm.timeout > 0 {
		t := time.NewTimer(lm.timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-req.ready:
		return nil
	case <-timer:
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if req.granted {
			return nil
		}
		lm.dequeue(e, req)
		delete(lm.waitsFor, txID)
		lm.updateWaits(e)
		lm.deadlocks++
		return errors.Wrapf(ErrDeadlock, "lock timeout after %s", lm.timeout)
	}
}

// ReleaseAll drops every lock held by txID and wakes compatible waiters.
func (lm *LockManager) ReleaseAll(txID uint64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	delete(lm.waitsFor, txID)
	for key := range lm.held[txID] {
		e := lm.locks[key]
		if e == nil {
			continue
		}
		delete(e.holders, txID)
		lm.wake(e, key)
		if len(e.holders) == 0 && len(e.waiters) == 0 {
			delete(lm.locks, key)
		}
	}
	delete(lm.held, txID)
}

// Deadlocks returns how many lock requests failed with ErrDeadlock.
func (lm *LockManager) Deadlocks() uint64 {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.deadlocks
}

// HeldBy returns the number of locks held by txID.
func (lm *LockManager) HeldBy(txID uint64) int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.held[txID])
}

func (lm *LockManager) compatible(e *lockEntry, txID uint64, mode storage.LockMode) bool {
	for holder, m := range e.holders {
		if holder == txID {
			continue
		}
		if mode == storage.LockRMW || m == storage.LockRMW {
			return false
		}
	}
	return true
}

func (lm *LockManager) grant(e *lockEntry, txID uint64, key string, mode storage.LockMode) {
	if cur, ok := e.holders[txID]; !ok || cur < mode {
		e.holders[txID] = mode
	}
	keys, ok := lm.held[txID]
	if !ok {
		keys = make(map[string]struct{})
		lm.held[txID] = keys
	}
	keys[key] = struct{}{}
}

func (lm *LockManager) wake(e *lockEntry, key string) {
	for len(e.waiters) > 0 {
		req := e.waiters[0]
		if !lm.compatible(e, req.txID, req.mode) {
			break
		}
		e.waiters = e.waiters[1:]
		lm.grant(e, req.txID, key, req.mode)
		delete(lm.waitsFor, req.txID)
		req.granted = true
		req.ready <- struct{}{}
	}
	lm.updateWaits(e)
}

func (lm *LockManager) dequeue(e *lockEntry, req *lockRequest) {
	for i, w := range e.waiters {
		if w == req {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

// updateWaits recomputes the wait-for edges of the waiters of e: a waiter
// waits for every other holder and for every waiter queued ahead of it.
func (lm *LockManager) updateWaits(e *lockEntry) {
	for i, req := range e.waiters {
		edges := make(map[uint64]struct{})
		for holder := range e.holders {
			if holder != req.txID {
				edges[holder] = struct{}{}
			}
		}
		for _, ahead := range e.waiters[:i] {
			if ahead.txID != req.txID {
				edges[ahead.txID] = struct{}{}
			}
		}
		lm.waitsFor[req.txID] = edges
	}
}

func (lm *LockManager) hasCycle(start uint64) bool {
	seen := make(map[uint64]bool)
	stack := []uint64{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range lm.waitsFor[n] {
			if next == start {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
