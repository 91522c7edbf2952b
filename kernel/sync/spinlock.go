// Package sync provides the synchronization primitives used while the
// PFN database is mutated: a queued spinlock guarding the database
// itself, and a runlevel token that mimics the kernel's RAII-style
// IRQL raise/lower pairing using Go's defer instead of a destructor.
package sync

import (
	"sync/atomic"
)

var (
	// TODO: replace with a real yield once task scheduling exists; the
	// gap is harmless today since PFN-DB initialization runs before
	// any other thread of execution is live.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it
// busy-waits until the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently
// active task. Re-acquiring a lock already held by the current task
// deadlocks.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock without blocking.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling Release while the lock is
// free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// QueuedSpinlock is a ticket-based spinlock that serves waiters in the
// order they arrived. SystemSpaceLock is built on top of it so that
// PFN database mutations never starve a waiter behind a busy retry
// loop.
type QueuedSpinlock struct {
	nextTicket uint32
	nowServing uint32
}

// Acquire blocks until this caller's ticket is being served.
func (q *QueuedSpinlock) Acquire() uint32 {
	ticket := atomic.AddUint32(&q.nextTicket, 1) - 1
	for atomic.LoadUint32(&q.nowServing) != ticket {
		if yieldFn != nil {
			yieldFn()
		}
	}
	return ticket
}

// Release advances the serving counter, admitting the next waiter.
func (q *QueuedSpinlock) Release(ticket uint32) {
	atomic.StoreUint32(&q.nowServing, ticket+1)
}

// SystemSpaceLock is the single queued spinlock that protects the PFN
// database and the per-color free lists during mutation. It is
// non-reentrant: a caller that already holds it must not call Acquire
// again.
var SystemSpaceLock QueuedSpinlock

// AcquireSystemSpace acquires SystemSpaceLock and returns a token that
// must be passed to ReleaseSystemSpace.
func AcquireSystemSpace() uint32 {
	return SystemSpaceLock.Acquire()
}

// ReleaseSystemSpace releases SystemSpaceLock previously acquired with
// AcquireSystemSpace.
func ReleaseSystemSpace(ticket uint32) {
	SystemSpaceLock.Release(ticket)
}
