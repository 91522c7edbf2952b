// Package atomic provides sequentially-consistent primitives for
// mutating shared state without taking a lock: bitwise and/or/xor,
// compare-and-swap, exchange, and a lock-free intrusive
// single-linked-list push/pop/flush. The PFN database's per-color free
// lists do not use it; they link entries through Entry.Flink under
// SystemSpaceLock.
//
// Every operation here is a thin, typed wrapper around the standard
// library's sync/atomic: no third-party atomics library is more
// idiomatic than the language's own for this job, and the point of
// this package is to present the same naming ExectOS uses at the
// native level (And/Or/Xor/Cas/Xchg/Inc/Dec) rather than to replace
// sync/atomic's implementation.
package atomic

import (
	"sync/atomic"
	"unsafe"
)

// And32, Or32 and Xor32 atomically apply a bitwise operation and
// return the previous value. sync/atomic has no native 8/16-bit
// primitives, so every ExectOS call site that needs And/Or/Xor/Cas
// operates on the 32-bit and 64-bit counters and bitmaps the PFN
// database and mapping list actually use.
func And32(addr *uint32, mask uint32) uint32 {
	for {
		old := atomic.LoadUint32(addr)
		if atomic.CompareAndSwapUint32(addr, old, old&mask) {
			return old
		}
	}
}

func Or32(addr *uint32, mask uint32) uint32 {
	for {
		old := atomic.LoadUint32(addr)
		if atomic.CompareAndSwapUint32(addr, old, old|mask) {
			return old
		}
	}
}

func Xor32(addr *uint32, mask uint32) uint32 {
	for {
		old := atomic.LoadUint32(addr)
		if atomic.CompareAndSwapUint32(addr, old, old^mask) {
			return old
		}
	}
}

func And64(addr *uint64, mask uint64) uint64 {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old&mask) {
			return old
		}
	}
}

func Or64(addr *uint64, mask uint64) uint64 {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old|mask) {
			return old
		}
	}
}

func Xor64(addr *uint64, mask uint64) uint64 {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old^mask) {
			return old
		}
	}
}

// Cas32 compares *addr to old and, if equal, stores new, reporting
// whether it did.
func Cas32(addr *uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(addr, old, new)
}

// Cas64 is the 64-bit counterpart of Cas32.
func Cas64(addr *uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(addr, old, new)
}

// Xchg32 stores new and returns the previous value.
func Xchg32(addr *uint32, new uint32) uint32 {
	return atomic.SwapUint32(addr, new)
}

// Xchg64 is the 64-bit counterpart of Xchg32.
func Xchg64(addr *uint64, new uint64) uint64 {
	return atomic.SwapUint64(addr, new)
}

// ExchangeAdd32 adds delta to *addr and returns the value it held
// before the addition.
func ExchangeAdd32(addr *uint32, delta int32) uint32 {
	return atomic.AddUint32(addr, uint32(delta)) - uint32(delta)
}

// ExchangeAdd64 is the 64-bit counterpart of ExchangeAdd32.
func ExchangeAdd64(addr *uint64, delta int64) uint64 {
	return atomic.AddUint64(addr, uint64(delta)) - uint64(delta)
}

// Inc32 atomically increments *addr and returns the new value.
func Inc32(addr *uint32) uint32 { return atomic.AddUint32(addr, 1) }

// Dec32 atomically decrements *addr and returns the new value.
func Dec32(addr *uint32) uint32 { return atomic.AddUint32(addr, ^uint32(0)) }

// Inc64 is the 64-bit counterpart of Inc32.
func Inc64(addr *uint64) uint64 { return atomic.AddUint64(addr, 1) }

// Dec64 is the 64-bit counterpart of Dec32.
func Dec64(addr *uint64) uint64 { return atomic.AddUint64(addr, ^uint64(0)) }

// BitTestAndSet atomically sets bit in *addr and returns whether it
// was already set.
func BitTestAndSet(addr *uint32, bit uint) bool {
	mask := uint32(1) << bit
	old := Or32(addr, mask)
	return old&mask != 0
}

// CompareExchangePointer compares *addr to old and, on a match, stores
// new, returning the value *addr held beforehand.
func CompareExchangePointer(addr *uintptr, old, new uintptr) uintptr {
	for {
		cur := atomic.LoadUintptr(addr)
		if cur != old {
			return cur
		}
		if atomic.CompareAndSwapUintptr(addr, old, new) {
			return old
		}
	}
}

// ExchangePointer stores new and returns the previous value.
func ExchangePointer(addr *uintptr, new uintptr) uintptr {
	return atomic.SwapUintptr(addr, new)
}

// ListEntry is a single node of a lock-free intrusive singly linked
// list. Embedders store it as a field and operate on the list through
// Push/Pop/Flush below.
type ListEntry struct {
	next uint64
}

// List is a lock-free LIFO built from 64-bit compare-and-swap on the
// head pointer.
type List struct {
	head uint64
}

// Push links entry onto the head of the list.
func (l *List) Push(entry *ListEntry) {
	addr := uint64(uintptrOf(entry))
	for {
		old := atomic.LoadUint64(&l.head)
		atomic.StoreUint64(&entry.next, old)
		if atomic.CompareAndSwapUint64(&l.head, old, addr) {
			return
		}
	}
}

// Pop removes and returns the head of the list, or nil if it is empty.
func (l *List) Pop() *ListEntry {
	for {
		old := atomic.LoadUint64(&l.head)
		if old == 0 {
			return nil
		}
		entry := entryFromUintptr(uintptr(old))
		next := atomic.LoadUint64(&entry.next)
		if atomic.CompareAndSwapUint64(&l.head, old, next) {
			return entry
		}
	}
}

// Flush atomically removes every entry from the list and returns the
// former head, leaving the list empty. The caller walks the returned
// chain through each entry's Next.
func (l *List) Flush() *ListEntry {
	old := atomic.SwapUint64(&l.head, 0)
	if old == 0 {
		return nil
	}
	return entryFromUintptr(uintptr(old))
}

// Next returns the entry linked after e, or nil at the end of a chain
// returned by Flush.
func (e *ListEntry) Next() *ListEntry {
	next := atomic.LoadUint64(&e.next)
	if next == 0 {
		return nil
	}
	return entryFromUintptr(uintptr(next))
}

func uintptrOf(e *ListEntry) uintptr {
	return uintptr(unsafe.Pointer(e))
}

func entryFromUintptr(addr uintptr) *ListEntry {
	return (*ListEntry)(unsafe.Pointer(addr))
}
