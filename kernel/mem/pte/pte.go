// Package pte implements the architecture-neutral page table entry
// abstraction (PTE ADT). Two backends exist: Legacy, a 32-bit PTE used
// by non-PAE i686 paging, and Xpa, a 64-bit PTE used by PAE i686 and
// every amd64 paging mode. Both satisfy the same PTE interface so that
// the PFN database, the page-table builder, and the page-table scanner
// never need to branch on the backend in use.
package pte

import (
	"unsafe"

	"github.com/xt-sys/exectos/kernel/mem"
)

// Flag describes a hardware or software attribute bit of a page table
// entry.
type Flag uint32

const (
	// FlagValid marks the entry as present/valid in the hardware sense.
	FlagValid Flag = 1 << iota
	// FlagWritable allows writes through this mapping.
	FlagWritable
	// FlagUserAccessible allows user-mode access (unused by ExectOS
	// today, carried for ABI completeness).
	FlagUserAccessible
	// FlagWriteThrough selects write-through caching.
	FlagWriteThrough
	// FlagCacheDisable disables caching for the mapped page.
	FlagCacheDisable
	// FlagAccessed is set by the CPU when the page is accessed.
	FlagAccessed
	// FlagDirty is set by the CPU when the page is written.
	FlagDirty
	// FlagHugePage marks a large-page mapping (unused by the page-map
	// builder, which only emits 4 KiB leaves, but exposed so a reader
	// of an existing table can detect one).
	FlagHugePage
	// FlagGlobal prevents the TLB from invalidating this entry across
	// a CR3 reload.
	FlagGlobal

	// flagPrototype, flagTransition and flagOneEntry are software bits:
	// they are only meaningful while FlagValid is clear, since the
	// hardware ignores the rest of the word in that state.
	flagPrototype
	flagTransition
	flagOneEntry

	hardwareFlagMask = FlagValid | FlagWritable | FlagUserAccessible | FlagWriteThrough |
		FlagCacheDisable | FlagAccessed | FlagDirty | FlagHugePage | FlagGlobal
)

// ListTerminator is the backend-independent sentinel returned by
// NextEntry (and accepted by SetNextEntry) to mean "no next entry".
// Each backend stores it as the all-ones pattern that fits its
// NextEntry field width (0xFFFFF for Legacy, 0xFFFFFFFF for Xpa) and
// translates it back to this same value on read.
const ListTerminator = ^uint32(0)

const (
	softwareShift    = 12
	protectionMask   = 0x1F
	prototypeBit     = 9
	transitionBit    = 10
	oneEntryBit      = 11
	legacyFrameMask  = 0xFFFFF000
	legacyNextMask32 = 0xFFFFF // 20-bit field, bits 12..31
	xpaFrameMask     = 0x000FFFFFFFFFF000
	xpaNextMask64    = 0xFFFFFFFF // 32-bit field, bits 12..43
)

// PTE is the architecture-neutral page table entry ADT.
type PTE interface {
	// Advance returns the PTE located n entries after this one.
	Advance(n int) PTE
	// Clear zeroes the entry.
	Clear()
	// Set writes frame and ORs in the supplied attribute bits, marking
	// the entry valid.
	Set(frame mem.PFN, attrs Flag)
	// SetCaching updates the cache-disable and write-through bits.
	SetCaching(cacheDisable, writeThrough bool)
	// Transition clears the valid bit, sets the transition bit, and
	// stores the software protection mask.
	Transition(protection uint8)
	// Valid reports the hardware valid bit.
	Valid() bool
	HasFlags(f Flag) bool
	SetFlags(f Flag)
	ClearFlags(f Flag)
	// Frame extracts the PFN field.
	Frame() mem.PFN
	SetFrame(mem.PFN)
	// Value reads the whole word; Write performs a whole-word write.
	Value() uint64
	Write(v uint64)
	SoftwareProtection() uint8
	SetSoftwareProtection(uint8)
	SoftwarePrototype() bool
	SetSoftwarePrototype(bool)
	SoftwareTransition() bool
	NextEntry() uint32
	SetNextEntry(uint32)
	OneEntry() bool
	SetOneEntry(bool)
	// Address returns the virtual address of the PTE slot itself.
	Address() uintptr
	// EntrySize returns sizeof(pte) in bytes: 4 for Legacy, 8 for Xpa.
	EntrySize() uintptr
}

// New constructs the backend appropriate for the paging mode in use:
// Xpa for PAE/long-mode 64-bit entries, Legacy for non-PAE 32-bit
// entries.
func New(xpa bool, addr uintptr) PTE {
	if xpa {
		return NewXpa(addr)
	}
	return NewLegacy(addr)
}

// Distance returns the integer number of PTE-sized steps between start
// and end. Both entries must belong to the same backend.
func Distance(end, start PTE) int64 {
	return (int64(end.Address()) - int64(start.Address())) / int64(start.EntrySize())
}

// Legacy is the 32-bit PTE backend used by non-PAE i686 paging.
type Legacy struct{ addr uintptr }

// NewLegacy wraps the 32-bit word at addr as a Legacy PTE.
func NewLegacy(addr uintptr) Legacy { return Legacy{addr: addr} }

func (p Legacy) ptr() *uint32 { return (*uint32)(unsafe.Pointer(p.addr)) }

func (p Legacy) Advance(n int) PTE { return NewLegacy(p.addr + uintptr(n)*p.EntrySize()) }
func (p Legacy) Clear()            { *p.ptr() = 0 }
func (p Legacy) Address() uintptr  { return p.addr }
func (p Legacy) EntrySize() uintptr { return 4 }
func (p Legacy) Value() uint64     { return uint64(*p.ptr()) }
func (p Legacy) Write(v uint64)    { *p.ptr() = uint32(v) }

func (p Legacy) HasFlags(f Flag) bool {
	return uint32(*p.ptr())&uint32(f&hardwareFlagMask) == uint32(f&hardwareFlagMask)
}
func (p Legacy) SetFlags(f Flag)   { *p.ptr() |= uint32(f & hardwareFlagMask) }
func (p Legacy) ClearFlags(f Flag) { *p.ptr() &^= uint32(f & hardwareFlagMask) }
func (p Legacy) Valid() bool       { return p.HasFlags(FlagValid) }

func (p Legacy) Frame() mem.PFN {
	return mem.PFN((*p.ptr() & legacyFrameMask) >> mem.PageShift)
}
func (p Legacy) SetFrame(f mem.PFN) {
	*p.ptr() = (*p.ptr() &^ legacyFrameMask) | (uint32(f) << mem.PageShift)
}
func (p Legacy) Set(frame mem.PFN, attrs Flag) {
	p.Clear()
	p.SetFrame(frame)
	p.SetFlags(FlagValid | attrs)
}
func (p Legacy) SetCaching(cacheDisable, writeThrough bool) {
	if cacheDisable {
		p.SetFlags(FlagCacheDisable)
	} else {
		p.ClearFlags(FlagCacheDisable)
	}
	if writeThrough {
		p.SetFlags(FlagWriteThrough)
	} else {
		p.ClearFlags(FlagWriteThrough)
	}
}
func (p Legacy) Transition(protection uint8) {
	p.ClearFlags(FlagValid)
	p.setSoftwareBit(transitionBit, true)
	p.SetSoftwareProtection(protection)
}

func (p Legacy) softwareBit(bit uint) bool { return (*p.ptr()>>bit)&1 == 1 }
func (p Legacy) setSoftwareBit(bit uint, v bool) {
	if v {
		*p.ptr() |= 1 << bit
	} else {
		*p.ptr() &^= 1 << bit
	}
}

func (p Legacy) SoftwareProtection() uint8 {
	return uint8((*p.ptr() >> softwareShift) & protectionMask)
}
func (p Legacy) SetSoftwareProtection(prot uint8) {
	*p.ptr() = (*p.ptr() &^ (protectionMask << softwareShift)) | (uint32(prot&protectionMask) << softwareShift)
}
func (p Legacy) SoftwarePrototype() bool       { return p.softwareBit(prototypeBit) }
func (p Legacy) SetSoftwarePrototype(v bool)   { p.setSoftwareBit(prototypeBit, v) }
func (p Legacy) SoftwareTransition() bool      { return p.softwareBit(transitionBit) }
func (p Legacy) OneEntry() bool                { return p.softwareBit(oneEntryBit) }
func (p Legacy) SetOneEntry(v bool)            { p.setSoftwareBit(oneEntryBit, v) }

func (p Legacy) NextEntry() uint32 {
	v := (*p.ptr() & legacyFrameMask) >> softwareShift
	if v == legacyNextMask32 {
		return ListTerminator
	}
	return v
}
func (p Legacy) SetNextEntry(v uint32) {
	if v == ListTerminator {
		v = legacyNextMask32
	}
	*p.ptr() = (*p.ptr() &^ legacyFrameMask) | ((v & legacyNextMask32) << softwareShift)
}

// Xpa is the 64-bit PTE backend used by PAE i686 and every amd64
// paging mode.
type Xpa struct{ addr uintptr }

// NewXpa wraps the 64-bit word at addr as an Xpa PTE.
func NewXpa(addr uintptr) Xpa { return Xpa{addr: addr} }

func (p Xpa) ptr() *uint64 { return (*uint64)(unsafe.Pointer(p.addr)) }

func (p Xpa) Advance(n int) PTE { return NewXpa(p.addr + uintptr(n)*p.EntrySize()) }
func (p Xpa) Clear()            { *p.ptr() = 0 }
func (p Xpa) Address() uintptr  { return p.addr }
func (p Xpa) EntrySize() uintptr { return 8 }
func (p Xpa) Value() uint64     { return *p.ptr() }
func (p Xpa) Write(v uint64)    { *p.ptr() = v }

func (p Xpa) HasFlags(f Flag) bool {
	return *p.ptr()&uint64(f&hardwareFlagMask) == uint64(f&hardwareFlagMask)
}
func (p Xpa) SetFlags(f Flag)   { *p.ptr() |= uint64(f & hardwareFlagMask) }
func (p Xpa) ClearFlags(f Flag) { *p.ptr() &^= uint64(f & hardwareFlagMask) }
func (p Xpa) Valid() bool       { return p.HasFlags(FlagValid) }

func (p Xpa) Frame() mem.PFN {
	return mem.PFN((*p.ptr() & xpaFrameMask) >> mem.PageShift)
}
func (p Xpa) SetFrame(f mem.PFN) {
	*p.ptr() = (*p.ptr() &^ xpaFrameMask) | (uint64(f) << mem.PageShift)
}
func (p Xpa) Set(frame mem.PFN, attrs Flag) {
	p.Clear()
	p.SetFrame(frame)
	p.SetFlags(FlagValid | attrs)
}
func (p Xpa) SetCaching(cacheDisable, writeThrough bool) {
	if cacheDisable {
		p.SetFlags(FlagCacheDisable)
	} else {
		p.ClearFlags(FlagCacheDisable)
	}
	if writeThrough {
		p.SetFlags(FlagWriteThrough)
	} else {
		p.ClearFlags(FlagWriteThrough)
	}
}
func (p Xpa) Transition(protection uint8) {
	p.ClearFlags(FlagValid)
	p.setSoftwareBit(transitionBit, true)
	p.SetSoftwareProtection(protection)
}

func (p Xpa) softwareBit(bit uint) bool { return (*p.ptr()>>bit)&1 == 1 }
func (p Xpa) setSoftwareBit(bit uint, v bool) {
	if v {
		*p.ptr() |= 1 << bit
	} else {
		*p.ptr() &^= 1 << bit
	}
}

func (p Xpa) SoftwareProtection() uint8 {
	return uint8((*p.ptr() >> softwareShift) & protectionMask)
}
func (p Xpa) SetSoftwareProtection(prot uint8) {
	*p.ptr() = (*p.ptr() &^ (protectionMask << softwareShift)) | (uint64(prot&protectionMask) << softwareShift)
}
func (p Xpa) SoftwarePrototype() bool     { return p.softwareBit(prototypeBit) }
func (p Xpa) SetSoftwarePrototype(v bool) { p.setSoftwareBit(prototypeBit, v) }
func (p Xpa) SoftwareTransition() bool    { return p.softwareBit(transitionBit) }
func (p Xpa) OneEntry() bool              { return p.softwareBit(oneEntryBit) }
func (p Xpa) SetOneEntry(v bool)          { p.setSoftwareBit(oneEntryBit, v) }

func (p Xpa) NextEntry() uint32 {
	v := uint32((*p.ptr() >> softwareShift) & xpaNextMask64)
	return v
}
func (p Xpa) SetNextEntry(v uint32) {
	*p.ptr() = (*p.ptr() &^ (uint64(xpaNextMask64) << softwareShift)) | (uint64(v) << softwareShift)
}
