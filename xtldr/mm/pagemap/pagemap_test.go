package pagemap

import (
	"testing"
	"unsafe"

	"github.com/xt-sys/exectos/kernel/errors"
	"github.com/xt-sys/exectos/kernel/mem"
	"github.com/xt-sys/exectos/kernel/mem/pte"
	"github.com/xt-sys/exectos/xtldr/mm/mapping"
)

// newTestAllocator returns a FrameAllocatorFn backed by a real Go
// byte slice standing in for identity-mapped physical memory: the
// loader still runs with VA==PA when page tables are built, so a
// plain bump allocator over real heap memory is a faithful stand-in.
func newTestAllocator(pageCount int) FrameAllocatorFn {
	buf := make([]byte, pageCount*int(mem.PageSize))
	base := uintptr(unsafe.Pointer(&buf[0]))
	next := base
	end := base + uintptr(len(buf))
	return func(mem.MemoryType) (uintptr, *errors.Error) {
		if next+uintptr(mem.PageSize) > end {
			return 0, errors.ErrOutOfResources
		}
		p := next
		next += uintptr(mem.PageSize)
		return p, nil
	}
}

func TestS4SelfMapInstallsRootRecursively(t *testing.T) {
	for _, level := range []uint8{4, 5} {
		alloc := newTestAllocator(16)
		list := mapping.Init(level, mem.PageSize)

		pm, err := BuildPageMap(level, mem.PageSize, list, 0xFFFF_F680_0000_0000, alloc)
		if err != nil {
			t.Fatalf("level %d: unexpected error: %v", level, err)
		}

		idx := pm.pmlIndexForSelfMap(0xFFFF_F680_0000_0000)
		entry := rootEntry(true, pm.Root, idx)
		if !entry.Valid() {
			t.Fatalf("level %d: expected the self-map root entry to be valid", level)
		}
		if entry.Frame() != mem.PFNFromAddress(pm.Root) {
			t.Fatalf("level %d: expected the self-map root entry to point back at the root table; got frame %v, want %v",
				level, entry.Frame(), mem.PFNFromAddress(pm.Root))
		}
	}
}

func TestSelfMapPaeWritesFourConsecutiveDirectoryEntries(t *testing.T) {
	alloc := newTestAllocator(16)
	list := mapping.Init(3, mem.PageSize)
	selfMapVA := uintptr(0x8000_0000) // PPI index 2 of 4

	pm, err := BuildPageMap(3, mem.PageSize, list, selfMapVA, alloc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pdIndex := int((selfMapVA >> pm.Info.PdiShift) & 0x1FF)
	ppIndex := int((selfMapVA >> pm.Info.PpiShift) & 0x3)
	targetPD := pm.paeDirectories[ppIndex]

	for i, wantPD := range pm.paeDirectories {
		e := pte.New(true, targetPD+uintptr(pdIndex+i)*8)
		if !e.Valid() {
			t.Fatalf("expected self-map PD entry %d to be valid", i)
		}
		if e.Frame() != mem.PFNFromAddress(wantPD) {
			t.Fatalf("expected self-map PD entry %d to point at directory %d; got frame %v, want %v",
				i, i, e.Frame(), mem.PFNFromAddress(wantPD))
		}
	}
}

func TestMapPageWritesValidLeafEntry(t *testing.T) {
	selfMapFor := map[uint8]uintptr{
		2: 0xC000_0000,
		3: 0xC000_0000,
		4: 0xFFFF_F680_0000_0000,
		5: 0xFFFF_F680_0000_0000,
	}

	for _, level := range []uint8{2, 3, 4, 5} {
		alloc := newTestAllocator(64)
		list := mapping.Init(level, mem.PageSize)

		pm, err := BuildPageMap(level, mem.PageSize, list, selfMapFor[level], alloc)
		if err != nil {
			t.Fatalf("level %d: unexpected error building page map: %v", level, err)
		}

		virt := uintptr(0x4000_0000)
		phys := uintptr(0x0020_0000)
		if err := pm.MapPage(virt, phys, 1); err != nil {
			t.Fatalf("level %d: unexpected error mapping page: %v", level, err)
		}

		leaf, err := pm.walkToLeafForTest(virt)
		if err != nil {
			t.Fatalf("level %d: unexpected error walking to leaf: %v", level, err)
		}
		if !leaf.Valid() {
			t.Fatalf("level %d: expected the mapped leaf PTE to be valid", level)
		}
		if leaf.Frame() != mem.PFNFromAddress(phys) {
			t.Fatalf("level %d: expected leaf frame %v; got %v", level, mem.PFNFromAddress(phys), leaf.Frame())
		}
	}
}

// walkToLeafForTest re-derives the leaf PTE for virt using the same
// GetNextPageTable calls MapPage makes; since every intermediate
// table already exists, this performs no new allocation.
func (pm *PageMap) walkToLeafForTest(virt uintptr) (pte.PTE, *errors.Error) {
	table := pm.Root

	if pm.Level >= 5 {
		idx := int((virt >> pm.Info.P5iShift) & 0x1FF)
		next, err := pm.GetNextPageTable(table, idx)
		if err != nil {
			return nil, err
		}
		table = next
	}
	if pm.Level >= 4 {
		idx := int((virt >> pm.Info.PxiShift) & 0x1FF)
		next, err := pm.GetNextPageTable(table, idx)
		if err != nil {
			return nil, err
		}
		table = next
	}
	if pm.Level == 3 {
		table = pm.paeDirectories[(virt>>pm.Info.PpiShift)&0x3]
	} else if pm.Level >= 4 {
		idx := int((virt >> pm.Info.PpiShift) & 0x1FF)
		next, err := pm.GetNextPageTable(table, idx)
		if err != nil {
			return nil, err
		}
		table = next
	}

	pdIndexMask := uintptr(0x3FF)
	if pm.Info.Xpa {
		pdIndexMask = 0x1FF
	}
	pdIndex := int((virt >> pm.Info.PdiShift) & pdIndexMask)
	leafTable, err := pm.GetNextPageTable(table, pdIndex)
	if err != nil {
		return nil, err
	}

	pteIndex := int((virt >> 12) & pdIndexMask)
	return rootEntry(pm.Info.Xpa, leafTable, pteIndex), nil
}
