// Package pagemap materializes the hardware page tables described by
// an xtldr/mm/mapping.List: it allocates the root table and every
// intermediate table on demand, writes leaf PTEs for each mapping
// that carries a virtual address, and installs the recursive
// self-map that the kernel's PFN database later relies on.
package pagemap

import (
	"github.com/xt-sys/exectos/kernel/errors"
	"github.com/xt-sys/exectos/kernel/mem"
	"github.com/xt-sys/exectos/kernel/mem/arch"
	"github.com/xt-sys/exectos/kernel/mem/pte"
	"github.com/xt-sys/exectos/xtldr/mm/mapping"
)

// FrameAllocatorFn allocates a single physical page for purpose,
// returning its physical address; BuildPageMap and GetNextPageTable
// zero the page themselves. The loader still runs
// identity-mapped when page tables are built, so the returned
// address doubles as a directly addressable pointer.
type FrameAllocatorFn func(purpose mem.MemoryType) (uintptr, *errors.Error)

const paeDirectoryEntries = 4

// PageMap is the loader's in-progress page-table tree.
type PageMap struct {
	Level    uint8
	PageSize mem.Size
	Root     uintptr
	Info     arch.PageMapInfo
	List     *mapping.List

	// paeDirectories holds the 4 page-directory pages PAE wires into
	// the root PDPT; nil for every other level.
	paeDirectories []uintptr

	alloc FrameAllocatorFn
}

func zeroPage(phys uintptr, size mem.Size) {
	mem.Memset(phys, 0, size)
}

func rootEntry(xpa bool, tableBase uintptr, index int) pte.PTE {
	entrySize := uintptr(4)
	if xpa {
		entrySize = 8
	}
	return pte.New(xpa, tableBase+uintptr(index)*entrySize)
}

// BuildPageMap allocates the root page-table structure for level,
// installs the recursive self-map at selfMapVA, and writes a leaf PTE
// for every mapping in list that carries a virtual address.
func BuildPageMap(level uint8, pageSize mem.Size, list *mapping.List, selfMapVA uintptr, alloc FrameAllocatorFn) (*PageMap, *errors.Error) {
	root, err := alloc(mem.MemoryData)
	if err != nil {
		return nil, err
	}
	zeroPage(root, pageSize)

	pm := &PageMap{Level: level, PageSize: pageSize, Root: root, List: list, alloc: alloc}

	switch level {
	case 2:
		pm.Info = arch.NewLegacy(selfMapVA)
	case 3:
		pm.paeDirectories = make([]uintptr, paeDirectoryEntries)
		for i := range pm.paeDirectories {
			pd, err := alloc(mem.MemoryData)
			if err != nil {
				return nil, err
			}
			zeroPage(pd, pageSize)
			pm.paeDirectories[i] = pd
			// PDPT entries are valid-only: no writable bit on PAE.
			rootEntry(true, root, i).Set(mem.PFNFromAddress(pd), 0)
		}
		pm.Info = arch.NewPae(selfMapVA)
	case 4:
		pm.Info = arch.NewAmd64(selfMapVA)
	case 5:
		pm.Info = arch.NewAmd64La57(selfMapVA)
	default:
		return nil, errors.ErrInvalidParameter
	}

	if err := pm.selfMapPml(selfMapVA); err != nil {
		return nil, err
	}

	var walkErr *errors.Error
	list.Each(func(m *mapping.Mapping) {
		if walkErr != nil || m.Virtual == 0 {
			return
		}
		walkErr = pm.MapPage(m.Virtual, m.Physical, m.PageCount)
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return pm, nil
}

// selfMapPml installs the recursive self-map: a page-table entry
// whose target is the root of the page map itself.
func (pm *PageMap) selfMapPml(selfMapVA uintptr) *errors.Error {
	switch pm.Level {
	case 2:
		index := (selfMapVA >> 22) & 0x3FF
		rootEntry(false, pm.Root, int(index)).Set(mem.PFNFromAddress(pm.Root), pte.FlagWritable)
	case 3:
		// self_map_va falls within exactly one of the 4 PAE page
		// directories (selected by its PPI bits); write 4 consecutive
		// entries there, one per PDPT directory, so the self-map
		// reaches every PD through a linear PDE formula.
		pdIndex := int((selfMapVA >> pm.Info.PdiShift) & 0x1FF)
		ppIndex := int((selfMapVA >> pm.Info.PpiShift) & 0x3)
		targetPD := pm.paeDirectories[ppIndex]
		for i, pd := range pm.paeDirectories {
			pte.New(true, targetPD+uintptr(pdIndex+i)*8).Set(mem.PFNFromAddress(pd), pte.FlagWritable)
		}
	case 4, 5:
		rootIndex := pm.pmlIndexForSelfMap(selfMapVA)
		rootEntry(true, pm.Root, rootIndex).Set(mem.PFNFromAddress(pm.Root), pte.FlagWritable)
	default:
		return errors.ErrInvalidParameter
	}
	return nil
}

func (pm *PageMap) pmlIndexForSelfMap(selfMapVA uintptr) int {
	if pm.Level == 5 {
		return int((selfMapVA >> pm.Info.P5iShift) & 0x1FF)
	}
	return int((selfMapVA >> pm.Info.PxiShift) & 0x1FF)
}

// GetNextPageTable returns the physical address of the next-level
// table reached from the entry at tableBase[index], allocating and
// zeroing it (and recording it in the mapping list) if it does not
// yet exist.
func (pm *PageMap) GetNextPageTable(tableBase uintptr, index int) (uintptr, *errors.Error) {
	entry := rootEntry(pm.Info.Xpa, tableBase, index)
	if entry.Valid() {
		return entry.Frame().Address(), nil
	}

	next, err := pm.alloc(mem.MemoryData)
	if err != nil {
		return 0, err
	}
	zeroPage(next, pm.PageSize)

	if err := pm.List.Insert(0, next, 1, mem.MemoryData); err != nil {
		return 0, err
	}

	entry.Set(mem.PFNFromAddress(next), pte.FlagWritable)
	return next, nil
}

// MapPage writes leaf PTEs mapping npages pages starting at virt to
// phys, allocating any missing intermediate tables along the way.
func (pm *PageMap) MapPage(virt, phys uintptr, npages uint64) *errors.Error {
	for ; npages > 0; npages, virt, phys = npages-1, virt+uintptr(pm.PageSize), phys+uintptr(pm.PageSize) {
		table := pm.Root

		if pm.Level >= 5 {
			idx := int((virt >> pm.Info.P5iShift) & 0x1FF)
			next, err := pm.GetNextPageTable(table, idx)
			if err != nil {
				return err
			}
			table = next
		}
		if pm.Level >= 4 {
			idx := int((virt >> pm.Info.PxiShift) & 0x1FF)
			next, err := pm.GetNextPageTable(table, idx)
			if err != nil {
				return err
			}
			table = next
		}
		if pm.Level == 3 {
			// The PDPT (root) already points at one of the 4
			// preallocated PAE directories; select it directly.
			table = pm.paeDirectories[(virt>>pm.Info.PpiShift)&0x3]
		} else if pm.Level >= 4 {
			idx := int((virt >> pm.Info.PpiShift) & 0x1FF)
			next, err := pm.GetNextPageTable(table, idx)
			if err != nil {
				return err
			}
			table = next
		}

		var pdIndexMask uintptr = 0x3FF
		if pm.Info.Xpa {
			pdIndexMask = 0x1FF
		}
		pdIndex := int((virt >> pm.Info.PdiShift) & pdIndexMask)
		leafTable, err := pm.GetNextPageTable(table, pdIndex)
		if err != nil {
			return err
		}

		pteIndex := int((virt >> arch.PtiShift) & pdIndexMask)
		rootEntry(pm.Info.Xpa, leafTable, pteIndex).Set(mem.PFNFromAddress(phys), pte.FlagWritable)
	}
	return nil
}
