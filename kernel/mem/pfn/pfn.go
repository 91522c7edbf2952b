// Package pfn implements the Page Frame Number database: the array,
// indexed by physical page number, that the kernel uses to track
// every physical page's ownership, sharing, and free-list membership.
// InitializeDatabase carves the database's own backing pages out of
// the largest free memory run the loader reported, classifies every
// descriptor it walks, and hands the result to ScanPageTable to mark
// the pages backing the live page tables themselves as in use.
package pfn

import (
	"unsafe"

	"github.com/xt-sys/exectos/kernel/errors"
	"github.com/xt-sys/exectos/kernel/mem"
	"github.com/xt-sys/exectos/kernel/mem/arch"
	"github.com/xt-sys/exectos/kernel/mem/pte"
	"github.com/xt-sys/exectos/kernel/sync"
)

// CacheAttribute records how a physical page should be cached.
type CacheAttribute uint8

const (
	Cached CacheAttribute = iota
	NonCached
	WriteCombined
)

// PageLocation records which list, if any, currently owns a page.
type PageLocation uint8

const (
	ZeroedPageList PageLocation = iota
	FreePageList
	StandbyPageList
	ModifiedPageList
	BadPageList
	ActiveAndValid
	TransitionPage
)

// Entry is one slot of the PFN database.
type Entry struct {
	// PteAddress is the virtual address of the PTE that maps this
	// page, or 0 if none does.
	PteAddress uintptr
	// Flink links this entry into a free-color list or the bad-pages
	// list; it is overloaded as a working-set index once the page is
	// active, mirroring the native implementation's union.
	Flink mem.PFN
	// ShareCount is the number of PTEs that currently reference this
	// page.
	ShareCount uint16
	// ReferenceCount keeps the page pinned while non-zero.
	ReferenceCount uint16
	CacheAttribute CacheAttribute
	PageLocation   PageLocation
	PrototypePte   bool
	Rom            bool
	InPageError    bool
	// PteFrame is the PFN of the page table that maps this page.
	PteFrame mem.PFN
}

// entrySize is the in-memory size of one Entry, used to size the PFN
// database's own virtual window.
var entrySize = mem.Size(unsafe.Sizeof(Entry{}))

// Database is the PFN array plus its per-color free lists and the
// single bad-pages list.
type Database struct {
	Entries    []Entry
	BasePage   mem.PFN
	ColorLists []mem.PFN
	BadPages   mem.PFN
}

// NewDatabase allocates a Database covering basePage..basePage+count-1
// with the given number of free-page colors.
func NewDatabase(basePage mem.PFN, count, numColors int) *Database {
	if numColors < 1 {
		numColors = 1
	}
	colorLists := make([]mem.PFN, numColors)
	for i := range colorLists {
		colorLists[i] = mem.InvalidPFN
	}
	return &Database{
		Entries:    make([]Entry, count),
		BasePage:   basePage,
		ColorLists: colorLists,
		BadPages:   mem.InvalidPFN,
	}
}

func (d *Database) indexOf(pfn mem.PFN) int { return int(pfn) - int(d.BasePage) }

// EntryFor returns the database slot for pfn. The caller must hold
// sync.SystemSpaceLock.
func (d *Database) EntryFor(pfn mem.PFN) *Entry {
	return &d.Entries[d.indexOf(pfn)]
}

func (d *Database) colorOf(pfn mem.PFN) int {
	return int(pfn) % len(d.ColorLists)
}

// LinkFreePage links pfn into the free list for its color.
func (d *Database) LinkFreePage(pfn mem.PFN) {
	color := d.colorOf(pfn)
	e := d.EntryFor(pfn)
	e.Flink = d.ColorLists[color]
	e.PageLocation = FreePageList
	d.ColorLists[color] = pfn
}

// LinkBadPage links pfn into the single bad-pages list.
func (d *Database) LinkBadPage(pfn mem.PFN) {
	e := d.EntryFor(pfn)
	e.Flink = d.BadPages
	e.PageLocation = BadPageList
	d.BadPages = pfn
}

// LinkPfnForPageTable marks pfn as backing a live page-table page,
// pointed to by p.
func (d *Database) LinkPfnForPageTable(pfn mem.PFN, p pte.PTE) {
	e := d.EntryFor(pfn)
	e.PteAddress = p.Address()
	e.ShareCount++
	e.CacheAttribute = Cached
	e.PageLocation = ActiveAndValid
	e.ReferenceCount = 1
}

// AddressTranslator supplies the virtual-address formulas
// ProcessMemoryDescriptor needs to fill in PteAddress/PteFrame for
// non-free pages: the PTE and PDE addresses of a KSEG0-mapped
// physical page.
type AddressTranslator struct {
	Info          arch.PageMapInfo
	KernelSegBase uintptr
}

func (a AddressTranslator) pteAddress(pfn mem.PFN) uintptr {
	return a.Info.PteAddress(a.KernelSegBase + pfn.Address())
}

func (a AddressTranslator) pdeFrame(pfn mem.PFN) mem.PFN {
	pdeAddr := a.Info.PdeAddress(a.KernelSegBase + pfn.Address())
	return mem.PFNFromAddress(pdeAddr)
}

// ProcessMemoryDescriptor classifies the pageCount physical pages
// starting at basePage according to mtype, linking each into the
// appropriate free list, the bad list, or marking it in-use.
func (d *Database) ProcessMemoryDescriptor(basePage mem.PFN, pageCount uint64, mtype mem.MemoryType, xlate AddressTranslator) {
	switch {
	case mtype.IsFree():
		for i := uint64(0); i < pageCount; i++ {
			pfn := basePage + mem.PFN(i)
			if d.EntryFor(pfn).ReferenceCount == 0 {
				d.LinkFreePage(pfn)
			}
		}

	case mtype == mem.Bad:
		for i := uint64(0); i < pageCount; i++ {
			d.LinkBadPage(basePage + mem.PFN(i))
		}

	case mtype == mem.XipRom:
		for i := uint64(0); i < pageCount; i++ {
			pfn := basePage + mem.PFN(i)
			e := d.EntryFor(pfn)
			if e.ReferenceCount != 0 {
				continue
			}
			e.PteAddress = xlate.pteAddress(pfn)
			e.Flink = mem.InvalidPFN
			e.ShareCount = 0
			e.CacheAttribute = Cached
			e.PageLocation = ZeroedPageList
			e.PrototypePte = true
			e.Rom = true
			e.InPageError = false
			e.PteFrame = xlate.pdeFrame(pfn)
		}

	default:
		for i := uint64(0); i < pageCount; i++ {
			pfn := basePage + mem.PFN(i)
			e := d.EntryFor(pfn)
			if e.ReferenceCount != 0 {
				continue
			}
			e.PteAddress = xlate.pteAddress(pfn)
			e.ShareCount++
			e.CacheAttribute = Cached
			e.PageLocation = ActiveAndValid
			e.ReferenceCount = 1
			e.PteFrame = xlate.pdeFrame(pfn)
		}
	}
}

// Config carries everything InitializeDatabase needs beyond the
// descriptor list itself.
type Config struct {
	Info        arch.PageMapInfo
	Descriptors []mem.Descriptor
	HighestPage mem.PFN
	NumColors   int
	Translator  AddressTranslator

	// MapWindow is invoked once with the virtual address range the PFN
	// database will occupy so the caller can map the backing PDE/PPE
	// ranges with a valid-PTE template before any entry is touched.
	// It may be nil in tests that do not exercise real paging.
	MapWindow func(startVA, endVA uintptr)
	// PfnDatabaseBase is the virtual address the caller has reserved
	// for the PFN database window.
	PfnDatabaseBase uintptr
}

// ComputeDatabaseSizePages returns ⌈(highestPage+1) * sizeof(Entry) / PageSize⌉.
func ComputeDatabaseSizePages(highestPage mem.PFN) uint32 {
	count := uint64(highestPage) + 1
	return mem.Size(count * uint64(entrySize)).Pages()
}

// largestFreeIndex returns the index of the Free descriptor with the
// most pages, or -1 if none exists.
func largestFreeIndex(descriptors []mem.Descriptor) int {
	best := -1
	for i, d := range descriptors {
		if !d.Type.IsFree() {
			continue
		}
		if best == -1 || d.PageCount > descriptors[best].PageCount {
			best = i
		}
	}
	return best
}

// InitializeDatabase builds the PFN database: it carves its own
// backing pages out of the largest free descriptor, maps the window
// covering it, classifies every visible descriptor, and finally marks
// the pages backing the live page tables themselves as in use via
// ScanPageTable.
func InitializeDatabase(cfg Config) (*Database, *errors.Error) {
	ticket := sync.AcquireSystemSpace()
	defer sync.ReleaseSystemSpace(ticket)
	level := sync.RaiseRunLevel(sync.DispatchLevel)
	defer level.Lower()

	dbSizePages := mem.PFN(ComputeDatabaseSizePages(cfg.HighestPage))

	freeIdx := largestFreeIndex(cfg.Descriptors)
	if freeIdx == -1 || cfg.Descriptors[freeIdx].PageCount < uint64(dbSizePages) {
		return nil, errors.New("pfn", "no free descriptor large enough for the PFN database", errors.CodeOutOfResources)
	}

	if cfg.MapWindow != nil {
		cfg.MapWindow(cfg.PfnDatabaseBase, cfg.PfnDatabaseBase+uintptr(dbSizePages)*uintptr(mem.PageSize))
	}

	db := NewDatabase(0, int(cfg.HighestPage)+1, cfg.NumColors)

	for i, desc := range cfg.Descriptors {
		if desc.Type.IsInvisible() {
			continue
		}

		if i == freeIdx {
			db.ProcessMemoryDescriptor(desc.BasePage+dbSizePages, desc.PageCount-uint64(dbSizePages), mem.Free, cfg.Translator)
			db.ProcessMemoryDescriptor(desc.BasePage, uint64(dbSizePages), mem.MemoryData, cfg.Translator)
			continue
		}

		db.ProcessMemoryDescriptor(desc.BasePage, desc.PageCount, desc.Type, cfg.Translator)
	}

	scanLivePageTablesFn(db, cfg.Info)

	return db, nil
}

// scanLivePageTablesFn performs the final step of InitializeDatabase:
// walking the live page-table hierarchy to mark the pages backing it
// as in use. It is a package-level seam so tests can substitute a
// no-op when the live self-map addresses used by the real paging mode
// are not backed by real memory.
var scanLivePageTablesFn = func(d *Database, info arch.PageMapInfo) {
	d.InitializePageTablePfns(info)
}

// entriesPerTable returns the number of PTE slots per page-table page
// at the given level: 1024 for the 32-bit legacy format, 512 for the
// 64-bit format except the 3-level (PAE) PDPT root, which has 4.
func entriesPerTable(info arch.PageMapInfo, level uint8) int {
	if !info.Xpa {
		return 1024
	}
	if info.Levels == 3 && level == 3 {
		return 4
	}
	return 512
}

// rootAddress returns the virtual base address of the live root page
// table for the paging mode described by info: the self-map makes
// this the address of the root table's own entry 0, regardless of
// level.
func rootAddress(info arch.PageMapInfo) (pte.PTE, uint8) {
	switch info.Levels {
	case 5:
		return pte.New(info.Xpa, info.P5eAddress(0)), 5
	case 4:
		return pte.New(info.Xpa, info.PxeAddress(0)), 4
	case 3:
		return pte.New(info.Xpa, info.PpeAddress(0)), 3
	default:
		return pte.New(info.Xpa, info.PdeAddress(0)), 2
	}
}

// InitializePageTablePfns initializes the PFN entry for the root page
// table and recursively scans the live hierarchy so every page
// backing a page table is marked in use.
func (d *Database) InitializePageTablePfns(info arch.PageMapInfo) {
	root, level := rootAddress(info)

	// The self-map's deepest entry, read for the self-map base address
	// itself, resolves to the physical frame backing the root table.
	rootPfn := pte.New(info.Xpa, info.PteAddress(info.PteBase)).Frame()
	e := d.EntryFor(rootPfn)
	e.PteAddress = 0
	e.Flink = 0
	e.ShareCount = 1
	e.CacheAttribute = NonCached
	e.ReferenceCount = 1
	e.PageLocation = ActiveAndValid
	e.PteFrame = 0

	d.ScanPageTable(info, root, level)
}

// ScanPageTable recursively descends the live page-table hierarchy
// starting at table (a paging-level root or intermediate table),
// marking every PFN it finds valid entries pointing to as in use.
func (d *Database) ScanPageTable(info arch.PageMapInfo, table pte.PTE, level uint8) {
	n := entriesPerTable(info, level)
	cur := table

	for i := 0; i < n; i++ {
		if cur.Valid() {
			d.LinkPfnForPageTable(cur.Frame(), cur)

			if level > 1 {
				slot := cur.Address()
				var va uintptr
				switch level {
				case 5:
					va = info.P5eVirtualAddress(slot)
				case 4:
					va = info.PxeVirtualAddress(slot)
				case 3:
					va = info.PpeVirtualAddress(slot)
				case 2:
					va = info.PdeVirtualAddress(slot)
				}

				var nextAddr uintptr
				switch level {
				case 5:
					nextAddr = info.PxeAddress(va)
				case 4:
					nextAddr = info.PpeAddress(va)
				case 3:
					nextAddr = info.PdeAddress(va)
				case 2:
					nextAddr = info.PteAddress(va)
				}

				if nextAddr != 0 {
					d.ScanPageTable(info, pte.New(info.Xpa, nextAddr), level-1)
				}
			}
		}

		cur = cur.Advance(1)
	}
}
