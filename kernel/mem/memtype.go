package mem

// MemoryType classifies a physical memory range the way the loader's
// memory-descriptor list and the kernel's PFN database both understand
// it. It is the vocabulary the memory-map planner produces and the PFN
// database init routine consumes.
type MemoryType uint8

const (
	// Free memory is available for allocation.
	Free MemoryType = iota
	// Bad memory failed a firmware or POST-time integrity check and
	// must never be handed out.
	Bad
	// SpecialMemory covers ACPI NVS/reclaim, PAL code and reserved
	// firmware regions: present, but neither allocatable nor mappable
	// as ordinary RAM.
	SpecialMemory
	// FirmwarePermanent regions must stay mapped for the lifetime of
	// the system (MMIO, runtime-services code/data, the legacy VGA
	// window, the APIC base page).
	FirmwarePermanent
	// FirmwareTemporary regions are only needed until boot services
	// exit (boot-services data, the loader's own code/data).
	FirmwareTemporary
	// SystemCode holds the kernel image.
	SystemCode
	// SystemBlock holds the kernel initialization block.
	SystemBlock
	// MemoryData holds loader-owned bookkeeping structures, including
	// the PFN database's own backing pages.
	MemoryData
	// XipRom is execute-in-place ROM: read-only, shareable, never
	// reclaimed.
	XipRom
)

// IsFree reports whether t designates memory that may be linked into a
// free-page list once its reference count reaches zero.
func (t MemoryType) IsFree() bool {
	return t == Free
}

// IsInvisible reports whether a descriptor of this type should be
// skipped entirely by the PFN database walk: SpecialMemory is present
// in the map but firmware never permits the kernel to touch it.
func (t MemoryType) IsInvisible() bool {
	return t == SpecialMemory
}

// String renders the type for diagnostic logging.
func (t MemoryType) String() string {
	switch t {
	case Free:
		return "Free"
	case Bad:
		return "Bad"
	case SpecialMemory:
		return "SpecialMemory"
	case FirmwarePermanent:
		return "FirmwarePermanent"
	case FirmwareTemporary:
		return "FirmwareTemporary"
	case SystemCode:
		return "SystemCode"
	case SystemBlock:
		return "SystemBlock"
	case MemoryData:
		return "MemoryData"
	case XipRom:
		return "XipRom"
	default:
		return "Unknown"
	}
}
