// Package firmware declares the boot loader's view of UEFI: the
// subset of Boot Services and Runtime Services the rest of the
// loader consumes, expressed as a Go interface so the memory-map
// planner, the page-table builder, and the kernel handoff path can
// be tested without a real EFI environment.
package firmware

import "github.com/xt-sys/exectos/kernel/errors"

// EfiMemoryType is the firmware's classification of a memory
// descriptor, as returned by GetMemoryMap.
type EfiMemoryType uint32

const (
	EfiReservedMemory EfiMemoryType = iota
	EfiLoaderCode
	EfiLoaderData
	EfiBootServicesCode
	EfiBootServicesData
	EfiRuntimeServicesCode
	EfiRuntimeServicesData
	EfiConventionalMemory
	EfiUnusableMemory
	EfiACPIReclaimMemory
	EfiACPIMemoryNVS
	EfiMemoryMappedIO
	EfiMemoryMappedIOPortSpace
	EfiPalCode
)

// AllocateType selects how AllocatePages interprets its address
// argument, mirroring the EFI_ALLOCATE_TYPE enum.
type AllocateType uint32

const (
	AllocateAnyPages AllocateType = iota
	AllocateMaxAddress
	AllocateAddress
)

// MemoryDescriptor is one entry of the firmware memory map, as
// returned by GetMemoryMap.
type MemoryDescriptor struct {
	Type          EfiMemoryType
	PhysicalStart uintptr
	VirtualStart  uintptr
	NumberOfPages uint64
	Attribute     uint64
}

// ResetType selects the kind of platform reset ResetSystem performs.
type ResetType uint32

const (
	ResetCold ResetType = iota
	ResetWarm
	ResetShutdown
)

// MemoryMap is the result of a successful GetMemoryMap call: the
// descriptor slice plus the bookkeeping GetMemoryMap itself needs to
// hand back unchanged to ExitBootServices.
type MemoryMap struct {
	Descriptors   []MemoryDescriptor
	MapKey        uintptr
	DescriptorSize uintptr
	DescriptorVersion uint32
}

// Firmware is the set of UEFI services the loader core consumes.
// Internals (protocol handles, GUIDs, table layout) are out of scope;
// only the operations spec.md's external-interfaces table names are
// exposed.
type Firmware interface {
	// AllocatePages requests npages contiguous physical pages. atType
	// and at interpret the address the same way EFI's AllocatePages
	// does: AllocateAnyPages ignores at, AllocateMaxAddress treats it
	// as an upper bound, AllocateAddress demands that exact base.
	AllocatePages(atType AllocateType, at uintptr, npages uint64) (uintptr, *errors.Error)
	// AllocatePool requests a firmware-pool allocation of size bytes.
	AllocatePool(size uint64) (uintptr, *errors.Error)
	// FreePages releases npages pages starting at phys.
	FreePages(phys uintptr, npages uint64) *errors.Error
	// FreePool releases a pool allocation returned by AllocatePool.
	FreePool(ptr uintptr) *errors.Error

	// GetMemoryMap retrieves the current firmware memory map, retrying
	// internally on EFI_BUFFER_TOO_SMALL by growing the buffer.
	GetMemoryMap() (MemoryMap, *errors.Error)
	// ExitBootServices hands off ownership of the memory map to the
	// caller; mapKey must be the key from the most recent GetMemoryMap.
	ExitBootServices(mapKey uintptr) *errors.Error

	// GetVariable reads a UEFI variable by name and vendor GUID.
	GetVariable(name string, vendor [16]byte) ([]byte, *errors.Error)
	// SetVariable writes a UEFI variable.
	SetVariable(name string, vendor [16]byte, attributes uint32, data []byte) *errors.Error

	// OpenVolume opens the filesystem on the device the loader image
	// was launched from.
	OpenVolume(devicePath string) (Volume, *errors.Error)

	// LocateHandleBuffer returns every handle implementing protocol.
	LocateHandleBuffer(protocol [16]byte) ([]uintptr, *errors.Error)
	// HandleProtocol returns the protocol interface for handle.
	HandleProtocol(handle uintptr, protocol [16]byte) (uintptr, *errors.Error)

	// Stall busy-waits for the given number of microseconds.
	Stall(microseconds uint64)
	// SetWatchdogTimer arms or disarms the platform watchdog.
	SetWatchdogTimer(seconds uint64) *errors.Error
	// ResetSystem performs a platform reset and does not return.
	ResetSystem(kind ResetType)
}

// Volume is the subset of the EFI Simple File System protocol the
// loader uses to read its configuration and the kernel/HAL images.
type Volume interface {
	ReadFile(name string) ([]byte, *errors.Error)
}
