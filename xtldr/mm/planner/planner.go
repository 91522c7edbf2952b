// Package planner walks the firmware memory map and turns it into an
// xtldr/mm/mapping.List: the boot loader's physical→virtual mapping
// plan, before any page table exists to realize it.
package planner

import (
	"github.com/xt-sys/exectos/kernel/errors"
	"github.com/xt-sys/exectos/kernel/mem"
	"github.com/xt-sys/exectos/xtldr/firmware"
	"github.com/xt-sys/exectos/xtldr/mm/mapping"
)

const pageSize = 0x1000

// Forced identity ranges mapped after the firmware map has been
// walked: the real-mode IVT/BDA page and the VGA/BIOS region.
const (
	legacyPage0Pages  = 1
	videoBiosBase     = 0xA0000
	videoBiosPages    = 0x60
)

// maxAddress4GiB and maxAddress64GiB bound the physical addresses a
// legacy non-PAE or PAE page map can reach; amd64 targets (level 4/5)
// are never called with a clip, matching the assumption recorded for
// spec.md's amd64 MaxAddress open question.
const (
	maxAddress4GiB  = 0x1_0000_0000
	maxAddress64GiB = 0x10_0000_0000
)

// ClassifyFn converts a firmware memory type to the loader's own
// memory-type taxonomy.
type ClassifyFn func(firmware.EfiMemoryType) mem.MemoryType

// DefaultClassify implements the EFI → Loader memory type table.
func DefaultClassify(t firmware.EfiMemoryType) mem.MemoryType {
	switch t {
	case firmware.EfiACPIMemoryNVS, firmware.EfiACPIReclaimMemory, firmware.EfiPalCode:
		return mem.SpecialMemory
	case firmware.EfiRuntimeServicesCode, firmware.EfiRuntimeServicesData,
		firmware.EfiMemoryMappedIO, firmware.EfiMemoryMappedIOPortSpace:
		return mem.FirmwarePermanent
	case firmware.EfiBootServicesData, firmware.EfiLoaderCode, firmware.EfiLoaderData:
		return mem.FirmwareTemporary
	case firmware.EfiUnusableMemory:
		return mem.Bad
	default:
		return mem.Free
	}
}

func maxAddressForLevel(level uint8) uintptr {
	switch level {
	case 2:
		return maxAddress4GiB
	case 3:
		return maxAddress64GiB
	default:
		return 0 // unbounded: amd64 targets are never clipped
	}
}

// clipToMaxAddress truncates a descriptor's page count so that its
// physical range never exceeds max. It returns 0 pages if the
// descriptor starts at or past max.
func clipToMaxAddress(start uintptr, pages uint64, max uintptr) uint64 {
	if max == 0 || start < max {
		if max == 0 {
			return pages
		}
		avail := (max - start) / pageSize
		if uint64(avail) < pages {
			return uint64(avail)
		}
		return pages
	}
	return 0
}

// MapEfiMemory walks the firmware memory map and inserts a mapping
// for every visible descriptor into list, classifying each with
// classify (DefaultClassify if nil). *nextVirt is the first free
// virtual address for non-identity, non-Free mappings; it is bumped
// past every region MapEfiMemory allocates a virtual address for, so
// callers can continue handing out virtual space for the kernel
// image, init block, and framebuffer afterward.
func MapEfiMemory(list *mapping.List, nextVirt *uintptr, descriptors []firmware.MemoryDescriptor, level uint8, classify ClassifyFn) *errors.Error {
	if classify == nil {
		classify = DefaultClassify
	}

	max := maxAddressForLevel(level)

	for _, d := range descriptors {
		if d.Type == firmware.EfiReservedMemory {
			continue
		}

		pages := clipToMaxAddress(d.PhysicalStart, d.NumberOfPages, max)
		if pages == 0 {
			continue
		}

		loaderType := classify(d.Type)

		switch loaderType {
		case mem.FirmwareTemporary:
			if err := list.Insert(d.PhysicalStart, d.PhysicalStart, pages, loaderType); err != nil {
				return err
			}
		case mem.Free:
			if err := list.Insert(0, d.PhysicalStart, pages, loaderType); err != nil {
				return err
			}
		default:
			if err := list.Insert(*nextVirt, d.PhysicalStart, pages, loaderType); err != nil {
				return err
			}
			*nextVirt += uintptr(pages) * pageSize
		}
	}

	if err := list.Insert(0, 0, legacyPage0Pages, mem.FirmwarePermanent); err != nil {
		return err
	}
	if err := list.Insert(videoBiosBase, videoBiosBase, videoBiosPages, mem.FirmwarePermanent); err != nil {
		return err
	}

	return nil
}
