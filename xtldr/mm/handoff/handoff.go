// Package handoff assembles the kernel's address space and
// initialization block and transfers control to it: the last stage
// the boot loader runs before the kernel is in charge of its own
// memory.
package handoff

import (
	"github.com/xt-sys/exectos/kernel/cpu"
	"github.com/xt-sys/exectos/kernel/errors"
	"github.com/xt-sys/exectos/kernel/mem"
	"github.com/xt-sys/exectos/xtldr/firmware"
	"github.com/xt-sys/exectos/xtldr/mm/mapping"
	"github.com/xt-sys/exectos/xtldr/mm/pagemap"
	"github.com/xt-sys/exectos/xtldr/mm/planner"
	"github.com/xt-sys/exectos/xtldr/pecoff"
)

const (
	BlockVersion    = 1
	ProtocolVersion = 1
)

const pageSize = mem.PageSize

// maxExitBootServicesRetries bounds the fetch-map/exit-boot-services
// retry loop Execute runs: the firmware is allowed to keep invalidating
// the map key out from under us, but not forever.
const maxExitBootServicesRetries = 255

// Well-known virtual addresses for the kernel's address space. The
// numeric values are implementation choices: original_source's
// headers defining the real constants (KSEG0_BASE, KSEG0_KERNEL_BASE,
// MM_TRAMPOLINE_ADDRESS, the canonical self-map base) were not part
// of the retrieved source pack, only their call sites.
const (
	Kseg0Base           uintptr = 0xFFFF_8000_0000_0000
	Kseg0KernelBase     uintptr = 0x0000_0001_0000_0000
	MmTrampolineAddress uintptr = 0x0000_0000_0000_1000
	SelfMapBase         uintptr = 0xFFFF_F680_0000_0000
	ApicVirtualBase     uintptr = 0xFFFF_F680_0000_1000
)

// FirmwareType identifies the platform firmware that produced this
// handoff; EFI is the only one implemented.
type FirmwareType uint32

const FirmwareEfi FirmwareType = 0

// FramebufferInfo describes the pre-boot framebuffer, if any.
type FramebufferInfo struct {
	Initialized bool
	Protocol    uint32
	Address     uintptr
	BufferSize  uint64
	Width       uint32
	Height      uint32
	Pitch       uint32
	Bpp         uint32
	PixelFormat uint32
}

// LoaderInformation is the loader-contributed half of InitBlock.
type LoaderInformation struct {
	DebugPrint  uintptr
	Framebuffer FramebufferInfo
}

// EfiFirmwareInfo carries the handful of EFI facts the kernel keeps
// after boot services exit.
type EfiFirmwareInfo struct {
	Version         uint32
	RuntimeServices uintptr
}

// FirmwareInformation is the firmware-contributed half of InitBlock.
type FirmwareInformation struct {
	Type FirmwareType
	Efi  EfiFirmwareInfo
}

// InitBlock is the ABI-stable structure handed to the kernel entry
// point as its sole argument.
type InitBlock struct {
	BlockSize           uint32
	BlockVersion        uint32
	ProtocolVersion     uint32
	LoaderInformation   LoaderInformation
	FirmwareInformation FirmwareInformation
	KernelParameters    string

	// MemoryDescriptors is the loader's classified view of physical
	// memory, reduced from its mapping list; the kernel's PFN database
	// init consumes it directly instead of re-deriving it from the
	// raw EFI memory map.
	MemoryDescriptors []mem.Descriptor
	HighestPage       mem.PFN
	SelfMapBase       uintptr
}

// Config supplies every external collaborator and policy choice
// Execute needs. Framebuffer is optional; a zero value means no
// framebuffer was set up before handoff.
type Config struct {
	Level          uint8
	Firmware       firmware.Firmware
	Volume         firmware.Volume
	KernelFileName string
	WantMachine    uint16
	KernelParams   string
	Framebuffer    *FramebufferPlan
	DebugPrint     uintptr
	RuntimeServices uintptr
	Classify       planner.ClassifyFn

	// EnterKernel performs the actual control transfer to the kernel
	// entry point with the init block's virtual address; it is not
	// expected to return.
	EnterKernel func(initBlockVA uintptr)
}

// FramebufferPlan describes a framebuffer already set up by an
// earlier stage, physically addressed; Execute remaps it and rewrites
// the address in the init block to the new virtual one.
type FramebufferPlan struct {
	Physical    uintptr
	BufferSize  uint64
	Protocol    uint32
	Width       uint32
	Height      uint32
	Pitch       uint32
	Bpp         uint32
	PixelFormat uint32
}

// Result is everything Execute built, returned for tests and for any
// caller that wants to inspect the final layout before EnterKernel
// would otherwise take over.
type Result struct {
	List          *mapping.List
	PageMap       *pagemap.PageMap
	InitBlock     *InitBlock
	InitBlockVA   uintptr
	KernelEntryVA uintptr
}

func firmwareAllocator(fw firmware.Firmware) pagemap.FrameAllocatorFn {
	return func(purpose mem.MemoryType) (uintptr, *errors.Error) {
		return fw.AllocatePages(firmware.AllocateAnyPages, 0, 1)
	}
}

func pagesFor(size uint64) uint64 {
	return (size + uint64(pageSize) - 1) / uint64(pageSize)
}

// Build runs handoff steps 1-9 of the kernel handoff sequence: it maps
// firmware memory, loads the kernel image, and fills the
// initialization block, but stops short of exiting boot services or
// transferring control so tests can inspect the resulting layout.
func Build(cfg Config) (*Result, *errors.Error) {
	list := mapping.Init(cfg.Level, pageSize)
	nextVirt := Kseg0Base
	alloc := firmwareAllocator(cfg.Firmware)

	memMap, err := cfg.Firmware.GetMemoryMap()
	if err != nil {
		return nil, err
	}
	if err := planner.MapEfiMemory(list, &nextVirt, memMap.Descriptors, cfg.Level, cfg.Classify); err != nil {
		return nil, err
	}

	kernelData, err := cfg.Volume.ReadFile(cfg.KernelFileName)
	if err != nil {
		return nil, err
	}
	image, err := pecoff.Load(kernelData, cfg.WantMachine)
	if err != nil {
		return nil, err
	}

	kernelPages := pagesFor(uint64(image.SizeOfImage))
	kernelPhys, err := cfg.Firmware.AllocatePages(firmware.AllocateAnyPages, 0, kernelPages)
	if err != nil {
		return nil, err
	}
	kernelVirt := Kseg0Base + Kseg0KernelBase
	if err := list.Insert(kernelVirt, kernelPhys, kernelPages, mem.SystemCode); err != nil {
		return nil, err
	}

	if err := list.Insert(MmTrampolineAddress, MmTrampolineAddress, 1, mem.FirmwareTemporary); err != nil {
		return nil, err
	}

	block := &InitBlock{
		BlockSize:        uint32(pageSize),
		BlockVersion:     BlockVersion,
		ProtocolVersion:  ProtocolVersion,
		KernelParameters: cfg.KernelParams,
		LoaderInformation: LoaderInformation{
			DebugPrint: cfg.DebugPrint,
		},
		FirmwareInformation: FirmwareInformation{
			Type: FirmwareEfi,
			Efi: EfiFirmwareInfo{
				RuntimeServices: cfg.RuntimeServices,
			},
		},
	}

	initPhys, err := cfg.Firmware.AllocatePages(firmware.AllocateAnyPages, 0, 1)
	if err != nil {
		return nil, err
	}
	initVirt := nextVirt
	if err := list.Insert(initVirt, initPhys, 1, mem.SystemBlock); err != nil {
		return nil, err
	}
	nextVirt += uintptr(pageSize)

	if cfg.Framebuffer != nil {
		fbPages := pagesFor(cfg.Framebuffer.BufferSize)
		fbVirt := nextVirt
		if err := list.Insert(fbVirt, cfg.Framebuffer.Physical, fbPages, mem.FirmwarePermanent); err != nil {
			return nil, err
		}
		nextVirt += uintptr(fbPages) * uintptr(pageSize)

		block.LoaderInformation.Framebuffer = FramebufferInfo{
			Initialized: true,
			Protocol:    cfg.Framebuffer.Protocol,
			Address:     fbVirt,
			BufferSize:  cfg.Framebuffer.BufferSize,
			Width:       cfg.Framebuffer.Width,
			Height:      cfg.Framebuffer.Height,
			Pitch:       cfg.Framebuffer.Pitch,
			Bpp:         cfg.Framebuffer.Bpp,
			PixelFormat: cfg.Framebuffer.PixelFormat,
		}
	}

	if !cpu.HasApic() {
		return nil, errors.ErrUnsupported
	}
	apicPhys := cpu.ApicBase()
	if err := list.Insert(ApicVirtualBase, apicPhys, 1, mem.FirmwarePermanent); err != nil {
		return nil, err
	}

	pm, err := pagemap.BuildPageMap(cfg.Level, pageSize, list, SelfMapBase, alloc)
	if err != nil {
		return nil, err
	}

	var highest mem.PFN
	list.Each(func(m *mapping.Mapping) {
		end := mem.PFNFromAddress(m.Physical) + mem.PFN(m.PageCount) - 1
		if end > highest {
			highest = end
		}
	})
	block.MemoryDescriptors = list.Descriptors()
	block.HighestPage = highest
	block.SelfMapBase = SelfMapBase

	return &Result{
		List:          list,
		PageMap:       pm,
		InitBlock:     block,
		InitBlockVA:   initVirt,
		KernelEntryVA: kernelVirt + uintptr(image.EntryPoint),
	}, nil
}

// Execute runs the full kernel handoff sequence: Build, then exit
// boot services, switch to the new page map, and transfer control to
// the kernel entry point. It only returns on failure, or if
// cfg.EnterKernel improperly returns, in which case it reports
// LoadError as spec.md's error taxonomy requires.
func Execute(cfg Config) *errors.Error {
	result, err := Build(cfg)
	if err != nil {
		return err
	}

	// The map key from Build's own GetMemoryMap call is stale by now:
	// every allocation since then bumped the firmware's map generation.
	// Fetch one last time right before exiting boot services, and
	// retry the whole fetch-and-exit sequence if the key goes stale
	// again in the gap between the fetch and the call.
	var exitErr *errors.Error
	for attempt := 0; attempt < maxExitBootServicesRetries; attempt++ {
		memMap, err := cfg.Firmware.GetMemoryMap()
		if err != nil {
			return err
		}

		exitErr = cfg.Firmware.ExitBootServices(memMap.MapKey)
		if exitErr == nil {
			break
		}
	}
	if exitErr != nil {
		return exitErr
	}

	cpu.SwitchPDT(result.PageMap.Root)
	cfg.EnterKernel(result.InitBlockVA)

	return errors.ErrLoadError
}
