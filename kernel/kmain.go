package kernel

import (
	"github.com/xt-sys/exectos/kernel/errors"
	"github.com/xt-sys/exectos/kernel/hal"
	"github.com/xt-sys/exectos/kernel/kfmt/early"
	"github.com/xt-sys/exectos/kernel/mem/arch"
	"github.com/xt-sys/exectos/kernel/mem/pfn"
	"github.com/xt-sys/exectos/xtldr/mm/handoff"
)

// pfnDatabaseBase is the virtual address the kernel reserves for its
// PFN database window, distinct from the loader's self-map base.
const pfnDatabaseBase uintptr = 0xFFFF_F700_0000_0000

// numPfnColors is the number of page-color buckets the free lists are
// split into; ExectOS does not yet do anything color-aware with them,
// so a single bucket keeps InitializeDatabase's bookkeeping simple.
const numPfnColors = 1

var errKmainReturned = &errors.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is the kernel's entry point, invoked once the boot loader has
// exited boot services and switched to the page map handoff.Execute
// built. ib is the initialization block the loader filled in; Kmain
// is not expected to return.
func Kmain(ib *handoff.InitBlock) {
	fb := ib.LoaderInformation.Framebuffer
	if fb.Initialized {
		hal.InitTerminal(uint16(fb.Width), uint16(fb.Height), fb.Address)
		hal.ActiveTerminal.Clear()
	}

	early.Printf("starting exectos kernel, protocol version %d\n", ib.ProtocolVersion)

	info := arch.NewAmd64(ib.SelfMapBase)
	xlate := pfn.AddressTranslator{Info: info, KernelSegBase: handoff.Kseg0Base}

	_, err := pfn.InitializeDatabase(pfn.Config{
		Info:            info,
		Descriptors:     ib.MemoryDescriptors,
		HighestPage:     ib.HighestPage,
		NumColors:       numPfnColors,
		Translator:      xlate,
		PfnDatabaseBase: pfnDatabaseBase,
	})
	if err != nil {
		Panic(err)
	}

	Panic(errKmainReturned)
}
