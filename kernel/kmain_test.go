package kernel

import (
	"testing"
	"unsafe"

	"github.com/xt-sys/exectos/kernel/cpu"
	"github.com/xt-sys/exectos/kernel/mem"
	"github.com/xt-sys/exectos/xtldr/mm/handoff"
)

func TestKmainInitializesPfnDatabaseAndPanicsOnReturn(t *testing.T) {
	defer func() { cpuHaltFn = cpu.Halt }()

	var haltCalled bool
	cpuHaltFn = func() { haltCalled = true }

	fb := make([]byte, 160*25)

	ib := &handoff.InitBlock{
		ProtocolVersion: handoff.ProtocolVersion,
		LoaderInformation: handoff.LoaderInformation{
			Framebuffer: handoff.FramebufferInfo{
				Initialized: true,
				Address:     uintptr(unsafe.Pointer(&fb[0])),
				Width:       80,
				Height:      25,
			},
		},
		MemoryDescriptors: []mem.Descriptor{
			{BasePage: 0, PageCount: 256, Type: mem.Free},
		},
		HighestPage: 255,
		SelfMapBase: 0xFFFF_F680_0000_0000,
	}

	Kmain(ib)

	if !haltCalled {
		t.Fatal("expected Kmain to panic (and halt the CPU) since it must never return")
	}
}
