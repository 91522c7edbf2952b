// Command xtoskrnl is the kernel's Go entry point. It is the target
// EnterKernel jumps to once the boot loader has switched page tables
// and exited boot services; initBlockVA arrives as a bare virtual
// address because that is the only thing the handoff ABI can carry
// across a control transfer that is itself architecture-specific
// assembly, not a Go function call.
package main

import (
	"unsafe"

	"github.com/xt-sys/exectos/kernel"
	"github.com/xt-sys/exectos/xtldr/mm/handoff"
)

// initBlockAddr is set by the trampoline that jumps here; it exists as
// a package-level variable, rather than a parameter threaded through
// from some assembly caller, to prevent the compiler from treating
// KernelEntry as dead code and eliminating it.
var initBlockAddr uintptr

func main() {
	KernelEntry(initBlockAddr)
}

// KernelEntry recovers the initialization block from its virtual
// address and hands it to kernel.Kmain. It does not return.
func KernelEntry(initBlockVA uintptr) {
	ib := (*handoff.InitBlock)(unsafe.Pointer(initBlockVA))
	kernel.Kmain(ib)
}
