// Package hal owns the kernel's own early console, re-initialized once
// the kernel takes over from the boot loader's firmware-framebuffer
// console: the loader's xtldr/console.Framebuffer only lives until
// ExitBootServices, so the kernel attaches its own instance to the
// same physical glyph grid the loader reported in the init block.
package hal

import (
	"github.com/xt-sys/exectos/kernel/driver/tty"
	"github.com/xt-sys/exectos/kernel/driver/video/console"
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal attaches the kernel's terminal to the framebuffer
// already set up by the loader, given its width and height in
// characters and its virtual address in the kernel's own address
// space.
func InitTerminal(width, height uint16, fbVirtAddr uintptr) {
	egaConsole.Init(width, height, fbVirtAddr)
	ActiveTerminal.AttachTo(egaConsole)
}
