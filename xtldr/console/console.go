// Package console implements the boot loader's text-mode framebuffer
// console: a fixed-size grid of character cells written directly into
// a linear framebuffer, the same layout the firmware's graphics
// protocol hands the loader before the kernel ever runs.
package console

import (
	"reflect"
	"sync"
	"unsafe"
)

// Attr is a foreground/background color pair packed into the high
// byte of a character cell, VGA-text-mode style.
type Attr uint16

const (
	Black Attr = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	Grey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	LightBrown
	White
)

// ScrollDir is a scroll direction for Console.Scroll.
type ScrollDir uint8

const (
	Up ScrollDir = iota
	Down
)

// Console is implemented by objects that can function as a physical
// text-mode console.
type Console interface {
	Dimensions() (uint16, uint16)
	Clear(x, y, width, height uint16)
	Scroll(dir ScrollDir, lines uint16)
	Write(ch byte, attr Attr, x, y uint16)
}

const (
	clearColor = Black
	clearChar  = byte(' ')
)

// Framebuffer implements Console over a linear framebuffer that has
// already been mapped into the loader's address space. Unlike the
// kernel's own text console, the loader may tear this down and rebuild
// it against a new virtual address whenever handoff remaps the
// framebuffer, so every access is guarded by a mutex.
type Framebuffer struct {
	sync.Mutex

	width  uint16
	height uint16

	fb []uint16
}

// Attach points the console at the character grid living at virtAddr,
// replacing whatever it was previously attached to.
func (cons *Framebuffer) Attach(virtAddr uintptr, width, height uint16) {
	cons.Lock()
	defer cons.Unlock()

	cons.width = width
	cons.height = height
	cons.fb = *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(width) * int(height),
		Cap:  int(width) * int(height),
		Data: virtAddr,
	}))
}

// Dimensions returns the console width and height in characters.
func (cons *Framebuffer) Dimensions() (uint16, uint16) {
	cons.Lock()
	defer cons.Unlock()
	return cons.width, cons.height
}

// Clear clears the specified rectangular region.
func (cons *Framebuffer) Clear(x, y, width, height uint16) {
	cons.Lock()
	defer cons.Unlock()

	var (
		attr                 = uint16((clearColor << 4) | clearColor)
		clr                  = attr | uint16(clearChar)
		rowOffset, colOffset uint16
	)

	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}
	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	rowOffset = (y * cons.width) + x
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// Scroll moves the specified number of lines in the given direction.
func (cons *Framebuffer) Scroll(dir ScrollDir, lines uint16) {
	cons.Lock()
	defer cons.Unlock()

	if lines == 0 || lines > cons.height {
		return
	}

	var i uint16
	offset := lines * cons.width

	switch dir {
	case Up:
		for ; i < (cons.height-lines)*cons.width; i++ {
			cons.fb[i] = cons.fb[i+offset]
		}
	case Down:
		for i = cons.height*cons.width - 1; i >= lines*cons.width; i-- {
			cons.fb[i] = cons.fb[i-offset]
		}
	}
}

// Write writes a single character cell at the given position.
func (cons *Framebuffer) Write(ch byte, attr Attr, x, y uint16) {
	cons.Lock()
	defer cons.Unlock()

	if x >= cons.width || y >= cons.height {
		return
	}
	cons.fb[(y*cons.width)+x] = (uint16(attr) << 8) | uint16(ch)
}
