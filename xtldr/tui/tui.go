// Package tui renders the boot loader's fatal-error dialog: a bordered
// text box reporting a propagated *errors.Error once the console is
// attached, adapted from the teacher's terminal-over-console pair.
package tui

import (
	"github.com/xt-sys/exectos/kernel/errors"
	"github.com/xt-sys/exectos/xtldr/console"
)

const (
	defaultFg = console.LightGrey
	defaultBg = console.Black
	errorFg   = console.White
	errorBg   = console.Red
	tabWidth  = 4
)

// Terminal is a simple line-oriented terminal that writes through a
// console.Console. Unlike the kernel's own terminal, it is attached to
// an interface rather than a concrete console type: the loader already
// has a working allocator by the time it needs one, so there is no
// reason to give up dynamic dispatch here.
type Terminal struct {
	cons console.Console

	width  uint16
	height uint16

	curX    uint16
	curY    uint16
	curAttr console.Attr
}

// AttachTo links the terminal with cons and resets the cursor to the
// top-left corner with the default color attribute.
func (t *Terminal) AttachTo(cons console.Console) {
	t.cons = cons
	t.width, t.height = cons.Dimensions()
	t.curX, t.curY = 0, 0
	t.curAttr = makeAttr(defaultFg, defaultBg)
}

// Clear clears the whole terminal.
func (t *Terminal) Clear() {
	t.cons.Clear(0, 0, t.width, t.height)
}

// Position returns the current cursor position.
func (t *Terminal) Position() (uint16, uint16) {
	return t.curX, t.curY
}

// SetPosition moves the cursor to (x, y), clamped to the terminal
// bounds.
func (t *Terminal) SetPosition(x, y uint16) {
	if x >= t.width {
		x = t.width - 1
	}
	if y >= t.height {
		y = t.height - 1
	}
	t.curX, t.curY = x, y
}

// SetAttr changes the color attribute used for subsequent writes.
func (t *Terminal) SetAttr(fg, bg console.Attr) {
	t.curAttr = makeAttr(fg, bg)
}

// Write implements io.Writer.
func (t *Terminal) Write(data []byte) (int, error) {
	for _, b := range data {
		t.WriteByte(b)
	}
	return len(data), nil
}

// WriteByte implements io.ByteWriter.
func (t *Terminal) WriteByte(b byte) error {
	switch b {
	case '\r':
		t.cr()
	case '\n':
		t.cr()
		t.lf()
	case '\t':
		for i := 0; i < tabWidth; i++ {
			t.putAndAdvance(' ')
		}
	default:
		t.putAndAdvance(b)
	}
	return nil
}

func (t *Terminal) putAndAdvance(b byte) {
	t.cons.Write(b, t.curAttr, t.curX, t.curY)
	t.curX++
	if t.curX == t.width {
		t.cr()
		t.lf()
	}
}

func (t *Terminal) cr() {
	t.curX = 0
}

func (t *Terminal) lf() {
	if t.curY+1 < t.height {
		t.curY++
		return
	}
	t.cons.Scroll(console.Up, 1)
	t.cons.Clear(0, t.height-1, t.width, 1)
}

func makeAttr(fg, bg console.Attr) console.Attr {
	return (bg << 4) | (fg & 0xF)
}

// ShowError draws a bordered dialog reporting err and halts the
// terminal's cursor on the line below it. It is the last thing the
// loader does before a fatal error reaches the user: there is no
// return path once a kernel image fails to load or a mapping request
// collides with reserved memory.
func ShowError(cons console.Console, err *errors.Error) {
	var t Terminal
	t.AttachTo(cons)
	t.Clear()

	width, height := cons.Dimensions()
	boxWidth := width - 4
	if boxWidth > 60 {
		boxWidth = 60
	}
	top := height/2 - 3
	left := (width - boxWidth) / 2

	t.SetAttr(errorFg, errorBg)
	drawBox(&t, left, top, boxWidth, 6)

	t.SetPosition(left+2, top+1)
	writeLine(&t, "LOADER ERROR")

	t.SetPosition(left+2, top+2)
	writeLine(&t, "module: "+err.Module)

	t.SetPosition(left+2, top+3)
	writeLine(&t, "message: "+err.Message)

	t.SetAttr(defaultFg, defaultBg)
}

func writeLine(t *Terminal, s string) {
	x, y := t.Position()
	for _, b := range []byte(s) {
		t.cons.Write(b, t.curAttr, x, y)
		x++
	}
}

func drawBox(t *Terminal, x, y, w, h uint16) {
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			ch := byte(' ')
			switch {
			case row == y || row == y+h-1:
				ch = '-'
			case col == x || col == x+w-1:
				ch = '|'
			}
			t.cons.Write(ch, t.curAttr, col, row)
		}
	}
}
