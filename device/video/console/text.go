package console

import (
	"encoding/binary"
	"termos/kernel"
)

const (
	clearColor = Black
	clearChar  = byte(' ')
)

// Framebuffer provides access to the memory holding the console cells. The
// addresses are kernel virtual addresses; the page table manager decides
// which physical buffer they land in.
type Framebuffer interface {
	KernelRead(virtAddr uint32, p []byte) *kernel.Error
	KernelWrite(virtAddr uint32, p []byte) *kernel.Error
}

// Text implements an EGA-compatible text console. Each cell is a character
// byte followed by an attribute byte.
type Text struct {
	width  uint16
	height uint16

	fb   Framebuffer
	base uint32
}

// Init sets up the console to render into the width x height cell buffer
// that starts at base.
func (cons *Text) Init(width, height uint16, fb Framebuffer, base uint32) {
	cons.width = width
	cons.height = height
	cons.fb = fb
	cons.base = base
}

// Dimensions returns the console width and height in characters.
func (cons *Text) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Clear clears the specified rectangular region
func (cons *Text) Clear(x, y, width, height uint16) {
	// clip rectangle
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

	if width == 0 {
		return
	}

	row := make([]byte, 2*int(width))
	for i := 0; i < len(row); i += 2 {
		row[i] = clearChar
		row[i+1] = byte(clearColor<<4 | clearColor)
	}

	for ; height > 0; height, y = height-1, y+1 {
		_ = cons.fb.KernelWrite(cons.offset(x, y), row)
	}
}

// Scroll a particular number of lines to the specified direction.
func (cons *Text) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	buf := make([]byte, 2*int(cons.width)*int(cons.height))
	if cons.fb.KernelRead(cons.base, buf) != nil {
		return
	}

	offset := 2 * int(lines) * int(cons.width)
	switch dir {
	case Up:
		copy(buf, buf[offset:])
	case Down:
		copy(buf[offset:], buf)
	}
	_ = cons.fb.KernelWrite(cons.base, buf)
}

// Write a char to the specified location.
func (cons *Text) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	var cell [2]byte
	binary.LittleEndian.PutUint16(cell[:], uint16(attr)<<8|uint16(ch))
	_ = cons.fb.KernelWrite(cons.offset(x, y), cell[:])
}

// Read returns the char and attribute at the specified location.
func (cons *Text) Read(x, y uint16) (byte, Attr) {
	if x >= cons.width || y >= cons.height {
		return 0, 0
	}

	var cell [2]byte
	if cons.fb.KernelRead(cons.offset(x, y), cell[:]) != nil {
		return 0, 0
	}
	return cell[0], Attr(cell[1])
}

func (cons *Text) offset(x, y uint16) uint32 {
	return cons.base + 2*(uint32(y)*uint32(cons.width)+uint32(x))
}
