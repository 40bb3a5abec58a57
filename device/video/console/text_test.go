package console

import (
	"termos/kernel"
	"testing"
)

type memFramebuffer struct {
	base uint32
	mem  []byte
}

func (fb *memFramebuffer) KernelRead(addr uint32, p []byte) *kernel.Error {
	copy(p, fb.mem[addr-fb.base:])
	return nil
}

func (fb *memFramebuffer) KernelWrite(addr uint32, p []byte) *kernel.Error {
	copy(fb.mem[addr-fb.base:], p)
	return nil
}

func newTestConsole() (*Text, *memFramebuffer) {
	fb := &memFramebuffer{base: 0xb8000, mem: make([]byte, 80*25*2)}
	var cons Text
	cons.Init(80, 25, fb, fb.base)
	return &cons, fb
}

func TestTextInit(t *testing.T) {
	cons, _ := newTestConsole()

	var expWidth uint16 = 80
	var expHeight uint16 = 25

	if w, h := cons.Dimensions(); w != expWidth || h != expHeight {
		t.Fatalf("expected console dimensions after Init() to be (%d, %d); got (%d, %d)", expWidth, expHeight, w, h)
	}
}

func TestTextClear(t *testing.T) {
	specs := []struct {
		// Input rect
		x, y, w, h uint16

		// Expected area to be cleared
		expX, expY, expW, expH uint16
	}{
		{
			0, 0, 500, 500,
			0, 0, 80, 25,
		},
		{
			10, 10, 11, 50,
			10, 10, 11, 15,
		},
		{
			10, 10, 110, 1,
			10, 10, 70, 1,
		},
		{
			70, 20, 20, 20,
			70, 20, 10, 5,
		},
		{
			90, 25, 20, 20,
			0, 0, 0, 0,
		},
		{
			12, 12, 5, 6,
			12, 12, 5, 6,
		},
	}

	cons, fb := newTestConsole()

nextSpec:
	for specIndex, spec := range specs {
		for i := range fb.mem {
			fb.mem[i] = 0xAD
		}

		cons.Clear(spec.x, spec.y, spec.w, spec.h)

		for y := uint16(0); y < 25; y++ {
			for x := uint16(0); x < 80; x++ {
				ch, attr := cons.Read(x, y)
				inside := x >= spec.expX && x < spec.expX+spec.expW && y >= spec.expY && y < spec.expY+spec.expH

				if inside && (ch != clearChar || attr != clearColor) {
					t.Errorf("[spec %d] expected cell (%d, %d) to be cleared; got %q/%d", specIndex, x, y, ch, attr)
					continue nextSpec
				}
				if !inside && ch != 0xAD {
					t.Errorf("[spec %d] expected cell (%d, %d) to be left untouched; got %q", specIndex, x, y, ch)
					continue nextSpec
				}
			}
		}
	}
}

func TestTextScroll(t *testing.T) {
	cons, _ := newTestConsole()
	cons.Clear(0, 0, 80, 25)

	for y := uint16(0); y < 25; y++ {
		cons.Write('a'+byte(y), White, 0, y)
	}

	cons.Scroll(Up, 1)
	if ch, _ := cons.Read(0, 0); ch != 'b' {
		t.Errorf("expected row 0 to contain 'b' after scrolling up; got %q", ch)
	}
	if ch, _ := cons.Read(0, 23); ch != 'y' {
		t.Errorf("expected row 23 to contain 'y' after scrolling up; got %q", ch)
	}

	cons.Scroll(Down, 2)
	if ch, _ := cons.Read(0, 2); ch != 'b' {
		t.Errorf("expected row 2 to contain 'b' after scrolling down; got %q", ch)
	}

	// No-ops
	cons.Scroll(Up, 0)
	cons.Scroll(Up, 26)
	if ch, _ := cons.Read(0, 2); ch != 'b' {
		t.Errorf("expected invalid scroll requests to be ignored; got %q", ch)
	}
}

func TestTextWrite(t *testing.T) {
	cons, fb := newTestConsole()

	cons.Write('!', Red, 1, 2)
	off := 2 * (2*80 + 1)
	if fb.mem[off] != '!' || fb.mem[off+1] != byte(Red) {
		t.Fatalf("expected cell to contain char '!' with attr %d; got %q/%d", Red, fb.mem[off], fb.mem[off+1])
	}

	// Out of bounds writes are ignored
	cons.Write('?', Red, 80, 0)
	cons.Write('?', Red, 0, 25)
	for i, b := range fb.mem {
		if b == '?' {
			t.Fatalf("expected out of bounds write to be ignored; found it at offset %d", i)
		}
	}

	if ch, attr := cons.Read(100, 0); ch != 0 || attr != 0 {
		t.Errorf("expected out of bounds read to return zero values; got %q/%d", ch, attr)
	}
}

func TestCellColors(t *testing.T) {
	specs := []struct {
		attr         byte
		expFG, expBG Attr
	}{
		{0x07, LightGrey, Black},
		{0x1f, White, Blue},
		{0x4e, LightBrown, Red},
		// The blink bit does not select a bright background.
		{0xf0, Black, LightGrey},
	}

	for specIndex, spec := range specs {
		fg, bg := CellColors(spec.attr)
		if fg != Palette[spec.expFG] || bg != Palette[spec.expBG] {
			t.Errorf("[spec %d] expected colors %v/%v; got %v/%v", specIndex, Palette[spec.expFG], Palette[spec.expBG], fg, bg)
		}
	}
}
