package fs

import "termos/kernel"

// Bitmap tracks the allocation state of a fixed number of inodes or data
// blocks together with a count of the set bits.
type Bitmap struct {
	bits []byte
	size int
	used int
}

// NewBitmap returns a cleared bitmap able to track size entries.
func NewBitmap(size int) *Bitmap {
	return &Bitmap{
		bits: make([]byte, (size+7)/8),
		size: size,
	}
}

// Len returns the number of tracked entries.
func (b *Bitmap) Len() int { return b.size }

// Used returns the number of set bits.
func (b *Bitmap) Used() int { return b.used }

// Free returns the number of clear bits.
func (b *Bitmap) Free() int { return b.size - b.used }

// Get returns true if the bit at position is set. Positions outside the
// bitmap are reported as set so they are never handed out.
func (b *Bitmap) Get(position int) bool {
	if position < 0 || position >= b.size {
		return true
	}
	return b.bits[position/8]&(1<<(position%8)) != 0
}

// Set marks position as used.
func (b *Bitmap) Set(position int) *kernel.Error {
	if position < 0 || position >= b.size {
		return ErrOutOfRange
	}
	if !b.Get(position) {
		b.bits[position/8] |= 1 << (position % 8)
		b.used++
	}
	return nil
}

// Clear marks position as free.
func (b *Bitmap) Clear(position int) *kernel.Error {
	if position < 0 || position >= b.size {
		return ErrOutOfRange
	}
	if b.Get(position) {
		b.bits[position/8] &^= 1 << (position % 8)
		b.used--
	}
	return nil
}

// FirstFree returns the lowest clear position or -1 if the bitmap is full.
func (b *Bitmap) FirstFree() int {
	for i := 0; i < b.size; i++ {
		if !b.Get(i) {
			return i
		}
	}
	return -1
}

// Reset clears every bit.
func (b *Bitmap) Reset() {
	for i := range b.bits {
		b.bits[i] = 0
	}
	b.used = 0
}
