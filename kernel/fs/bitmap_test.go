package fs

import "testing"

func TestBitmap(t *testing.T) {
	b := NewBitmap(10)

	if b.Len() != 10 || b.Free() != 10 || b.Used() != 0 {
		t.Fatalf("unexpected initial state: len %d free %d used %d", b.Len(), b.Free(), b.Used())
	}

	for _, pos := range []int{0, 3, 9, 3} {
		if err := b.Set(pos); err != nil {
			t.Fatal(err)
		}
	}
	if exp := 3; b.Used() != exp {
		t.Fatalf("expected repeated Set to be counted once; used = %d", b.Used())
	}
	if !b.Get(9) || b.Get(8) {
		t.Fatal("unexpected bit values")
	}
	if exp := 1; b.FirstFree() != exp {
		t.Fatalf("expected first free position %d; got %d", exp, b.FirstFree())
	}

	if err := b.Set(10); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange; got %v", err)
	}
	if err := b.Clear(-1); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange; got %v", err)
	}
	if !b.Get(10) {
		t.Fatal("expected out of range positions to read as used")
	}

	b.Clear(0)
	b.Clear(0)
	if exp := 2; b.Used() != exp {
		t.Fatalf("expected used = %d; got %d", exp, b.Used())
	}

	for i := 0; i < 10; i++ {
		b.Set(i)
	}
	if b.FirstFree() != -1 {
		t.Fatal("expected a full bitmap to report -1")
	}

	b.Reset()
	if b.Used() != 0 || b.Get(5) {
		t.Fatal("expected Reset to clear all bits")
	}
}
