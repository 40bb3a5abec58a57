package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	var (
		buf      bytes.Buffer
		expStr   = "the big brown fox jumped over the lazy dog"
		rb       ringBuffer
		expWrite = len(expStr)
	)

	t.Run("read/write", func(t *testing.T) {
		rb.wIndex, rb.rIndex = 0, 0
		n, err := rb.Write([]byte(expStr))
		if err != nil {
			t.Fatal(err)
		}
		if n != expWrite {
			t.Fatalf("expected to write %d bytes; wrote %d", expWrite, n)
		}

		buf.Reset()
		if _, err = io.Copy(&buf, &rb); err != nil {
			t.Fatal(err)
		}

		if got := buf.String(); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("write moves read pointer", func(t *testing.T) {
		rb.wIndex, rb.rIndex = ringBufferSize-1, 0
		rb.Write([]byte{'!'})

		if exp := 1; rb.rIndex != exp {
			t.Fatalf("expected write to push rIndex to %d; got %d", exp, rb.rIndex)
		}
	})

	t.Run("wrap around", func(t *testing.T) {
		rb.wIndex, rb.rIndex = ringBufferSize-4, ringBufferSize-4
		rb.Write([]byte(expStr[:10]))

		buf.Reset()
		if _, err := io.Copy(&buf, &rb); err != nil {
			t.Fatal(err)
		}

		if got := buf.String(); got != expStr[:10] {
			t.Fatalf("expected to read %q; got %q", expStr[:10], got)
		}
	})

	t.Run("empty buffer", func(t *testing.T) {
		rb.wIndex, rb.rIndex = 7, 7
		if n, err := rb.Read(make([]byte, 4)); n != 0 || err != io.EOF {
			t.Fatalf("expected Read on empty buffer to return (0, io.EOF); got (%d, %v)", n, err)
		}
	})
}
