package tty

import (
	"bytes"
	"io"
	"termos/device/video/console"
	"termos/kernel/sync"
)

const (
	// LineSize is the capacity of the line being edited, newline
	// included.
	LineSize = 128

	// MaxQueuedLines bounds the number of completed lines waiting to be
	// read.
	MaxQueuedLines = 16

	keyInterrupt = 0x03
	keyClear     = 0x0c
	keyBackspace = 0x08
	keyDelete    = 0x7f
	keyTab       = '\t'
)

// Completer returns the text that completes word, or "" when there is no
// completion.
type Completer func(word string) string

// Terminal couples a Vt with the keyboard input of one terminal. Output is
// rendered on the console and mirrored to an optional host writer.
type Terminal struct {
	Vt

	id       int
	host     io.Writer
	complete Completer

	lock    sync.Spinlock
	partial []byte
	lines   [][]byte
}

// NewTerminal returns terminal id rendering to cons. Output is mirrored to
// host when it is not nil.
func NewTerminal(id int, cons console.Console, host io.Writer) *Terminal {
	t := &Terminal{id: id, host: host}
	t.AttachTo(cons)
	return t
}

// ID returns the terminal number.
func (t *Terminal) ID() int {
	return t.id
}

// SetHostWriter replaces the writer that receives a copy of the output.
func (t *Terminal) SetHostWriter(w io.Writer) {
	t.host = w
}

// SetCompleter installs the function used to complete the last word of
// the line being edited when Tab is pressed.
func (t *Terminal) SetCompleter(fn Completer) {
	t.complete = fn
}

// Write renders data on the terminal. NUL bytes are skipped.
func (t *Terminal) Write(data []byte) (int, error) {
	t.Vt.Write(data)
	if t.host != nil {
		out := make([]byte, 0, len(data))
		for _, b := range data {
			if b != 0 {
				out = append(out, b)
			}
		}
		t.host.Write(out)
	}
	return len(data), nil
}

// Feed processes keyboard input. Printable characters are echoed and
// appended to the line being edited; Tab completes its last word and a
// newline completes the line and queues it for ReadLine. Feed returns true
// if the input contained the interrupt key (Ctrl+C).
func (t *Terminal) Feed(keys []byte) bool {
	var interrupted bool
	for _, k := range keys {
		switch k {
		case keyInterrupt:
			interrupted = true
		case keyClear:
			t.Clear()
			t.Write(t.currentLine())
		case keyBackspace, keyDelete:
			if t.dropLast() {
				t.Write([]byte{'\b'})
			}
		case keyTab:
			t.completeWord()
		case '\r', '\n':
			t.Write([]byte{'\n'})
			t.completeLine()
		default:
			if t.append(k) {
				t.Write([]byte{k})
			}
		}
	}
	return interrupted
}

// ReadLine copies the oldest completed line (with its newline) into buf.
// Bytes that do not fit are discarded. The second return value is false if
// no complete line is available.
func (t *Terminal) ReadLine(buf []byte) (int, bool) {
	t.lock.Acquire()
	defer t.lock.Release()

	if len(t.lines) == 0 {
		return 0, false
	}

	line := t.lines[0]
	t.lines = t.lines[1:]
	return copy(buf, line), true
}

// PeekLine is like ReadLine but leaves the line queued.
func (t *Terminal) PeekLine(buf []byte) (int, bool) {
	t.lock.Acquire()
	defer t.lock.Release()

	if len(t.lines) == 0 {
		return 0, false
	}
	return copy(buf, t.lines[0]), true
}

// DropLine discards the oldest completed line.
func (t *Terminal) DropLine() {
	t.lock.Acquire()
	if len(t.lines) > 0 {
		t.lines = t.lines[1:]
	}
	t.lock.Release()
}

// Pending returns the number of completed lines waiting to be read.
func (t *Terminal) Pending() int {
	t.lock.Acquire()
	defer t.lock.Release()

	return len(t.lines)
}

// FlushInput drops every queued line and the line being edited.
func (t *Terminal) FlushInput() {
	t.lock.Acquire()
	t.lines = nil
	t.partial = t.partial[:0]
	t.lock.Release()
}

func (t *Terminal) completeWord() {
	if t.complete == nil {
		return
	}

	line := t.currentLine()
	word := line[bytes.LastIndexByte(line, ' ')+1:]
	for _, k := range []byte(t.complete(string(word))) {
		if !t.append(k) {
			return
		}
		t.Write([]byte{k})
	}
}

func (t *Terminal) append(k byte) bool {
	t.lock.Acquire()
	defer t.lock.Release()

	if len(t.partial) >= LineSize-1 {
		return false
	}
	t.partial = append(t.partial, k)
	return true
}

func (t *Terminal) dropLast() bool {
	t.lock.Acquire()
	defer t.lock.Release()

	if len(t.partial) == 0 {
		return false
	}
	t.partial = t.partial[:len(t.partial)-1]
	return true
}

func (t *Terminal) currentLine() []byte {
	t.lock.Acquire()
	defer t.lock.Release()

	return append([]byte(nil), t.partial...)
}

func (t *Terminal) completeLine() {
	t.lock.Acquire()
	defer t.lock.Release()

	line := append(append([]byte(nil), t.partial...), '\n')
	t.partial = t.partial[:0]
	if len(t.lines) < MaxQueuedLines {
		t.lines = append(t.lines, line)
	}
}
