// Package kfmt implements the kernel's formatted output facilities. Output is
// sent to a settable sink; anything printed before a sink is attached is kept
// in a ring buffer and replayed once SetOutputSink is called.
package kfmt

import (
	"fmt"
	"io"
	"sync"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before a
	// terminal is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is an io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	sinkMu sync.Mutex
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the default target for calls to Printf.
func GetOutputSink() io.Writer {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	return outputSink
}

// Printf formats according to the fmt verbs and writes the result to the
// active output sink (or the early print buffer when no sink is attached).
func Printf(format string, args ...interface{}) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	doWrite(outputSink, format, args)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	doWrite(w, format, args)
}

func doWrite(w io.Writer, format string, args []interface{}) {
	if w == nil {
		fmt.Fprintf(&earlyPrintBuffer, format, args...)
		return
	}
	fmt.Fprintf(w, format, args...)
}
