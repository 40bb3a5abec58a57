package usr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"termos/kernel/gate"
	"termos/kernel/proc"
	"termos/kernel/signal"
	"termos/kernel/sys"
)

const (
	// ScratchAddr is the start of the user memory that system call
	// wrappers stage their buffers in.
	ScratchAddr = uint32(0x08300000)

	// ScratchSize is the size of the scratch area of a program. Signal
	// handlers get a smaller area each, placed after it.
	ScratchSize = uint32(0x80000)

	handlerScratchSize = uint32(0x10000)
)

// Env is the interface between program code and the kernel. Every method
// that takes or returns data stages it in user memory and issues the
// matching system call.
type Env struct {
	th    *Thread
	mem   Memory
	depth int

	base, size uint32
}

func newEnv(th *Thread, mem Memory, depth int) *Env {
	e := &Env{th: th, mem: mem, depth: depth, base: ScratchAddr, size: ScratchSize}
	if depth > 0 {
		if depth > signal.Count {
			depth = signal.Count
		}
		e.base = ScratchAddr + ScratchSize + uint32(depth-1)*handlerScratchSize
		e.size = handlerScratchSize
	}
	return e
}

// Program returns the name of the running program.
func (e *Env) Program() string {
	return e.th.name
}

// InHandler reports whether e belongs to a signal handler.
func (e *Env) InHandler() bool {
	return e.depth > 0
}

// Syscall issues system call num with the given arguments and returns EAX.
func (e *Env) Syscall(num, ebx, ecx, edx uint32) int32 {
	return int32(e.th.trap(Trap{Kind: TrapSyscall, Num: num, EBX: ebx, ECX: ecx, EDX: edx}))
}

// Fault raises CPU exception vector as if the program's code caused it.
// Fault returns if a handler dealt with the resulting signal.
func (e *Env) Fault(vector gate.InterruptNumber) {
	e.th.trap(Trap{Kind: TrapFault, Vector: vector})
}

// Peek reads user memory at addr. An unmapped address raises a page fault.
func (e *Env) Peek(addr uint32, p []byte) bool {
	if e.th.terminating {
		return false
	}
	if err := e.mem.UserRead(addr, p); err != nil {
		e.th.trap(Trap{Kind: TrapFault, Vector: gate.PageFaultException, Addr: addr})
		return false
	}
	return true
}

// Poke writes user memory at addr. An unmapped address raises a page
// fault.
func (e *Env) Poke(addr uint32, p []byte) bool {
	if e.th.terminating {
		return false
	}
	if err := e.mem.UserWrite(addr, p); err != nil {
		e.th.trap(Trap{Kind: TrapFault, Vector: gate.PageFaultException, Addr: addr})
		return false
	}
	return true
}

// stage copies p to the scratch area and returns its address.
func (e *Env) stage(p []byte) (uint32, bool) {
	if uint32(len(p)) > e.size {
		return 0, false
	}
	return e.base, e.Poke(e.base, p)
}

func (e *Env) stageString(s string) (uint32, bool) {
	return e.stage(append([]byte(s), 0))
}

// Halt terminates the program with status.
func (e *Env) Halt(status uint8) int32 {
	return e.Syscall(sys.SysHalt, uint32(status), 0, 0)
}

// Execute runs the command cmd and returns its halt status, -1 if it
// could not be started or 256 if it was killed by an exception.
func (e *Env) Execute(cmd string) int32 {
	addr, ok := e.stageString(cmd)
	if !ok {
		return -1
	}
	return e.Syscall(sys.SysExecute, addr, 0, 0)
}

// Read reads from fd into buf.
func (e *Env) Read(fd int32, buf []byte) int32 {
	if uint32(len(buf)) > e.size {
		buf = buf[:e.size]
	}
	n := e.Syscall(sys.SysRead, uint32(fd), e.base, uint32(len(buf)))
	if n > 0 && !e.Peek(e.base, buf[:n]) {
		return -1
	}
	return n
}

// Write writes p to fd.
func (e *Env) Write(fd int32, p []byte) int32 {
	addr, ok := e.stage(p)
	if !ok {
		return -1
	}
	return e.Syscall(sys.SysWrite, uint32(fd), addr, uint32(len(p)))
}

// Open opens the file name.
func (e *Env) Open(name string) int32 {
	addr, ok := e.stageString(name)
	if !ok {
		return -1
	}
	return e.Syscall(sys.SysOpen, addr, 0, 0)
}

// Close closes fd.
func (e *Env) Close(fd int32) int32 {
	return e.Syscall(sys.SysClose, uint32(fd), 0, 0)
}

// Getargs returns the argument string of the program. n is the size of
// the buffer handed to the kernel.
func (e *Env) Getargs(n int) (string, int32) {
	if n < 0 || uint32(n) > e.size {
		return "", -1
	}
	if ret := e.Syscall(sys.SysGetargs, e.base, uint32(n), 0); ret != 0 {
		return "", ret
	}

	buf := make([]byte, n)
	if !e.Peek(e.base, buf) {
		return "", -1
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), 0
}

// Args returns the argument string or an empty string.
func (e *Env) Args() string {
	args, _ := e.Getargs(proc.ArgsSize)
	return args
}

// Vidmap maps the video memory of the program's terminal and returns its
// address.
func (e *Env) Vidmap() (uint32, int32) {
	if ret := e.Syscall(sys.SysVidmap, e.base, 0, 0); ret != 0 {
		return 0, ret
	}
	var raw [4]byte
	if !e.Peek(e.base, raw[:]) {
		return 0, -1
	}
	return binary.LittleEndian.Uint32(raw[:]), 0
}

// SetHandler installs h as the handler of n. A nil handler restores the
// default action.
func (e *Env) SetHandler(n signal.Number, h Handler) int32 {
	var addr uint32
	if h != nil {
		addr = HandlerAddr(n)
	}
	ret := e.Syscall(sys.SysSetHandler, uint32(n), addr, 0)
	if ret == 0 {
		if h != nil {
			e.th.handlers[addr] = h
		} else {
			delete(e.th.handlers, HandlerAddr(n))
		}
	}
	return ret
}

// Malloc asks the kernel for n bytes of memory.
func (e *Env) Malloc(n uint32) int32 {
	return e.Syscall(sys.SysMalloc, n, 0, 0)
}

// Free releases memory obtained from Malloc.
func (e *Env) Free(addr uint32) int32 {
	return e.Syscall(sys.SysFree, addr, 0, 0)
}

// Create adds an empty file called name to the directory.
func (e *Env) Create(name string) int32 {
	fd := e.Open(".")
	if fd < 0 {
		return -1
	}
	defer e.Close(fd)
	return e.Write(fd, append([]byte(name), 0))
}

// Remove deletes the file called name.
func (e *Env) Remove(name string) int32 {
	fd := e.Open(".")
	if fd < 0 {
		return -1
	}
	defer e.Close(fd)

	addr, ok := e.stageString(name)
	if !ok {
		return -1
	}
	removeLen := int32(sys.RemoveEntryLength)
	return e.Syscall(sys.SysWrite, uint32(fd), addr, uint32(removeLen))
}

// Puts writes s to the terminal.
func (e *Env) Puts(s string) int32 {
	return e.Write(proc.StdoutFD, []byte(s))
}

// Printf formats according to a format specifier and writes the result to
// the terminal.
func (e *Env) Printf(format string, args ...interface{}) int32 {
	return e.Puts(fmt.Sprintf(format, args...))
}

// ReadLine reads a line typed on the terminal without its line feed.
func (e *Env) ReadLine() (string, int32) {
	buf := make([]byte, proc.ArgsSize)
	n := e.Read(proc.StdinFD, buf)
	if n < 0 {
		return "", n
	}
	return strings.TrimRight(string(buf[:n]), "\r\n"), n
}
