package usr

import (
	"runtime"
	"termos/kernel"
	"termos/kernel/gate"
	"termos/kernel/signal"
)

const (
	// ExceptionStatus is the halt status of a program whose code
	// panicked.
	ExceptionStatus = 255

	// trapFailed is the EAX value seen by calls made after the thread
	// was terminated.
	trapFailed = ^uint32(0)
)

// Memory gives a program access to the user page of its process. Accesses
// go through the page tables with user privileges.
type Memory interface {
	UserRead(addr uint32, p []byte) *kernel.Error
	UserWrite(addr uint32, p []byte) *kernel.Error
}

// TrapKind describes why a thread stopped running.
type TrapKind uint8

const (
	// TrapSyscall is an int 0x80 with the call number and arguments in
	// the trap.
	TrapSyscall TrapKind = iota

	// TrapHandlerDone is a ret out of a signal handler.
	TrapHandlerDone

	// TrapFault is a CPU exception raised by program code.
	TrapFault
)

// Trap is the event that hands control from a thread back to the machine.
type Trap struct {
	Kind TrapKind

	Num, EBX, ECX, EDX uint32

	Vector gate.InterruptNumber
	Addr   uint32
}

type resumeKind uint8

const (
	resumeReturn resumeKind = iota
	resumeHandler
	resumeTerminate
)

type resume struct {
	kind  resumeKind
	value uint32
	addr  uint32
}

// Handler is a signal handler.
type Handler func(env *Env, n signal.Number)

// Thread runs one instance of a program. Program code only runs while the
// machine waits for the thread's next trap so a thread and the machine
// never run at the same time.
type Thread struct {
	name       string
	pid        int
	generation uint64

	prog Program
	env  *Env

	handlers map[uint32]Handler
	nesting  int

	started     bool
	terminating bool
	resumeCh    chan resume
	trapCh   chan Trap
	exited   chan struct{}
}

// NewThread prepares a thread that runs prog for the process instance
// identified by pid and generation.
func NewThread(name string, prog Program, mem Memory, pid int, generation uint64) *Thread {
	th := &Thread{
		name:       name,
		pid:        pid,
		generation: generation,
		prog:       prog,
		handlers:   make(map[uint32]Handler),
		resumeCh:   make(chan resume),
		trapCh:     make(chan Trap),
		exited:     make(chan struct{}),
	}
	th.env = newEnv(th, mem, 0)
	return th
}

// Name returns the name of the program the thread runs.
func (th *Thread) Name() string { return th.name }

// PID returns the pid of the process the thread belongs to.
func (th *Thread) PID() int { return th.pid }

// Generation returns the generation of the process instance the thread
// belongs to.
func (th *Thread) Generation() uint64 { return th.generation }

// Start runs the program until its first trap.
func (th *Thread) Start() Trap {
	th.started = true
	go th.run()
	return <-th.trapCh
}

// Return completes the pending system call with eax and runs the program
// until its next trap.
func (th *Thread) Return(eax uint32) Trap {
	th.resumeCh <- resume{kind: resumeReturn, value: eax}
	return <-th.trapCh
}

// HandlerAt reports whether the program installed a handler at addr.
func (th *Thread) HandlerAt(addr uint32) bool {
	_, ok := th.handlers[addr]
	return ok
}

// RunHandler runs the handler installed at addr for signal n until its
// next trap.
func (th *Thread) RunHandler(addr uint32, n signal.Number) Trap {
	th.resumeCh <- resume{kind: resumeHandler, value: uint32(n), addr: addr}
	return <-th.trapCh
}

// Terminate discards the thread. It must not be resumed afterwards.
func (th *Thread) Terminate() {
	if !th.started {
		return
	}
	th.resumeCh <- resume{kind: resumeTerminate}
	<-th.exited
}

func (th *Thread) run() {
	defer close(th.exited)

	status := th.main()
	for {
		th.env.Halt(status)
	}
}

// main runs the program. A panic in program code is reported to the kernel
// as a general protection fault.
func (th *Thread) main() (status uint8) {
	defer func() {
		if r := recover(); r != nil {
			th.trap(Trap{Kind: TrapFault, Vector: gate.GPFException})
			status = ExceptionStatus
		}
	}()
	return th.prog(th.env)
}

// trap hands control to the machine and waits until the pending trap
// completes. Signal handlers requested in between run on this goroutine.
// Once the thread is terminating nobody receives traps any more and every
// call fails without leaving the goroutine.
func (th *Thread) trap(t Trap) uint32 {
	if th.terminating {
		return trapFailed
	}

	th.trapCh <- t
	for {
		r := <-th.resumeCh
		switch r.kind {
		case resumeReturn:
			return r.value
		case resumeHandler:
			th.runHandler(r.addr, signal.Number(r.value))
			th.trapCh <- Trap{Kind: TrapHandlerDone}
		case resumeTerminate:
			// Deferred program code still runs during Goexit.
			th.terminating = true
			runtime.Goexit()
		}
	}
}

// runHandler runs a handler with its own scratch area so it does not
// clobber the buffers of the system call it interrupted.
func (th *Thread) runHandler(addr uint32, n signal.Number) {
	h := th.handlers[addr]
	if h == nil {
		return
	}

	th.nesting++
	defer func() { th.nesting-- }()
	h(newEnv(th, th.env.mem, th.nesting), n)
}
