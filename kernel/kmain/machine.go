package kmain

import (
	"encoding/binary"
	"io"
	"termos/device/pic"
	"termos/device/pit"
	"termos/device/rtc"
	"termos/kernel"
	"termos/kernel/cpu"
	"termos/kernel/fs"
	"termos/kernel/gate"
	"termos/kernel/kfmt"
	"termos/kernel/mm"
	"termos/kernel/mm/vmm"
	"termos/kernel/sched"
	"termos/kernel/signal"
	"termos/kernel/sync"
	"termos/kernel/sys"
	"termos/usr"
)

const (
	opMovEAX   = 0xb8
	opInt      = 0xcd
	vecSyscall = 0x80

	fetchSize = 16
)

var (
	// ErrNoProcess is returned by operations that need a running process
	// before the first one was started.
	ErrNoProcess = &kernel.Error{Module: "kmain", Message: "no process is running"}
)

// Machine is a booted machine. Every method is a kernel entry point and
// calls are serialised. Once a kernel panic halts the CPU every method
// returns cpu.ErrHalted.
type Machine struct {
	lock sync.Spinlock

	cfg Config
	cpu *cpu.CPU
	mem *mm.PhysicalMemory
	vm  *vmm.Manager
	fs  *fs.FileSystem
	pic *pic.PIC
	pit *pit.PIT
	rtc *rtc.RTC
	k   *sys.Kernel

	regs    gate.Registers
	bursts  int
	halted  bool
	threads map[int]*usr.Thread

	log io.Writer
}

// Stats summarises a call to Run.
type Stats struct {
	// Steps is the number of bursts and timer interrupts executed.
	Steps int

	// Ticks is the number of timer interrupts delivered.
	Ticks uint64

	// Idle is set when Run stopped because every process waits for
	// keyboard input.
	Idle bool
}

// Kernel returns the kernel context.
func (m *Machine) Kernel() *sys.Kernel {
	return m.k
}

// CPU returns the simulated processor.
func (m *Machine) CPU() *cpu.CPU {
	return m.cpu
}

// FS returns the mounted file system.
func (m *Machine) FS() *fs.FileSystem {
	return m.fs
}

// Registers returns the frame the CPU returns to on the next burst.
func (m *Machine) Registers() gate.Registers {
	return m.regs
}

// Halted returns true once a kernel panic stopped the CPU.
func (m *Machine) Halted() bool {
	return m.halted
}

// Threads returns the number of program instances with live code.
func (m *Machine) Threads() int {
	m.lock.Acquire()
	defer m.lock.Release()
	return len(m.threads)
}

// Step executes one burst of the running process. When the time slice of
// the process is used up, or the process cannot make progress, the timer
// interrupt fires instead.
func (m *Machine) Step() *kernel.Error {
	return m.enter(m.step)
}

// Tick delivers a timer interrupt.
func (m *Machine) Tick() *kernel.Error {
	return m.enter(m.tick)
}

// Run steps the machine until every process waits for keyboard input or
// maxSteps steps were executed.
func (m *Machine) Run(maxSteps int) (Stats, *kernel.Error) {
	var (
		st    Stats
		start = m.k.Ticks()
		idle  int
	)

	for st.Steps < maxSteps {
		if err := m.Step(); err != nil {
			st.Ticks = m.k.Ticks() - start
			return st, err
		}
		st.Steps++

		// A full round of ticks over blocked slots means nothing can run.
		if !m.Idle() {
			idle = 0
			continue
		}
		if idle++; idle > sched.Slots {
			st.Idle = true
			break
		}
	}

	st.Ticks = m.k.Ticks() - start
	return st, nil
}

// Idle returns true if the process of every terminal slot waits for a line
// that has not been typed yet.
func (m *Machine) Idle() bool {
	m.lock.Acquire()
	defer m.lock.Release()

	rq := m.k.RunQueue()
	for slot := 0; slot < sched.Slots; slot++ {
		pid := rq.Slot(slot)
		if pid == sched.Uninitialized || m.runnable(pid) {
			return false
		}
	}
	return true
}

// Type delivers a keyboard interrupt carrying keys.
func (m *Machine) Type(keys []byte) *kernel.Error {
	return m.enter(func() { m.k.Keyboard(&m.regs, keys) })
}

// RTCInterrupt delivers one RTC interrupt.
func (m *Machine) RTCInterrupt() *kernel.Error {
	return m.enter(func() { m.k.RTCInterrupt(&m.regs) })
}

// Switch shows terminal t on the screen.
func (m *Machine) Switch(t int) *kernel.Error {
	var err *kernel.Error
	if herr := m.enter(func() { err = m.k.SwitchTerminal(t) }); herr != nil {
		return herr
	}
	return err
}

// Signal raises signal n for process pid.
func (m *Machine) Signal(pid int, n signal.Number) *kernel.Error {
	var err *kernel.Error
	if herr := m.enter(func() { err = m.k.Signal(pid, n) }); herr != nil {
		return herr
	}
	return err
}

// Fault raises exception vector at the current instruction of the running
// process.
func (m *Machine) Fault(vector gate.InterruptNumber) *kernel.Error {
	var err *kernel.Error
	herr := m.enter(func() {
		if _, ok := m.k.Current(); !ok {
			err = ErrNoProcess
			return
		}
		m.fault(vector, m.regs.EIP)
	})
	if herr != nil {
		return herr
	}
	return err
}

// Shutdown stops every program thread. The machine cannot be used
// afterwards.
func (m *Machine) Shutdown() {
	m.lock.Acquire()
	defer m.lock.Release()

	for pid, th := range m.threads {
		th.Terminate()
		delete(m.threads, pid)
	}
	m.halted = true
}

// enter runs fn as a kernel entry point.
func (m *Machine) enter(fn func()) (err *kernel.Error) {
	m.lock.Acquire()
	defer m.lock.Release()

	if m.halted {
		return cpu.ErrHalted
	}

	defer func() {
		if r := recover(); r != nil {
			if kerr, ok := r.(*kernel.Error); !ok || kerr != cpu.ErrHalted {
				panic(r)
			}
			kfmt.Fprintf(m.log, "cpu halted\n")
			m.halted = true
			for pid, th := range m.threads {
				th.Terminate()
				delete(m.threads, pid)
			}
			err = cpu.ErrHalted
		}
	}()

	fn()
	m.reap()
	return nil
}

func (m *Machine) step() {
	info, ok := m.k.Current()
	if !ok || m.bursts >= m.cfg.BurstsPerTick || !m.runnable(info.PID) {
		m.tick()
		return
	}
	m.bursts++
	m.execute(info)
}

func (m *Machine) tick() {
	m.bursts = 0
	m.k.TimerTick(&m.regs)
}

// runnable returns false for a process blocked on a terminal read while
// its terminal has no complete line.
func (m *Machine) runnable(pid int) bool {
	if !m.k.Blocked(pid) {
		return true
	}
	info, ok := m.k.Process(pid)
	if !ok {
		return false
	}
	return m.k.Terminal(info.Terminal).Pending() > 0
}

// reap stops the threads of processes that no longer exist.
func (m *Machine) reap() {
	for pid, th := range m.threads {
		if info, ok := m.k.Process(pid); ok && info.Generation == th.Generation() {
			continue
		}
		th.Terminate()
		delete(m.threads, pid)
	}
}

// execute runs the instruction at EIP. Program code resumes where it
// trapped; stub instructions are decoded.
func (m *Machine) execute(info sys.ProcessInfo) {
	regs := &m.regs

	if th := m.threads[info.PID]; th != nil && th.Generation() == info.Generation {
		switch {
		case regs.EIP == usr.ResumeAddr:
			m.handleTrap(th.Return(regs.EAX))
			return
		case th.HandlerAt(regs.EIP):
			var arg [4]byte
			if err := m.vm.UserRead(regs.ESP+4, arg[:]); err != nil {
				m.fault(gate.PageFaultException, regs.ESP+4)
				return
			}
			m.handleTrap(th.RunHandler(regs.EIP, signal.Number(binary.LittleEndian.Uint32(arg[:]))))
			return
		}
	}

	code := m.fetch(regs.EIP)
	switch {
	case len(code) == 0:
		m.fault(gate.PageFaultException, regs.EIP)
	case len(code) >= 2 && code[0] == opInt && code[1] == vecSyscall:
		regs.EIP += sys.SyscallInsnSize
		m.k.Syscall(regs)
	case len(code) >= 5 && code[0] == opMovEAX:
		regs.EAX = binary.LittleEndian.Uint32(code[1:5])
		regs.EIP += 5
	default:
		m.startProgram(info, code)
	}
}

// startProgram starts the program whose stub is at the start of code.
func (m *Machine) startProgram(info sys.ProcessInfo, code []byte) {
	name, ok := usr.ParseStub(code)
	if !ok {
		m.fault(gate.InvalidOpcode, m.regs.EIP)
		return
	}
	prog, ok := usr.Lookup(name)
	if !ok {
		kfmt.Fprintf(m.log, "pid %d: no code for program %q\n", info.PID, name)
		m.fault(gate.InvalidOpcode, m.regs.EIP)
		return
	}

	if old := m.threads[info.PID]; old != nil {
		old.Terminate()
	}
	th := usr.NewThread(name, prog, m.vm, info.PID, info.Generation)
	m.threads[info.PID] = th
	m.handleTrap(th.Start())
}

// handleTrap loads the state a thread stopped with into the frame and
// enters the kernel on its behalf.
func (m *Machine) handleTrap(t usr.Trap) {
	regs := &m.regs

	switch t.Kind {
	case usr.TrapSyscall:
		regs.EAX, regs.EBX, regs.ECX, regs.EDX = t.Num, t.EBX, t.ECX, t.EDX
		regs.EIP = usr.ResumeAddr
		m.k.Syscall(regs)
	case usr.TrapHandlerDone:
		ret, err := m.vm.ReadUser32(regs.ESP)
		if err != nil {
			m.fault(gate.PageFaultException, regs.ESP)
			return
		}
		regs.EIP = ret
		regs.ESP += 4
	case usr.TrapFault:
		regs.EIP = usr.ResumeAddr
		m.fault(t.Vector, t.Addr)
	}
}

// fetch returns the bytes at addr that can be read by user code.
func (m *Machine) fetch(addr uint32) []byte {
	if !vmm.UserRange(addr, 1) {
		return nil
	}
	n := uint32(fetchSize)
	if rem := vmm.UserTop - addr; rem < n {
		n = rem
	}
	code := make([]byte, n)
	if err := m.vm.UserRead(addr, code); err != nil {
		return nil
	}
	return code
}

// fault raises exception vector for the running process.
func (m *Machine) fault(vector gate.InterruptNumber, addr uint32) {
	m.regs.Vector = uint32(vector)
	m.regs.ErrorCode = 0
	if vector == gate.PageFaultException {
		m.cpu.SetCR2(addr)
	}
	m.k.Exception(&m.regs)
}
