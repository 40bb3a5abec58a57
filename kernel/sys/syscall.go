package sys

import (
	"strings"
	"termos/kernel"
	"termos/kernel/fs"
	"termos/kernel/gate"
	"termos/kernel/kfmt"
	"termos/kernel/mm/vmm"
	"termos/kernel/proc"
	"termos/kernel/signal"
)

// System call numbers, passed in EAX.
const (
	SysHalt       = 1
	SysExecute    = 2
	SysRead       = 3
	SysWrite      = 4
	SysOpen       = 5
	SysClose      = 6
	SysGetargs    = 7
	SysVidmap     = 8
	SysSetHandler = 9
	SysSigreturn  = 10
	SysMalloc     = 11
	SysFree       = 12

	syscallCount = 13
)

const (
	// RemoveEntryLength is the length argument that turns a write to the
	// directory into the removal of the file named by the buffer.
	RemoveEntryLength = -299

	// ExceptionStatus is what a parent receives when its child halted
	// with the reserved status 255.
	ExceptionStatus = 256

	// MaxCommandLength is the longest command line accepted by execute.
	MaxCommandLength = fs.MaxNameLen + proc.ArgsSize

	// SyscallInsnSize is the length of the int 0x80 instruction. A
	// system call that cannot complete rewinds EIP by this amount so the
	// call is issued again.
	SyscallInsnSize = 2

	exceptionCode = 255
	failure       = int32(-1)

	// failureEAX is -1 as seen in EAX.
	failureEAX = ^uint32(0)
)

var (
	// kernelWriteFn and copyToUserFn are mocked by tests.
	kernelWriteFn = (*vmm.Manager).KernelWrite
	copyToUserFn  = (*vmm.Manager).CopyToUser

	// ErrBadDescriptor is returned for descriptors that are out of range,
	// not open or not usable for the requested operation.
	ErrBadDescriptor = &kernel.Error{Module: "sys", Message: "bad file descriptor"}

	// ErrBadBuffer is returned when a user buffer lies outside the user
	// page.
	ErrBadBuffer = &kernel.Error{Module: "sys", Message: "bad user buffer"}

	// ErrNoDescriptors is returned by open when the descriptor table is
	// full.
	ErrNoDescriptors = &kernel.Error{Module: "sys", Message: "too many open files"}

	// ErrNotExecutable is returned by execute for files without the
	// executable magic.
	ErrNotExecutable = &kernel.Error{Module: "sys", Message: "not an executable"}

	// ErrCommandTooLong is returned by execute when the program name or
	// its arguments do not fit.
	ErrCommandTooLong = &kernel.Error{Module: "sys", Message: "command too long"}

	// ErrNoArgs is returned by getargs when the process has no arguments
	// or the buffer cannot hold them.
	ErrNoArgs = &kernel.Error{Module: "sys", Message: "no arguments"}

	// ErrBadTerminal is returned for terminal numbers out of range.
	ErrBadTerminal = &kernel.Error{Module: "sys", Message: "invalid terminal"}

	// ErrNoProcess is returned when an operation needs a process and none
	// is running.
	ErrNoProcess = &kernel.Error{Module: "sys", Message: "no such process"}

	// ErrUnsupported is returned by the operations that are not backed by
	// an implementation.
	ErrUnsupported = &kernel.Error{Module: "sys", Message: "operation not supported"}

	// errWouldBlock is returned by file operations that need to wait.
	errWouldBlock = &kernel.Error{Module: "sys", Message: "operation would block"}
)

// outcome tells the dispatcher what to do with the frame after a handler
// ran.
type outcome uint8

const (
	// setResult stores the handler's return value in EAX.
	setResult outcome = iota

	// frameReplaced leaves the frame untouched: the handler installed
	// another context.
	frameReplaced

	// restartCall rewinds EIP so the same call is issued again.
	restartCall
)

type syscallFn func(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome)

var syscalls = [syscallCount]syscallFn{
	SysHalt:       sysHalt,
	SysExecute:    sysExecute,
	SysRead:       sysRead,
	SysWrite:      sysWrite,
	SysOpen:       sysOpen,
	SysClose:      sysClose,
	SysGetargs:    sysGetargs,
	SysVidmap:     sysVidmap,
	SysSetHandler: sysSetHandler,
	SysSigreturn:  sysSigreturn,
	SysMalloc:     sysMalloc,
	SysFree:       sysFree,
}

// Syscall is the entry point of int 0x80. The call number is taken from
// EAX and the arguments from EBX, ECX and EDX; the result is returned in
// EAX. Unknown calls return -1.
func (k *Kernel) Syscall(regs *gate.Registers) {
	p := k.current()
	if p == nil {
		regs.EAX = failureEAX
		return
	}

	var fn syscallFn
	if regs.EAX < syscallCount {
		fn = syscalls[regs.EAX]
	}
	if fn == nil {
		regs.EAX = failureEAX
		k.deliverSignals(regs)
		return
	}

	pid := p.PID
	ret, out := fn(k, p, regs)
	switch out {
	case setResult:
		regs.EAX = uint32(ret)
		k.blocked[pid] = false
	case restartCall:
		regs.EIP -= SyscallInsnSize
		k.blocked[pid] = true
	default:
		k.blocked[pid] = false
	}

	k.deliverSignals(regs)
}

func result(err *kernel.Error) (int32, outcome) {
	if err != nil {
		return failure, setResult
	}
	return 0, setResult
}

func sysHalt(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	k.halt(p, regs, uint32(uint8(regs.EBX)))
	return 0, frameReplaced
}

func sysExecute(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	cmd, err := k.vmm.ReadUserString(regs.EBX, MaxCommandLength+1)
	if err != nil {
		return failure, setResult
	}
	if err := k.execute(p, cmd, regs); err != nil {
		return failure, setResult
	}
	return 0, frameReplaced
}

func sysRead(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	fd, buf, n := int(int32(regs.EBX)), regs.ECX, int32(regs.EDX)
	if fd == proc.StdoutFD {
		return failure, setResult
	}
	d := p.File(fd)
	if d == nil || n < 0 || !vmm.UserRange(buf, uint32(n)) {
		return failure, setResult
	}

	count, err := opsFor(d.Kind).read(k, p, d, buf, uint32(n))
	switch {
	case err == errWouldBlock:
		return 0, restartCall
	case err != nil:
		return failure, setResult
	}
	return count, setResult
}

func sysWrite(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	fd, buf, n := int(int32(regs.EBX)), regs.ECX, int32(regs.EDX)
	if fd == proc.StdinFD {
		return failure, setResult
	}
	d := p.File(fd)
	if d == nil {
		return failure, setResult
	}

	count, err := opsFor(d.Kind).write(k, p, d, buf, n)
	if err != nil {
		return failure, setResult
	}
	return count, setResult
}

func sysOpen(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	name, err := k.vmm.ReadUserString(regs.EBX, fs.MaxNameLen+1)
	if err != nil {
		return failure, setResult
	}
	fd, err := k.open(p, name)
	if err != nil {
		return failure, setResult
	}
	return int32(fd), setResult
}

func sysClose(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	return result(k.close(p, int(int32(regs.EBX))))
}

func sysGetargs(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	buf, n := regs.EBX, int32(regs.ECX)
	args := p.Args()
	if args == "" || n < 0 || int(n) < len(args)+1 {
		return result(ErrNoArgs)
	}

	out := append([]byte(args), 0)
	if err := k.vmm.CopyToUser(buf, out); err != nil {
		return result(ErrBadBuffer)
	}
	return 0, setResult
}

func sysVidmap(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	ptr := regs.EBX
	if !vmm.UserRange(ptr, 4) {
		return result(ErrBadBuffer)
	}

	p.VideoMapped = true
	addr := k.vmm.MapVideo(p.Terminal, k.displayed, true)
	return result(k.vmm.WriteUser32(ptr, addr))
}

func sysSetHandler(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	n, addr := regs.EBX, regs.ECX
	if n >= uint32(signal.Count) {
		return result(signal.ErrInvalidSignal)
	}
	if addr != 0 && !vmm.UserRange(addr, 1) {
		return result(ErrBadBuffer)
	}
	return result(p.Signals.SetHandler(signal.Number(n), addr))
}

func sysSigreturn(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	saved := make([]byte, gate.RegistersSize)
	if err := k.vmm.CopyFromUser(regs.ESP+signal.ContextOffset, saved); err != nil {
		return failure, setResult
	}

	p.Signals.ClearMask()
	*regs = signal.UnwindFrame(saved)
	return 0, frameReplaced
}

func sysMalloc(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	return result(ErrUnsupported)
}

func sysFree(k *Kernel, p *proc.PCB, regs *gate.Registers) (int32, outcome) {
	return result(ErrUnsupported)
}

// splitCommand separates the program name from its arguments. Leading
// spaces are skipped for both.
func splitCommand(cmd string) (string, string) {
	cmd = strings.TrimLeft(cmd, " ")
	name, args, _ := strings.Cut(cmd, " ")
	return name, strings.TrimLeft(args, " ")
}

// execute starts the program named by the first word of cmd as a child of
// parent. On success the frame is replaced by the child's entry frame and
// the parent's frame is kept in the child's syscall context until the
// child halts.
func (k *Kernel) execute(parent *proc.PCB, cmd string, regs *gate.Registers) *kernel.Error {
	name, args := splitCommand(cmd)
	if name == "" || len(name) > fs.MaxNameLen || len(args) >= proc.ArgsSize {
		return ErrCommandTooLong
	}

	image, entry, err := k.loadImage(name)
	if err != nil {
		return err
	}

	child, err := k.procs.Alloc(parent.PID, name)
	if err != nil {
		k.print(parent.Terminal, err.Message+"\n")
		return err
	}
	child.SetArgs(args)
	child.SyscallContext = *regs

	k.start(child, image, entry, regs)
	k.rq.Set(child.Terminal, child.PID)

	kfmt.Fprintf(k.log, "pid %d: execute %q (parent %d, terminal %d)\n", child.PID, cmd, parent.PID, child.Terminal)
	return nil
}

// loadImage reads the executable name from the file system and returns
// its image and entry address.
func (k *Kernel) loadImage(name string) ([]byte, uint32, *kernel.Error) {
	entry, err := k.fs.LookupByName(name)
	if err != nil {
		return nil, 0, err
	}
	if entry.Type != fs.TypeRegular {
		return nil, 0, ErrNotExecutable
	}

	length, err := k.fs.Length(entry.Inode)
	if err != nil {
		return nil, 0, err
	}
	if length > vmm.UserStackTop-vmm.ProgramImageAddr {
		return nil, 0, ErrNotExecutable
	}

	image := make([]byte, length)
	if _, err = k.fs.ReadData(entry.Inode, 0, image); err != nil {
		return nil, 0, err
	}

	addr, ok := fs.ParseExecutable(image)
	if !ok {
		return nil, 0, ErrNotExecutable
	}
	return image, addr, nil
}

// start maps the address space of p, copies its image and replaces the
// frame with the user mode entry frame.
func (k *Kernel) start(p *proc.PCB, image []byte, entry uint32, regs *gate.Registers) {
	k.activate(p)
	if err := kernelWriteFn(k.vmm, vmm.ProgramImageAddr, image); err != nil {
		kfmt.Panic(err)
	}
	k.blocked[p.PID] = false
	*regs = gate.UserFrame(entry, vmm.UserStackTop)
}

// startShell (re)starts the root shell of term in its reserved pid slot.
func (k *Kernel) startShell(term int, regs *gate.Registers) {
	image, entry, err := k.loadImage(k.cfg.Shell)
	if err != nil {
		kfmt.Fprintf(k.log, "terminal %d: %s: %s\n", term, k.cfg.Shell, err.Message)
		kfmt.Panic(ErrNoShell)
		return
	}

	p, err := k.procs.AllocRoot(term, k.cfg.Shell)
	if err != nil {
		kfmt.Panic(err)
		return
	}

	k.start(p, image, entry, regs)
	k.rq.Set(term, p.PID)
	kfmt.Fprintf(k.schedLog, "terminal %d: started %s as pid %d\n", term, k.cfg.Shell, p.PID)
}

// halt terminates p and resumes its parent with status in EAX. Root
// shells are restarted instead.
func (k *Kernel) halt(p *proc.PCB, regs *gate.Registers, status uint32) {
	if status == exceptionCode {
		status = ExceptionStatus
	}

	for fd := proc.StdoutFD + 1; fd < proc.MaxFiles; fd++ {
		k.close(p, fd)
	}

	if k.procs.IsRoot(p.PID) {
		k.print(p.Terminal, "cannot halt first shell, restarting\n")
		k.startShell(p.Terminal, regs)
		return
	}

	parent := k.procs.Get(p.Parent)
	if parent == nil {
		kfmt.Panic(ErrNoProcess)
		return
	}

	k.vmm.UnmapVideo()
	k.activate(parent)
	k.rq.Set(p.Terminal, parent.PID)
	k.procs.Free(p.PID)
	k.blocked[p.PID] = false

	*regs = p.SyscallContext
	regs.EAX = status

	kfmt.Fprintf(k.log, "pid %d: halt %d, resuming pid %d\n", p.PID, status, parent.PID)
}
