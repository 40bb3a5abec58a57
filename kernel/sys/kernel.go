// Package sys implements the system call layer of the kernel together with
// the interrupt entry points that drive scheduling and signal delivery.
//
// Every entry point receives the register frame saved on the current
// kernel stack. When the entry point returns, the frame is what the
// interrupt return path restores: a context switch is performed by
// replacing the frame with the one saved in another process's PCB.
package sys

import (
	"io"
	"strings"
	"termos/device/pic"
	"termos/device/rtc"
	"termos/device/tty"
	"termos/kernel"
	"termos/kernel/cpu"
	"termos/kernel/fs"
	"termos/kernel/gate"
	"termos/kernel/kfmt"
	"termos/kernel/mm"
	"termos/kernel/mm/vmm"
	"termos/kernel/proc"
	"termos/kernel/sched"
)

const (
	// DefaultShell is the program started on every terminal.
	DefaultShell = "shell"
)

var (
	// ErrNoShell is raised (as a kernel panic) when the root shell image
	// cannot be loaded.
	ErrNoShell = &kernel.Error{Module: "sys", Message: "unable to start the root shell"}
)

// Config holds the tunables of the system call layer.
type Config struct {
	// Shell is the program started as the root shell of each terminal.
	Shell string

	// AlarmTicks is the number of timer ticks between two ALARM signals.
	// Zero disables the alarm.
	AlarmTicks uint64
}

// DefaultConfig returns the configuration used by the kernel on boot.
func DefaultConfig() Config {
	return Config{
		Shell:      DefaultShell,
		AlarmTicks: proc.AlarmTicks,
	}
}

// Devices are the drivers the system call layer talks to.
type Devices struct {
	PIC       *pic.PIC
	RTC       *rtc.RTC
	Terminals [proc.Terminals]*tty.Terminal
}

// Kernel is the kernel context: it owns the process table, the run queue
// and the terminal state and references the memory, file system and device
// drivers set up during boot.
type Kernel struct {
	cpu *cpu.CPU
	mem *mm.PhysicalMemory
	vmm *vmm.Manager
	fs  *fs.FileSystem
	dev Devices
	cfg Config

	procs *proc.Table
	rq    *sched.RunQueue

	displayed int
	ticks     uint64
	blocked   [proc.MaxProcesses]bool

	log      io.Writer
	schedLog io.Writer
}

// New returns a kernel context. Paging must already be enabled on vm and
// fsys initialised from the boot volume.
func New(c *cpu.CPU, mem *mm.PhysicalMemory, vm *vmm.Manager, fsys *fs.FileSystem, dev Devices, cfg Config) *Kernel {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}

	k := &Kernel{
		cpu:      c,
		mem:      mem,
		vmm:      vm,
		fs:       fsys,
		dev:      dev,
		cfg:      cfg,
		procs:    &proc.Table{},
		rq:       sched.NewRunQueue(),
		log:      kfmt.NewPrefixWriter(nil, "sys"),
		schedLog: kfmt.NewPrefixWriter(nil, "sched"),
	}
	for _, t := range dev.Terminals {
		if t != nil {
			t.SetCompleter(k.completeFileName)
		}
	}
	return k
}

// completeFileName returns the suffix shared by every file name that
// starts with word.
func (k *Kernel) completeFileName(word string) string {
	return strings.TrimPrefix(fs.CommonPrefix(k.fs.Complete(word)), word)
}

// FS returns the mounted file system.
func (k *Kernel) FS() *fs.FileSystem {
	return k.fs
}

// RunQueue returns the scheduler run queue.
func (k *Kernel) RunQueue() *sched.RunQueue {
	return k.rq
}

// Ticks returns the number of timer interrupts handled.
func (k *Kernel) Ticks() uint64 {
	return k.ticks
}

// Terminal returns terminal t or nil.
func (k *Kernel) Terminal(t int) *tty.Terminal {
	if t < 0 || t >= proc.Terminals {
		return nil
	}
	return k.dev.Terminals[t]
}

// Displayed returns the terminal currently shown on the screen.
func (k *Kernel) Displayed() int {
	return k.displayed
}

// Blocked reports whether the last system call of pid could not complete
// and will be restarted.
func (k *Kernel) Blocked(pid int) bool {
	return pid >= 0 && pid < proc.MaxProcesses && k.blocked[pid]
}

// current returns the PCB of the process whose kernel stack is installed
// in the TSS.
func (k *Kernel) current() *proc.PCB {
	return k.procs.Get(proc.PIDFromKernelStack(k.cpu.KernelStack().ESP0))
}

// Current returns information about the running process. The second
// return value is false before the first process is started.
func (k *Kernel) Current() (ProcessInfo, bool) {
	p := k.current()
	if p == nil {
		return ProcessInfo{}, false
	}
	return k.info(p), true
}

// ProcessInfo describes a live process.
type ProcessInfo struct {
	PID         int
	Parent      int
	Terminal    int
	Program     string
	Args        string
	Generation  uint64
	Scheduled   bool
	VideoMapped bool
	Files       int
}

// Processes returns a description of every live process ordered by pid.
func (k *Kernel) Processes() []ProcessInfo {
	var list []ProcessInfo
	for _, pid := range k.procs.Active() {
		list = append(list, k.info(k.procs.Get(pid)))
	}
	return list
}

// Process returns information about pid. The second return value is false
// if pid is not in use.
func (k *Kernel) Process(pid int) (ProcessInfo, bool) {
	p := k.procs.Get(pid)
	if p == nil {
		return ProcessInfo{}, false
	}
	return k.info(p), true
}

func (k *Kernel) info(p *proc.PCB) ProcessInfo {
	info := ProcessInfo{
		PID:         p.PID,
		Parent:      p.Parent,
		Terminal:    p.Terminal,
		Program:     p.Program,
		Args:        p.Args(),
		Generation:  p.Generation,
		Scheduled:   k.rq.Slot(p.Terminal) == p.PID,
		VideoMapped: p.VideoMapped,
	}
	for fd := range p.Files {
		if p.Files[fd].InUse {
			info.Files++
		}
	}
	return info
}

// activate installs the address space and kernel stack of p.
func (k *Kernel) activate(p *proc.PCB) {
	k.vmm.MapProcess(p.PID)
	k.mapVideo(p)
	k.cpu.SetKernelStack(uint16(gate.KernelDS), p.KernelStackTop())
}

func (k *Kernel) mapVideo(p *proc.PCB) {
	k.vmm.MapVideo(p.Terminal, k.displayed, p.VideoMapped)
}

// videoBuffer returns the physical buffer that holds the screen of term.
func (k *Kernel) videoBuffer(term int) uint32 {
	if term == k.displayed {
		return vmm.VideoAddr
	}
	return vmm.VideoBackupAddr(term)
}

// withVideo runs fn with the kernel's view of the video memory redirected
// to the screen of term.
func (k *Kernel) withVideo(term int, fn func()) {
	prev := k.vmm.SetKernelVideoTarget(k.videoBuffer(term))
	fn()
	k.vmm.SetKernelVideoTarget(prev)
}

// print writes a message to the screen of term.
func (k *Kernel) print(term int, msg string) {
	t := k.Terminal(term)
	if t == nil {
		return
	}
	k.withVideo(term, func() { t.Write([]byte(msg)) })
}

// VideoBuffer returns a copy of the text-mode screen of term.
func (k *Kernel) VideoBuffer(term int) []byte {
	buf := make([]byte, vmm.VideoSize)
	if term >= 0 && term < proc.Terminals {
		k.mem.Read(k.videoBuffer(term), buf)
	}
	return buf
}

// SwitchTerminal shows terminal t on the screen. The displayed screen is
// saved into the backup buffer of its terminal, the backup of t is copied
// to the video memory and the video page of the running process is
// remapped.
func (k *Kernel) SwitchTerminal(t int) *kernel.Error {
	if t < 0 || t >= proc.Terminals {
		return ErrBadTerminal
	}
	if t == k.displayed {
		return nil
	}

	flags := k.cpu.SaveFlagsAndDisable()
	defer k.cpu.RestoreFlags(flags)

	prev := k.displayed
	k.mem.Copy(vmm.VideoBackupAddr(prev), vmm.VideoAddr, vmm.VideoSize)
	k.mem.Copy(vmm.VideoAddr, vmm.VideoBackupAddr(t), vmm.VideoSize)
	k.displayed = t

	if p := k.current(); p != nil {
		k.mapVideo(p)
	} else {
		k.vmm.SetKernelVideoTarget(vmm.VideoAddr)
	}

	kfmt.Fprintf(k.schedLog, "displaying terminal %d\n", t)
	return nil
}
