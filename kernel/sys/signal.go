package sys

import (
	"termos/kernel"
	"termos/kernel/gate"
	"termos/kernel/kfmt"
	"termos/kernel/mm/vmm"
	"termos/kernel/signal"
)

var killMessages = [signal.Count]string{
	signal.DivZero:   "Program received a SIG_DIV_ZERO, kill program: Divide by zero!\n",
	signal.Segfault:  "Program received a SIG_SEGFAULT, kill program: Segmentation fault!\n",
	signal.Interrupt: "Program received a SIG_INTERRUPT, kill program: Interrupt!\n",
}

// SendSignal marks n as pending for the running process.
func (k *Kernel) SendSignal(n signal.Number) *kernel.Error {
	p := k.current()
	if p == nil {
		return ErrNoProcess
	}

	flags := k.cpu.SaveFlagsAndDisable()
	defer k.cpu.RestoreFlags(flags)
	return p.Signals.Raise(n)
}

// Signal marks n as pending for pid.
func (k *Kernel) Signal(pid int, n signal.Number) *kernel.Error {
	p := k.procs.Get(pid)
	if p == nil {
		return ErrNoProcess
	}

	flags := k.cpu.SaveFlagsAndDisable()
	defer k.cpu.RestoreFlags(flags)
	return p.Signals.Raise(n)
}

// deliverSignals runs on every return to user mode. The lowest pending
// signal of the running process that is not masked is acted upon: the
// process is killed, the signal is dropped or a frame that calls the
// user's handler is pushed on the user stack.
func (k *Kernel) deliverSignals(regs *gate.Registers) {
	p := k.current()
	if p == nil || !regs.UserMode() || regs.ESP < vmm.UserBase {
		return
	}

	flags := k.cpu.SaveFlagsAndDisable()
	n, ok := p.Signals.Next()
	k.cpu.RestoreFlags(flags)
	if !ok {
		return
	}

	action := p.Signals.Action(n)
	switch action.Kind {
	case signal.ActionKill:
		kfmt.Fprintf(k.log, "pid %d: killed by %s\n", p.PID, n)
		if msg := killMessages[n]; msg != "" {
			k.print(p.Terminal, msg)
		}
		k.halt(p, regs, 0)
	case signal.ActionHandler:
		frame := signal.BuildFrame(*regs, n, action.Handler)
		if err := k.vmm.UserWrite(frame.Regs.ESP, frame.Bytes); err != nil {
			kfmt.Fprintf(k.log, "pid %d: cannot push %s frame: %s\n", p.PID, n, err.Message)
			k.halt(p, regs, 0)
			return
		}
		p.Signals.Mask(n)
		*regs = frame.Regs
		// The handler runs before the interrupted read is reissued.
		k.blocked[p.PID] = false
	}
}
