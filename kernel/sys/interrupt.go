package sys

import (
	"termos/device/pit"
	"termos/device/rtc"
	"termos/kernel"
	"termos/kernel/gate"
	"termos/kernel/kfmt"
	"termos/kernel/signal"
)

// KeyboardIRQ is the PIC line of the keyboard.
const KeyboardIRQ = 1

var (
	// ErrKernelFault is the panic value used when a CPU exception is
	// raised while running kernel code.
	ErrKernelFault = &kernel.Error{Module: "sys", Message: "unhandled exception in kernel mode"}
)

// TimerTick is the handler of the PIT interrupt. It saves the interrupted
// frame into the scheduler context of the running process and switches to
// the process of the next terminal slot, starting the terminal's root shell
// if the slot has not been initialised yet.
func (k *Kernel) TimerTick(regs *gate.Registers) {
	k.dev.PIC.SendEOI(pit.IRQ)

	flags := k.cpu.SaveFlagsAndDisable()
	k.ticks++

	if p := k.current(); p != nil && regs.UserMode() {
		p.SchedContext = *regs
	}

	d := k.rq.Advance()
	if d.Bootstrap {
		k.startShell(d.Slot, regs)
	} else {
		next := k.procs.Get(d.PID)
		k.activate(next)
		*regs = next.SchedContext
	}

	if k.cfg.AlarmTicks != 0 && k.ticks%k.cfg.AlarmTicks == 0 {
		if p := k.current(); p != nil {
			p.Signals.Raise(signal.Alarm)
		}
	}
	k.cpu.RestoreFlags(flags)

	k.deliverSignals(regs)
}

// Exception handles the CPU exception regs.Vector. Faults raised by user
// code become signals for the running process: a division error raises
// DIV_ZERO and every other exception SEGFAULT. A fault in kernel mode is
// fatal.
func (k *Kernel) Exception(regs *gate.Registers) {
	vec := gate.InterruptNumber(regs.Vector)
	if !regs.UserMode() || k.current() == nil {
		kfmt.Fprintf(k.log, "exception %d at EIP %08x, CR2 %08x\n", vec, regs.EIP, k.cpu.ReadCR2())
		regs.DumpTo(k.log)
		kfmt.Panic(ErrKernelFault)
		return
	}

	n := signal.Segfault
	if vec == gate.DivideByZero {
		n = signal.DivZero
	}
	k.SendSignal(n)
	k.deliverSignals(regs)
}

// Keyboard is the handler of the keyboard interrupt. The keys go to the
// displayed terminal; Ctrl+C raises INTERRUPT for the process scheduled on
// that terminal.
func (k *Kernel) Keyboard(regs *gate.Registers, keys []byte) {
	k.dev.PIC.SendEOI(KeyboardIRQ)

	t := k.Terminal(k.displayed)
	var interrupted bool
	k.withVideo(k.displayed, func() { interrupted = t.Feed(keys) })

	if interrupted {
		if p := k.procs.Get(k.rq.Slot(k.displayed)); p != nil {
			flags := k.cpu.SaveFlagsAndDisable()
			p.Signals.Raise(signal.Interrupt)
			k.cpu.RestoreFlags(flags)
		}
	}

	k.deliverSignals(regs)
}

// RTCInterrupt is the handler of the real time clock interrupt.
func (k *Kernel) RTCInterrupt(regs *gate.Registers) {
	k.dev.RTC.Interrupt()
	k.dev.PIC.SendEOI(rtc.IRQ)
	k.deliverSignals(regs)
}
