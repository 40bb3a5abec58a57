// Package gate describes the hardware context saved on interrupt, exception
// and system call entry together with the interrupt vector numbers and
// segment selectors of the machine.
package gate

import (
	"encoding/binary"
	"io"
	"termos/kernel/kfmt"
)

// Segment selectors installed in the GDT.
const (
	KernelCS = uint32(0x10)
	KernelDS = uint32(0x18)
	UserCS   = uint32(0x23)
	UserDS   = uint32(0x2b)
)

// UserEFlags is the EFLAGS value of a freshly started user program:
// interrupts enabled plus the always-one reserved bit.
const UserEFlags = uint32(0x202)

// RegistersSize is the size of an encoded Registers value.
const RegistersSize = 17 * 4

// Registers contains a snapshot of all register values when an exception,
// interrupt or syscall occurs. The field order matches the layout pushed by
// the common interrupt entry code followed by the IRET frame.
type Registers struct {
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
	EAX uint32
	DS  uint32
	ES  uint32
	FS  uint32

	// Vector holds the interrupt vector or exception number that caused
	// the kernel entry.
	Vector uint32

	// ErrorCode is pushed by the CPU for some exceptions and is zero
	// otherwise.
	ErrorCode uint32

	// The return frame used by IRET
	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

// UserFrame returns the frame that IRETs into ring 3 at entry with the given
// stack pointer.
func UserFrame(entry, esp uint32) Registers {
	return Registers{
		DS:     UserDS,
		ES:     UserDS,
		FS:     UserDS,
		EIP:    entry,
		CS:     UserCS,
		EFlags: UserEFlags,
		ESP:    esp,
		SS:     UserDS,
	}
}

// UserMode returns true if the frame was captured while running in ring 3.
func (r *Registers) UserMode() bool {
	return r.CS&3 == 3
}

// Encode serialises the registers in their stack layout.
func (r *Registers) Encode() [RegistersSize]byte {
	var out [RegistersSize]byte
	for i, v := range r.words() {
		binary.LittleEndian.PutUint32(out[i*4:], *v)
	}
	return out
}

// Decode loads the registers from their stack layout.
func (r *Registers) Decode(b []byte) {
	for i, v := range r.words() {
		*v = binary.LittleEndian.Uint32(b[i*4:])
	}
}

func (r *Registers) words() [17]*uint32 {
	return [17]*uint32{
		&r.EBX, &r.ECX, &r.EDX, &r.ESI, &r.EDI, &r.EBP, &r.EAX,
		&r.DS, &r.ES, &r.FS, &r.Vector, &r.ErrorCode,
		&r.EIP, &r.CS, &r.EFlags, &r.ESP, &r.SS,
	}
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "EAX = %08x EBX = %08x\n", r.EAX, r.EBX)
	kfmt.Fprintf(w, "ECX = %08x EDX = %08x\n", r.ECX, r.EDX)
	kfmt.Fprintf(w, "ESI = %08x EDI = %08x\n", r.ESI, r.EDI)
	kfmt.Fprintf(w, "EBP = %08x\n", r.EBP)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "EIP = %08x CS  = %08x\n", r.EIP, r.CS)
	kfmt.Fprintf(w, "ESP = %08x SS  = %08x\n", r.ESP, r.SS)
	kfmt.Fprintf(w, "EFL = %08x VEC = %08x\n", r.EFlags, r.Vector)
}

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Debug is raised by debug traps and breakpoints set in DR0-3.
	Debug = InterruptNumber(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = InterruptNumber(2)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = InterruptNumber(3)

	// Overflow is raised by INTO when the overflow flag is set.
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs on an FPU instruction with no FPU present.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an exception is raised while the CPU is
	// dispatching another one.
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when loading a selector whose segment is
	// not present.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when the stack segment limit check fails.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory or table entry is
	// not present or when a privilege and/or RW protection check fails.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs on an unmasked x87 exception.
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs on an unaligned access with alignment checks
	// enabled.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs on an unmasked SSE exception.
	SIMDFloatingPointException = InterruptNumber(19)

	// LastException is the highest vector reserved for CPU exceptions.
	LastException = InterruptNumber(31)

	// IRQBase is the vector the master PIC's IRQ 0 is remapped to.
	IRQBase = InterruptNumber(0x20)

	// TimerVector receives PIT interrupts (IRQ 0).
	TimerVector = IRQBase + 0

	// KeyboardVector receives keyboard interrupts (IRQ 1).
	KeyboardVector = IRQBase + 1

	// RTCVector receives real time clock interrupts (IRQ 8).
	RTCVector = IRQBase + 8

	// SyscallVector is the software interrupt used for system calls.
	SyscallVector = InterruptNumber(0x80)
)

// IsException returns true if n is one of the CPU exception vectors.
func (n InterruptNumber) IsException() bool {
	return n <= LastException
}
