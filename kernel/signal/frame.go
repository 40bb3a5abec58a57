package signal

import (
	"encoding/binary"
	"termos/kernel/gate"
)

const (
	// TrampolineSize is the space reserved for the sigreturn trampoline.
	TrampolineSize = 12

	// ContextOffset is the distance between the user ESP at the time the
	// trampoline traps and the saved context.
	ContextOffset = 4

	// FrameSize is the number of bytes BuildFrame pushes on the user
	// stack.
	FrameSize = 8 + gate.RegistersSize + TrampolineSize
)

// Trampoline is "mov eax, 10; int 0x80" padded with NOPs.
var Trampoline = [TrampolineSize]byte{
	0xb8, 0x0a, 0x00, 0x00, 0x00, // mov eax, SYS_SIGRETURN
	0xcd, 0x80, // int 0x80
	0x90, 0x90, 0x90, 0x90, 0x90,
}

// Frame describes a handler invocation prepared by BuildFrame. Bytes must be
// copied to the user stack at Regs.ESP before Regs is loaded.
type Frame struct {
	Regs  gate.Registers
	Bytes []byte
}

// BuildFrame prepares the invocation of handler for signal n on top of the
// interrupted user context ctx. From the new ESP upwards the frame holds:
//
//	return address (points at the trampoline)
//	signal number (the handler's argument)
//	copy of ctx
//	trampoline code
func BuildFrame(ctx gate.Registers, n Number, handler uint32) Frame {
	trampAddr := ctx.ESP - TrampolineSize
	ctxAddr := trampAddr - gate.RegistersSize
	esp := ctxAddr - 8

	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf[0:], trampAddr)
	binary.LittleEndian.PutUint32(buf[4:], uint32(n))
	saved := ctx.Encode()
	copy(buf[8:], saved[:])
	copy(buf[8+gate.RegistersSize:], Trampoline[:])

	regs := ctx
	regs.ESP = esp
	regs.EIP = handler
	return Frame{Regs: regs, Bytes: buf}
}

// UnwindFrame decodes the context saved by BuildFrame. The segment
// selectors are forced back to their user values and interrupts are
// re-enabled so a tampered frame cannot return into ring 0.
func UnwindFrame(saved []byte) gate.Registers {
	var regs gate.Registers
	regs.Decode(saved)

	regs.CS = gate.UserCS
	regs.SS = gate.UserDS
	regs.DS = gate.UserDS
	regs.ES = gate.UserDS
	regs.FS = gate.UserDS
	regs.EFlags |= gate.UserEFlags
	return regs
}
