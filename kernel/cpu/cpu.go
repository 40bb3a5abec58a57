// Package cpu models the state of a single 32-bit x86 processor: the
// interrupt flag, the control registers used by paging, the TSS kernel stack
// slot and the I/O port space.
package cpu

import "termos/kernel"

const (
	// CR0PG enables paging.
	CR0PG = uint32(1 << 31)

	// CR0PE enables protected mode.
	CR0PE = uint32(1 << 0)

	// CR4PSE enables 4 MiB pages.
	CR4PSE = uint32(1 << 4)

	// FlagIF is the interrupt-enable bit in EFLAGS.
	FlagIF = uint32(1 << 9)
)

var (
	// ErrHalted is raised (as a panic value) by Halt. The machine that
	// drives the CPU recovers it and stops accepting events.
	ErrHalted = &kernel.Error{Module: "cpu", Message: "cpu halted"}
)

// PortHandler receives writes to and serves reads from an I/O port that has
// a device attached to it.
type PortHandler interface {
	PortWrite(port uint16, val uint8)
	PortRead(port uint16) uint8
}

// TSS holds the task state segment fields consulted on a privilege level
// change: the kernel stack used when entering ring 0 from ring 3.
type TSS struct {
	SS0  uint16
	ESP0 uint32
}

// CPU is a hosted model of the processor. The zero value is a CPU in
// protected mode with interrupts disabled and paging off.
type CPU struct {
	eflags   uint32
	cr0      uint32
	cr2      uint32
	cr3      uint32
	cr4      uint32
	tss      TSS
	cr3Loads uint64

	ports    map[uint16]uint8
	handlers map[uint16]PortHandler
}

// New returns a CPU in protected mode with interrupts disabled.
func New() *CPU {
	return &CPU{
		cr0:      CR0PE,
		ports:    make(map[uint16]uint8),
		handlers: make(map[uint16]PortHandler),
	}
}

// EnableInterrupts enables interrupt handling.
func (c *CPU) EnableInterrupts() { c.eflags |= FlagIF }

// DisableInterrupts disables interrupt handling.
func (c *CPU) DisableInterrupts() { c.eflags &^= FlagIF }

// InterruptsEnabled returns true if the IF flag is set.
func (c *CPU) InterruptsEnabled() bool { return c.eflags&FlagIF != 0 }

// SaveFlagsAndDisable returns the current EFLAGS value and then disables
// interrupts. Pair it with RestoreFlags to build a critical section.
func (c *CPU) SaveFlagsAndDisable() uint32 {
	flags := c.eflags
	c.DisableInterrupts()
	return flags
}

// RestoreFlags restores the IF state captured by SaveFlagsAndDisable.
func (c *CPU) RestoreFlags(flags uint32) {
	c.eflags = (c.eflags &^ FlagIF) | (flags & FlagIF)
}

// SwitchPDT loads the page directory base register. Every load flushes the
// non-global TLB entries.
func (c *CPU) SwitchPDT(pdtPhysAddr uint32) {
	c.cr3 = pdtPhysAddr
	c.cr3Loads++
}

// ActivePDT returns the physical address of the currently active page
// directory.
func (c *CPU) ActivePDT() uint32 { return c.cr3 }

// PDTLoads returns the number of CR3 loads performed so far. The MMU uses it
// to detect TLB flushes.
func (c *CPU) PDTLoads() uint64 { return c.cr3Loads }

// EnablePaging sets CR4.PSE (4 MiB page support) and CR0.PG.
func (c *CPU) EnablePaging() {
	c.cr4 |= CR4PSE
	c.cr0 |= CR0PG
}

// PagingEnabled returns true if CR0.PG is set.
func (c *CPU) PagingEnabled() bool { return c.cr0&CR0PG != 0 }

// ReadCR0 returns the value stored in the CR0 register.
func (c *CPU) ReadCR0() uint32 { return c.cr0 }

// ReadCR4 returns the value stored in the CR4 register.
func (c *CPU) ReadCR4() uint32 { return c.cr4 }

// ReadCR2 returns the faulting address of the last page fault.
func (c *CPU) ReadCR2() uint32 { return c.cr2 }

// SetCR2 records the faulting address of a page fault.
func (c *CPU) SetCR2(addr uint32) { c.cr2 = addr }

// SetKernelStack updates the TSS so the next ring 3 to ring 0 transition
// lands on the given kernel stack.
func (c *CPU) SetKernelStack(ss0 uint16, esp0 uint32) {
	c.tss.SS0 = ss0
	c.tss.ESP0 = esp0
}

// KernelStack returns the TSS kernel stack fields.
func (c *CPU) KernelStack() TSS { return c.tss }

// AttachPort routes accesses to port through h.
func (c *CPU) AttachPort(port uint16, h PortHandler) {
	c.handlers[port] = h
}

// PortWriteByte writes a uint8 value to the requested port.
func (c *CPU) PortWriteByte(port uint16, val uint8) {
	c.ports[port] = val
	if h, ok := c.handlers[port]; ok {
		h.PortWrite(port, val)
	}
}

// PortReadByte reads a uint8 value from the requested port. Ports without
// an attached handler return the last value written to them.
func (c *CPU) PortReadByte(port uint16) uint8 {
	if h, ok := c.handlers[port]; ok {
		return h.PortRead(port)
	}
	return c.ports[port]
}

// Halt stops instruction execution. On the hosted machine this unwinds the
// calling goroutine with ErrHalted.
func Halt() {
	panic(ErrHalted)
}
