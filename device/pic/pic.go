// Package pic drives the cascaded 8259 programmable interrupt controllers.
package pic

import (
	"io"
	"termos/device"
	"termos/kernel"
	"termos/kernel/cpu"
	"termos/kernel/kfmt"
)

const (
	masterCommand = 0x20
	masterData    = 0x21
	slaveCommand  = 0xa0
	slaveData     = 0xa1

	icw1 = 0x11
	icw4 = 0x01

	// EOI is the specific end-of-interrupt command; the IRQ line is OR-ed
	// into the low bits.
	EOI = 0x60

	// MasterOffset and SlaveOffset are the vectors IRQ 0 and IRQ 8 are
	// remapped to.
	MasterOffset = 0x20
	SlaveOffset  = 0x28

	// CascadeIRQ is the master line the slave is wired to.
	CascadeIRQ = 2

	// IRQs is the number of interrupt lines.
	IRQs = 16
)

var (
	// ErrInvalidIRQ is returned for IRQ numbers above 15.
	ErrInvalidIRQ = &kernel.Error{Module: "pic", Message: "invalid IRQ line"}
)

// PIC is the master/slave 8259 pair.
type PIC struct {
	cpu *cpu.CPU

	masterMask uint8
	slaveMask  uint8
	eoiSent    uint64
}

// New returns a PIC driver using the ports of c. All lines start masked.
func New(c *cpu.CPU) *PIC {
	return &PIC{cpu: c, masterMask: 0xff, slaveMask: 0xff}
}

// DriverName returns the name of this driver.
func (p *PIC) DriverName() string {
	return "i8259"
}

// DriverVersion returns the version of this driver.
func (p *PIC) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit sends the initialisation words to both controllers, remaps
// the IRQs to MasterOffset/SlaveOffset and unmasks the cascade line.
func (p *PIC) DriverInit(w io.Writer) *kernel.Error {
	p.masterMask, p.slaveMask = 0xff, 0xff
	p.syncMasks()

	p.cpu.PortWriteByte(masterCommand, icw1)
	p.cpu.PortWriteByte(masterData, MasterOffset)
	p.cpu.PortWriteByte(masterData, 1<<CascadeIRQ)
	p.cpu.PortWriteByte(masterData, icw4)

	p.cpu.PortWriteByte(slaveCommand, icw1)
	p.cpu.PortWriteByte(slaveData, SlaveOffset)
	p.cpu.PortWriteByte(slaveData, CascadeIRQ)
	p.cpu.PortWriteByte(slaveData, icw4)

	p.syncMasks()
	if err := p.EnableIRQ(CascadeIRQ); err != nil {
		return err
	}

	kfmt.Fprintf(w, "remapped IRQs to vectors 0x%x and 0x%x\n", MasterOffset, SlaveOffset)
	return nil
}

// EnableIRQ unmasks an interrupt line.
func (p *PIC) EnableIRQ(irq uint8) *kernel.Error {
	if irq >= IRQs {
		return ErrInvalidIRQ
	}

	flags := p.cpu.SaveFlagsAndDisable()
	defer p.cpu.RestoreFlags(flags)

	if irq < 8 {
		p.masterMask &^= 1 << irq
	} else {
		p.slaveMask &^= 1 << (irq - 8)
	}
	p.syncMasks()
	return nil
}

// DisableIRQ masks an interrupt line.
func (p *PIC) DisableIRQ(irq uint8) *kernel.Error {
	if irq >= IRQs {
		return ErrInvalidIRQ
	}

	flags := p.cpu.SaveFlagsAndDisable()
	defer p.cpu.RestoreFlags(flags)

	if irq < 8 {
		p.masterMask |= 1 << irq
	} else {
		p.slaveMask |= 1 << (irq - 8)
	}
	p.syncMasks()
	return nil
}

// Enabled reports whether irq is unmasked.
func (p *PIC) Enabled(irq uint8) bool {
	switch {
	case irq < 8:
		return p.masterMask&(1<<irq) == 0
	case irq < IRQs:
		return p.slaveMask&(1<<(irq-8)) == 0
	default:
		return false
	}
}

// Masks returns the master and slave interrupt masks.
func (p *PIC) Masks() (uint8, uint8) {
	return p.masterMask, p.slaveMask
}

// SendEOI acknowledges irq. Slave lines need an EOI on both controllers.
func (p *PIC) SendEOI(irq uint8) *kernel.Error {
	if irq >= IRQs {
		return ErrInvalidIRQ
	}

	if irq >= 8 {
		p.cpu.PortWriteByte(slaveCommand, EOI|(irq-8))
		p.cpu.PortWriteByte(masterCommand, EOI|CascadeIRQ)
	} else {
		p.cpu.PortWriteByte(masterCommand, EOI|irq)
	}
	p.eoiSent++
	return nil
}

// EOICount returns the number of EOIs sent so far.
func (p *PIC) EOICount() uint64 {
	return p.eoiSent
}

func (p *PIC) syncMasks() {
	p.cpu.PortWriteByte(masterData, p.masterMask)
	p.cpu.PortWriteByte(slaveData, p.slaveMask)
}

func probeForPIC(c *cpu.CPU) device.Driver {
	return New(c)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForPIC,
	})
}
