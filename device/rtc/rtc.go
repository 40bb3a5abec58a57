// Package rtc drives the real time clock. The hardware runs its periodic
// interrupt at a fixed rate and every terminal gets a virtual clock with its
// own frequency derived from it.
package rtc

import (
	"io"
	"termos/device"
	"termos/kernel"
	"termos/kernel/cpu"
	"termos/kernel/kfmt"
)

const (
	// HardwareFrequency is the periodic interrupt rate of the chip.
	HardwareFrequency = 1024

	// DefaultFrequency is the virtual rate set by Open.
	DefaultFrequency = 2

	// Clocks is the number of virtual clocks, one per terminal.
	Clocks = 3

	// IRQ is the interrupt line of the RTC.
	IRQ = 8

	indexPort = 0x70
	dataPort  = 0x71

	// Register selectors with the NMI disable bit set.
	regA = 0x8a
	regB = 0x8b
	regC = 0x0c

	periodicEnable = 0x40
	rate1024Hz     = 0x06
)

var (
	// ErrInvalidFrequency is returned when the requested rate is not a
	// power of two in [2, HardwareFrequency].
	ErrInvalidFrequency = &kernel.Error{Module: "rtc", Message: "invalid RTC frequency"}

	// ErrInvalidClock is returned for a virtual clock index out of range.
	ErrInvalidClock = &kernel.Error{Module: "rtc", Message: "invalid virtual clock"}
)

type virtualClock struct {
	freq    uint32
	counter uint32
	fired   bool
}

// RTC is the real time clock driver.
type RTC struct {
	cpu *cpu.CPU

	clocks [Clocks]virtualClock
	ticks  uint64

	idleFn func()
}

// New returns an RTC driver. Every virtual clock starts at
// DefaultFrequency.
func New(c *cpu.CPU) *RTC {
	r := &RTC{cpu: c}
	for i := range r.clocks {
		r.clocks[i].freq = DefaultFrequency
	}
	r.idleFn = r.Interrupt
	return r
}

// DriverName returns the name of this driver.
func (r *RTC) DriverName() string {
	return "mc146818"
}

// DriverVersion returns the version of this driver.
func (r *RTC) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit turns on the periodic interrupt at HardwareFrequency.
func (r *RTC) DriverInit(w io.Writer) *kernel.Error {
	flags := r.cpu.SaveFlagsAndDisable()
	defer r.cpu.RestoreFlags(flags)

	r.cpu.PortWriteByte(indexPort, regB)
	prev := r.cpu.PortReadByte(dataPort)
	r.cpu.PortWriteByte(indexPort, regB)
	r.cpu.PortWriteByte(dataPort, prev|periodicEnable)

	r.cpu.PortWriteByte(indexPort, regA)
	prev = r.cpu.PortReadByte(dataPort)
	r.cpu.PortWriteByte(indexPort, regA)
	r.cpu.PortWriteByte(dataPort, (prev&0xf0)|rate1024Hz)

	kfmt.Fprintf(w, "periodic interrupt at %d Hz, %d virtual clocks\n", HardwareFrequency, Clocks)
	return nil
}

// SetIdleFunc installs the function Wait calls while it spins. The
// function is expected to let pending interrupts, including the RTC's own,
// be delivered.
func (r *RTC) SetIdleFunc(fn func()) {
	if fn == nil {
		fn = r.Interrupt
	}
	r.idleFn = fn
}

// Open resets clock to DefaultFrequency.
func (r *RTC) Open(clock int) *kernel.Error {
	if clock < 0 || clock >= Clocks {
		return ErrInvalidClock
	}
	r.clocks[clock] = virtualClock{freq: DefaultFrequency}
	return nil
}

// SetFrequency changes the rate of clock.
func (r *RTC) SetFrequency(clock int, hz uint32) *kernel.Error {
	if clock < 0 || clock >= Clocks {
		return ErrInvalidClock
	}
	if hz < 2 || hz > HardwareFrequency || hz&(hz-1) != 0 {
		return ErrInvalidFrequency
	}

	flags := r.cpu.SaveFlagsAndDisable()
	r.clocks[clock].freq = hz
	r.clocks[clock].counter = 0
	r.cpu.RestoreFlags(flags)
	return nil
}

// Frequency returns the rate of clock.
func (r *RTC) Frequency(clock int) uint32 {
	if clock < 0 || clock >= Clocks {
		return 0
	}
	return r.clocks[clock].freq
}

// Interrupt handles one hardware tick: register C is read to re-arm the
// interrupt and every virtual clock whose period elapsed fires.
func (r *RTC) Interrupt() {
	r.cpu.PortWriteByte(indexPort, regC)
	r.cpu.PortReadByte(dataPort)

	r.ticks++
	for i := range r.clocks {
		c := &r.clocks[i]
		c.counter++
		if c.counter >= HardwareFrequency/c.freq {
			c.counter = 0
			c.fired = true
		}
	}
}

// Wait blocks until the next tick of clock.
func (r *RTC) Wait(clock int) *kernel.Error {
	if clock < 0 || clock >= Clocks {
		return ErrInvalidClock
	}

	c := &r.clocks[clock]
	c.fired = false
	for !c.fired {
		r.idleFn()
	}
	c.fired = false
	return nil
}

// Ticks returns the number of hardware interrupts handled so far.
func (r *RTC) Ticks() uint64 {
	return r.ticks
}

func probeForRTC(c *cpu.CPU) device.Driver {
	return New(c)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForRTC,
	})
}
