// Package pit drives channel 0 of the 8253/8254 programmable interval
// timer which raises IRQ 0.
package pit

import (
	"io"
	"termos/device"
	"termos/kernel"
	"termos/kernel/cpu"
	"termos/kernel/kfmt"
)

const (
	// BaseFrequency is the input clock of the timer in Hz.
	BaseFrequency = 1193182

	// DefaultFrequency is the tick rate programmed by DriverInit.
	DefaultFrequency = 100

	// IRQ is the interrupt line of channel 0.
	IRQ = 0

	channel0Data = 0x40
	commandPort  = 0x43

	// Mode selects channel 0, lobyte/hibyte access, square wave generator.
	Mode = 0x36

	minFrequency = BaseFrequency/0xffff + 1
)

var (
	// ErrInvalidFrequency is returned for rates the 16-bit divisor cannot
	// express.
	ErrInvalidFrequency = &kernel.Error{Module: "pit", Message: "timer frequency out of range"}
)

// Divisor returns the reload value that makes the timer fire hz times per
// second.
func Divisor(hz uint32) uint16 {
	return uint16(BaseFrequency / hz)
}

// PIT is the interval timer driver.
type PIT struct {
	cpu *cpu.CPU
	hz  uint32
}

// New returns a timer driver that programs DefaultFrequency on init.
func New(c *cpu.CPU) *PIT {
	return &PIT{cpu: c, hz: DefaultFrequency}
}

// DriverName returns the name of this driver.
func (p *PIT) DriverName() string {
	return "i8254"
}

// DriverVersion returns the version of this driver.
func (p *PIT) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit programs the timer.
func (p *PIT) DriverInit(w io.Writer) *kernel.Error {
	if err := p.SetFrequency(p.hz); err != nil {
		return err
	}

	kfmt.Fprintf(w, "timer running at %d Hz (divisor %d)\n", p.hz, Divisor(p.hz))
	return nil
}

// SetFrequency reprograms channel 0 to fire hz times per second.
func (p *PIT) SetFrequency(hz uint32) *kernel.Error {
	if hz < minFrequency || hz > BaseFrequency {
		return ErrInvalidFrequency
	}

	div := Divisor(hz)
	p.cpu.PortWriteByte(commandPort, Mode)
	p.cpu.PortWriteByte(channel0Data, uint8(div))
	p.cpu.PortWriteByte(channel0Data, uint8(div>>8))
	p.hz = hz
	return nil
}

// Frequency returns the programmed tick rate.
func (p *PIT) Frequency() uint32 {
	return p.hz
}

func probeForPIT(c *cpu.CPU) device.Driver {
	return New(c)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForPIT,
	})
}
