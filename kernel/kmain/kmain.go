// Package kmain boots the hosted machine: it probes the device drivers,
// enables paging, mounts the boot volume and hands the CPU to the kernel.
// The returned Machine feeds timer, keyboard and RTC events to the kernel
// and runs user program code between them.
package kmain

import (
	"bytes"
	"io"
	"sort"
	"termos/device"
	"termos/device/pic"
	"termos/device/pit"
	"termos/device/rtc"
	"termos/device/tty"
	"termos/device/video/console"
	"termos/kernel"
	"termos/kernel/cpu"
	"termos/kernel/fs"
	"termos/kernel/kfmt"
	"termos/kernel/mm"
	"termos/kernel/mm/vmm"
	"termos/kernel/proc"
	"termos/kernel/sys"
	"termos/usr"
)

const (
	// DefaultBurstsPerTick is the number of instruction bursts a process
	// runs between two timer interrupts.
	DefaultBurstsPerTick = 8

	screenWidth  = 80
	screenHeight = 25
)

var (
	// ErrMissingDriver is returned by Boot when one of the drivers the
	// kernel depends on could not be initialised.
	ErrMissingDriver = &kernel.Error{Module: "kmain", Message: "required device driver not found"}
)

// Config holds the boot parameters of the machine.
type Config struct {
	// TimerHz is the PIT interrupt rate.
	TimerHz uint32

	// AlarmTicks is the number of timer ticks between two ALARM signals.
	AlarmTicks uint64

	// Shell is the program started on every terminal.
	Shell string

	// Limits describes the shape of the boot volume.
	Limits fs.Limits

	// BurstsPerTick is the number of bursts between timer interrupts.
	BurstsPerTick int

	// Terminals receive a copy of everything printed on each terminal.
	Terminals [proc.Terminals]io.Writer

	// Log, if set, becomes the kernel output sink.
	Log io.Writer
}

// DefaultConfig returns the configuration used when booting from the
// command line.
func DefaultConfig() Config {
	return Config{
		TimerHz:       pit.DefaultFrequency,
		AlarmTicks:    proc.AlarmTicks,
		Shell:         sys.DefaultShell,
		Limits:        fs.DefaultLimits,
		BurstsPerTick: DefaultBurstsPerTick,
	}
}

// Boot brings the machine up from the volume image. The image is mounted
// in place: file system writes modify it.
func Boot(image []byte, cfg Config) (*Machine, *kernel.Error) {
	if cfg.Log != nil {
		kfmt.SetOutputSink(cfg.Log)
	}
	if cfg.BurstsPerTick <= 0 {
		cfg.BurstsPerTick = DefaultBurstsPerTick
	}
	if cfg.TimerHz == 0 {
		cfg.TimerHz = pit.DefaultFrequency
	}

	m := &Machine{
		cfg:     cfg,
		cpu:     cpu.New(),
		mem:     mm.NewPhysicalMemory(),
		threads: make(map[int]*usr.Thread),
		log:     kfmt.NewPrefixWriter(nil, "kmain"),
	}

	drivers := device.DriverList()
	sort.Sort(drivers)
	m.probe(drivers)
	if m.pic == nil || m.pit == nil || m.rtc == nil {
		return nil, ErrMissingDriver
	}

	m.vm = vmm.NewManager(m.cpu, m.mem)
	if err := m.vm.Init(); err != nil {
		return nil, err
	}

	var fsys fs.FileSystem
	if err := fsys.Init(image, cfg.Limits); err != nil {
		return nil, err
	}
	m.fs = &fsys

	dev := sys.Devices{PIC: m.pic, RTC: m.rtc}
	for i := range dev.Terminals {
		cons := &console.Text{}
		cons.Init(screenWidth, screenHeight, m.vm, vmm.VideoAddr)
		dev.Terminals[i] = tty.NewTerminal(i, cons, cfg.Terminals[i])
	}

	if err := m.pit.SetFrequency(cfg.TimerHz); err != nil {
		return nil, err
	}
	for _, irq := range []uint8{pit.IRQ, sys.KeyboardIRQ, rtc.IRQ} {
		if err := m.pic.EnableIRQ(irq); err != nil {
			return nil, err
		}
	}
	m.rtc.SetIdleFunc(m.rtcIdle)

	m.k = sys.New(m.cpu, m.mem, m.vm, m.fs, dev, sys.Config{
		Shell:      cfg.Shell,
		AlarmTicks: cfg.AlarmTicks,
	})
	m.cpu.EnableInterrupts()

	kfmt.Fprintf(m.log, "booted: %d Hz timer, %d files\n", cfg.TimerHz, len(m.fs.Entries()))
	return m, nil
}

// probe executes the probe function for each driver and keeps the drivers
// that initialised successfully.
func (m *Machine) probe(drivers device.DriverInfoList) {
	for _, info := range drivers {
		drv := info.Probe(m.cpu)
		if drv == nil {
			continue
		}

		var prefix bytes.Buffer
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&prefix, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w := kfmt.NewPrefixWriter(nil, "hal")
		w.Prefix = prefix.Bytes()

		if err := drv.DriverInit(w); err != nil {
			kfmt.Fprintf(w, "init failed: %s\n", err.Message)
			continue
		}
		kfmt.Fprintf(w, "initialized\n")
		m.onDriverInit(drv)
	}
}

func (m *Machine) onDriverInit(drv device.Driver) {
	switch impl := drv.(type) {
	case *pic.PIC:
		if m.pic == nil {
			m.pic = impl
		}
	case *pit.PIT:
		if m.pit == nil {
			m.pit = impl
		}
	case *rtc.RTC:
		if m.rtc == nil {
			m.rtc = impl
		}
	}
}

// rtcIdle lets the RTC interrupt fire while a process waits on its clock.
func (m *Machine) rtcIdle() {
	m.rtc.Interrupt()
	m.pic.SendEOI(rtc.IRQ)
}
