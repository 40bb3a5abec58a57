// Package device defines the interface implemented by the drivers of the
// machine's peripherals and the registry used to probe for them at boot.
package device

import (
	"io"
	"termos/kernel"
	"termos/kernel/cpu"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that checks for the presence of a particular piece
// of hardware on the supplied CPU and returns a driver for it.
type ProbeFn func(*cpu.CPU) Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the kernel.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed first. Interrupt controllers use it.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is used by timer and clock drivers.
	DetectOrderNormal = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed last.
	DetectOrderLast = 127
)

// DriverInfo is a driver-defined struct that is passed to calls to
// RegisterDriver.
type DriverInfo struct {
	// Order specifies at which stage of the boot process the driver's
	// probe function will be invoked.
	Order DetectOrder

	// Probe is the probe function for the device.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var (
	// registeredDrivers tracks the drivers registered via a call to
	// RegisterDriver.
	registeredDrivers DriverInfoList
)

// RegisterDriver adds the supplied driver info entry to the list of
// registered drivers. The list is consulted by the kernel when probing for
// hardware.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
