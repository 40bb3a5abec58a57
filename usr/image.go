// Package usr implements the user-mode side of the machine: the code image
// every user program is loaded from, the system call wrappers programs use
// and the threads that run program code between two traps into the
// kernel.
//
// A program image contains a short stub instead of machine code:
//
//	entry+0   0F 0B 'G' 'O'   native entry trap
//	entry+4   program name, NUL padded to MaxNameLen bytes
//	entry+16  CD 80           int 0x80
//	entry+18  0F 0B ...       resume address; the rest of the stub traps
//
// The machine starts the registered program when it finds the native entry
// trap at EIP. System calls issued by the program behave like the int 0x80
// at entry+16 so the saved frame of a program waiting for a system call
// result always points at ResumeAddr.
package usr

import (
	"bytes"
	"sort"
	"termos/kernel"
	"termos/kernel/fs"
	"termos/kernel/mm/vmm"
	"termos/kernel/signal"
	"termos/kernel/sys"
)

const (
	// EntryAddr is the entry point of every program image.
	EntryAddr = vmm.ProgramImageAddr + fs.ExecBodyOffset

	// SyscallAddr is the address of the stub's int 0x80 instruction.
	SyscallAddr = EntryAddr + 16

	// ResumeAddr is the address that follows the int 0x80 instruction.
	ResumeAddr = SyscallAddr + sys.SyscallInsnSize

	// HandlerBase is the address of the first signal handler slot.
	HandlerBase = EntryAddr + 0x20

	// MaxNameLen is the longest program name a stub can hold.
	MaxNameLen = 12

	// StubSize is the size of the program body.
	StubSize = 0x40

	nameOffset = 4
)

var (
	// ErrNameTooLong is returned for program names that do not fit the
	// stub.
	ErrNameTooLong = &kernel.Error{Module: "usr", Message: "program name too long"}

	// ErrUnknownProgram is returned when no program is registered under
	// a name.
	ErrUnknownProgram = &kernel.Error{Module: "usr", Message: "unknown program"}

	stubMagic = [4]byte{0x0f, 0x0b, 'G', 'O'}
)

// Stub returns the program body for name.
func Stub(name string) ([]byte, *kernel.Error) {
	if name == "" || len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}

	body := make([]byte, StubSize)
	copy(body, stubMagic[:])
	copy(body[nameOffset:], name)
	body[SyscallAddr-EntryAddr] = 0xcd
	body[SyscallAddr-EntryAddr+1] = 0x80
	for i := ResumeAddr - EntryAddr; i+1 < StubSize; i += 2 {
		body[i], body[i+1] = 0x0f, 0x0b
	}
	return body, nil
}

// ParseStub returns the program name stored in the stub at the start of
// code.
func ParseStub(code []byte) (string, bool) {
	if len(code) < nameOffset+MaxNameLen || !bytes.Equal(code[:nameOffset], stubMagic[:]) {
		return "", false
	}
	name := code[nameOffset : nameOffset+MaxNameLen]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if len(name) == 0 {
		return "", false
	}
	return string(name), true
}

// Image returns the executable image of the registered program name.
func Image(name string) ([]byte, *kernel.Error) {
	if _, ok := Lookup(name); !ok {
		return nil, ErrUnknownProgram
	}
	body, err := Stub(name)
	if err != nil {
		return nil, err
	}
	return fs.Executable(EntryAddr, body), nil
}

// HandlerAddr returns the address a program's handler for n is installed
// at.
func HandlerAddr(n signal.Number) uint32 {
	return HandlerBase + uint32(n)*2
}

// AddPrograms adds the image of every registered program to b.
func AddPrograms(b *fs.Builder) *kernel.Error {
	for _, name := range Programs() {
		body, err := Stub(name)
		if err != nil {
			return err
		}
		if err = b.AddExecutable(name, EntryAddr, body); err != nil {
			return err
		}
	}
	return nil
}

// NewVolume builds a boot volume holding the root directory, the RTC
// device, every registered program and the given files.
func NewVolume(limits fs.Limits, files map[string][]byte) ([]byte, *kernel.Error) {
	b := fs.NewBuilder(limits)
	if err := b.AddDirectory("."); err != nil {
		return nil, err
	}
	if err := b.AddDevice("rtc"); err != nil {
		return nil, err
	}
	if err := AddPrograms(b); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.AddFile(name, files[name]); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
