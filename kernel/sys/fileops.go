package sys

import (
	"bytes"
	"encoding/binary"
	"termos/kernel"
	"termos/kernel/fs"
	"termos/kernel/mm/vmm"
	"termos/kernel/proc"
)

// fileOps is the operation table of a descriptor kind.
type fileOps interface {
	open(k *Kernel, p *proc.PCB, d *proc.Descriptor) *kernel.Error
	close(k *Kernel, p *proc.PCB, d *proc.Descriptor) *kernel.Error
	read(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf, n uint32) (int32, *kernel.Error)
	write(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf uint32, n int32) (int32, *kernel.Error)
}

type (
	regularFile struct{}
	directory   struct{}
	rtcDevice   struct{}
	terminalIn  struct{}
	terminalOut struct{}
)

func opsFor(kind proc.FileKind) fileOps {
	switch kind {
	case proc.KindRegular:
		return regularFile{}
	case proc.KindDirectory:
		return directory{}
	case proc.KindRTC:
		return rtcDevice{}
	case proc.KindTerminalIn:
		return terminalIn{}
	default:
		return terminalOut{}
	}
}

func kindOf(t fs.FileType) proc.FileKind {
	switch t {
	case fs.TypeDevice:
		return proc.KindRTC
	case fs.TypeDirectory:
		return proc.KindDirectory
	default:
		return proc.KindRegular
	}
}

// open looks up name and binds it to the lowest free descriptor.
func (k *Kernel) open(p *proc.PCB, name string) (int, *kernel.Error) {
	entry, err := k.fs.LookupByName(name)
	if err != nil {
		return -1, err
	}

	fd, ok := p.AllocFD()
	if !ok {
		return -1, ErrNoDescriptors
	}

	d := &p.Files[fd]
	*d = proc.Descriptor{Kind: kindOf(entry.Type), InUse: true}
	if d.Kind == proc.KindRegular {
		d.Inode = entry.Inode
	}

	if err = opsFor(d.Kind).open(k, p, d); err != nil {
		*d = proc.Descriptor{}
		return -1, err
	}
	return fd, nil
}

// close releases descriptor fd. The terminal descriptors cannot be closed.
func (k *Kernel) close(p *proc.PCB, fd int) *kernel.Error {
	if fd <= proc.StdoutFD {
		return ErrBadDescriptor
	}
	d := p.File(fd)
	if d == nil {
		return ErrBadDescriptor
	}

	err := opsFor(d.Kind).close(k, p, d)
	*d = proc.Descriptor{}
	return err
}

// copyIn reads n bytes from the user buffer at buf.
func (k *Kernel) copyIn(buf uint32, n int32) ([]byte, *kernel.Error) {
	if n < 0 || !vmm.UserRange(buf, uint32(n)) {
		return nil, ErrBadBuffer
	}
	data := make([]byte, n)
	if err := k.vmm.CopyFromUser(buf, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (regularFile) open(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error  { return nil }
func (regularFile) close(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error { return nil }

func (regularFile) read(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf, n uint32) (int32, *kernel.Error) {
	data := make([]byte, n)
	count, err := k.fs.ReadData(d.Inode, d.Position, data)
	if err != nil {
		return 0, err
	}
	if err = k.vmm.CopyToUser(buf, data[:count]); err != nil {
		return 0, err
	}
	d.Position += uint32(count)
	return int32(count), nil
}

// write replaces the contents of the file with the buffer.
func (regularFile) write(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf uint32, n int32) (int32, *kernel.Error) {
	data, err := k.copyIn(buf, n)
	if err != nil {
		return 0, err
	}
	count, err := k.fs.WriteData(d.Inode, data)
	if err != nil {
		return 0, err
	}
	d.Position = 0
	return int32(count), nil
}

func (directory) open(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error  { return nil }
func (directory) close(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error { return nil }

// read returns the name of the next directory entry or 0 at the end of the
// directory.
func (directory) read(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf, n uint32) (int32, *kernel.Error) {
	name, err := k.fs.ReadDir(int(d.Position))
	if err == fs.ErrEndOfDirectory {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	out := []byte(name)
	if uint32(len(out)) > n {
		out = out[:n]
	}
	if err = k.vmm.CopyToUser(buf, out); err != nil {
		return 0, err
	}
	d.Position++
	return int32(len(out)), nil
}

// write creates a file named by the buffer. A length of RemoveEntryLength
// removes the file named by the NUL terminated string at buf instead.
func (directory) write(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf uint32, n int32) (int32, *kernel.Error) {
	if n == RemoveEntryLength {
		name, err := k.vmm.ReadUserString(buf, fs.MaxNameLen+1)
		if err != nil {
			return 0, err
		}
		if err = k.fs.DeleteEntry(name); err != nil {
			return 0, err
		}
		return 0, nil
	}

	data, err := k.copyIn(buf, n)
	if err != nil {
		return 0, err
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if err = k.fs.CreateEntry(string(data)); err != nil {
		return 0, err
	}
	return int32(len(data)), nil
}

func (rtcDevice) open(k *Kernel, p *proc.PCB, d *proc.Descriptor) *kernel.Error {
	return k.dev.RTC.Open(p.Terminal)
}

func (rtcDevice) close(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error { return nil }

// read waits for the next tick of the terminal's virtual clock.
func (rtcDevice) read(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf, n uint32) (int32, *kernel.Error) {
	if err := k.dev.RTC.Wait(p.Terminal); err != nil {
		return 0, err
	}
	return 0, nil
}

// write sets the frequency of the terminal's virtual clock from a 4-byte
// little endian value.
func (rtcDevice) write(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf uint32, n int32) (int32, *kernel.Error) {
	if n != 4 {
		return 0, ErrBadBuffer
	}
	data, err := k.copyIn(buf, n)
	if err != nil {
		return 0, err
	}
	if err = k.dev.RTC.SetFrequency(p.Terminal, binary.LittleEndian.Uint32(data)); err != nil {
		return 0, err
	}
	return 0, nil
}

func (terminalIn) open(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error  { return nil }
func (terminalIn) close(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error { return nil }

// read returns the next line typed on the process's terminal. It would
// block when no line is complete yet.
func (terminalIn) read(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf, n uint32) (int32, *kernel.Error) {
	t := k.Terminal(p.Terminal)
	if t == nil {
		return 0, ErrBadTerminal
	}

	// The line stays queued until it reached the user buffer.
	data := make([]byte, n)
	count, ok := t.PeekLine(data)
	if !ok {
		return 0, errWouldBlock
	}
	if err := copyToUserFn(k.vmm, buf, data[:count]); err != nil {
		return 0, err
	}
	t.DropLine()
	return int32(count), nil
}

func (terminalIn) write(*Kernel, *proc.PCB, *proc.Descriptor, uint32, int32) (int32, *kernel.Error) {
	return 0, ErrBadDescriptor
}

func (terminalOut) open(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error  { return nil }
func (terminalOut) close(*Kernel, *proc.PCB, *proc.Descriptor) *kernel.Error { return nil }

func (terminalOut) read(*Kernel, *proc.PCB, *proc.Descriptor, uint32, uint32) (int32, *kernel.Error) {
	return 0, ErrBadDescriptor
}

// write prints the buffer on the process's terminal.
func (terminalOut) write(k *Kernel, p *proc.PCB, d *proc.Descriptor, buf uint32, n int32) (int32, *kernel.Error) {
	data, err := k.copyIn(buf, n)
	if err != nil {
		return 0, err
	}
	t := k.Terminal(p.Terminal)
	if t == nil {
		return 0, ErrBadTerminal
	}
	k.withVideo(p.Terminal, func() { t.Write(data) })
	return n, nil
}
