package mm

import "encoding/binary"

// PhysicalMemory is the machine's RAM. Frames are materialised on first
// write; reading a frame that was never written yields zeroes.
type PhysicalMemory struct {
	frames map[Frame]*[PageSize]byte
}

// NewPhysicalMemory returns an empty physical memory.
func NewPhysicalMemory() *PhysicalMemory {
	return &PhysicalMemory{frames: make(map[Frame]*[PageSize]byte)}
}

func (m *PhysicalMemory) frame(f Frame, create bool) *[PageSize]byte {
	data, ok := m.frames[f]
	if !ok && create {
		data = new([PageSize]byte)
		m.frames[f] = data
	}
	return data
}

// Read copies len(p) bytes starting at physAddr into p.
func (m *PhysicalMemory) Read(physAddr uint32, p []byte) {
	for len(p) > 0 {
		off := physAddr & (PageSize - 1)
		chunk := len(p)
		if rem := int(PageSize - off); chunk > rem {
			chunk = rem
		}

		if data := m.frame(FrameFromAddress(physAddr), false); data != nil {
			copy(p[:chunk], data[off:])
		} else {
			for i := range p[:chunk] {
				p[i] = 0
			}
		}

		p = p[chunk:]
		physAddr += uint32(chunk)
	}
}

// Write copies p into physical memory starting at physAddr.
func (m *PhysicalMemory) Write(physAddr uint32, p []byte) {
	for len(p) > 0 {
		off := physAddr & (PageSize - 1)
		data := m.frame(FrameFromAddress(physAddr), true)
		n := copy(data[off:], p)
		p = p[n:]
		physAddr += uint32(n)
	}
}

// ReadUint32 reads a little-endian word at physAddr.
func (m *PhysicalMemory) ReadUint32(physAddr uint32) uint32 {
	var buf [4]byte
	m.Read(physAddr, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// WriteUint32 stores a little-endian word at physAddr.
func (m *PhysicalMemory) WriteUint32(physAddr, val uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	m.Write(physAddr, buf[:])
}

// Copy moves n bytes from src to dst. The ranges may not overlap.
func (m *PhysicalMemory) Copy(dst, src, n uint32) {
	buf := make([]byte, n)
	m.Read(src, buf)
	m.Write(dst, buf)
}

// ResidentFrames returns the number of frames that have been written to.
func (m *PhysicalMemory) ResidentFrames() int {
	return len(m.frames)
}
