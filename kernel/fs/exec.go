package fs

import "encoding/binary"

const (
	// ExecHeaderSize is the number of bytes inspected by ParseExecutable.
	ExecHeaderSize = 28

	// ExecEntryOffset is the offset of the little-endian entry address.
	ExecEntryOffset = 24

	// ExecBodyOffset is where Executable places the program body.
	ExecBodyOffset = 64
)

// ExecMagic identifies an executable image.
var ExecMagic = [4]byte{0x7f, 'E', 'L', 'F'}

// ParseExecutable validates the magic of an executable header and returns
// its entry address.
func ParseExecutable(header []byte) (uint32, bool) {
	if len(header) < ExecHeaderSize {
		return 0, false
	}
	for i, b := range ExecMagic {
		if header[i] != b {
			return 0, false
		}
	}
	return binary.LittleEndian.Uint32(header[ExecEntryOffset:]), true
}

// Executable returns an image with the given entry address whose body starts
// at ExecBodyOffset.
func Executable(entry uint32, body []byte) []byte {
	image := make([]byte, ExecBodyOffset+len(body))
	copy(image, ExecMagic[:])
	binary.LittleEndian.PutUint32(image[ExecEntryOffset:], entry)
	copy(image[ExecBodyOffset:], body)
	return image
}
