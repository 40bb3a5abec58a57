package fs

import (
	"bytes"
	"encoding/binary"
)

const (
	// BlockSize is the size of the boot block, of every inode block and of
	// every data block.
	BlockSize = 4096

	// MaxNameLen is the width of the name field of a directory entry.
	MaxNameLen = 32

	// MaxDirEntries is the number of directory entries that fit in the
	// boot block.
	MaxDirEntries = 63

	// MaxInodeBlocks is the number of data block indices an inode holds.
	MaxInodeBlocks = 1023

	// MaxFileSize is the largest file an inode can describe.
	MaxFileSize = MaxInodeBlocks * BlockSize

	dirEntrySize     = 64
	bootHeaderSize   = 64
	dirEntriesOffset = bootHeaderSize
)

// FileType is the type tag stored in a directory entry.
type FileType uint32

const (
	// TypeDevice marks the RTC device entry.
	TypeDevice FileType = iota

	// TypeDirectory marks the root directory entry.
	TypeDirectory

	// TypeRegular marks a regular file backed by an inode.
	TypeRegular
)

// String implements fmt.Stringer.
func (t FileType) String() string {
	switch t {
	case TypeDevice:
		return "device"
	case TypeDirectory:
		return "directory"
	case TypeRegular:
		return "regular"
	default:
		return "unknown"
	}
}

// bootHeader is the start of block 0.
type bootHeader struct {
	DirCount       uint32
	InodeCount     uint32
	DataBlockCount uint32
	Reserved       [52]byte
}

// rawDirEntry is the on-disk layout of a directory entry.
type rawDirEntry struct {
	Name     [MaxNameLen]byte
	Type     uint32
	Inode    uint32
	Reserved [24]byte
}

// DirEntry is a decoded directory entry.
type DirEntry struct {
	Name  string
	Type  FileType
	Inode uint32
}

func decodeDirEntry(b []byte) DirEntry {
	var raw rawDirEntry
	_ = binary.Read(bytes.NewReader(b[:dirEntrySize]), binary.LittleEndian, &raw)

	nameLen := bytes.IndexByte(raw.Name[:], 0)
	if nameLen < 0 {
		nameLen = MaxNameLen
	}

	return DirEntry{
		Name:  string(raw.Name[:nameLen]),
		Type:  FileType(raw.Type),
		Inode: raw.Inode,
	}
}

func encodeDirEntry(b []byte, e DirEntry) {
	raw := rawDirEntry{Type: uint32(e.Type), Inode: e.Inode}
	copy(raw.Name[:], e.Name)

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, &raw)
	copy(b[:dirEntrySize], buf.Bytes())
}

// blocksFor returns the number of data blocks needed for length bytes.
func blocksFor(length uint32) uint32 {
	return (length + BlockSize - 1) / BlockSize
}
