// Package fs implements the boot-block file system: a flat directory of up
// to 63 entries stored in the first block of the volume followed by the inode
// blocks and the data blocks. Allocation state is not stored on the volume;
// Init rebuilds it from the live directory entries.
package fs

import (
	"bytes"
	"encoding/binary"
	"termos/kernel"
)

// Limits describes the capacity the file system is sized for.
type Limits struct {
	DirEntries int
	Inodes     int
	DataBlocks int
}

// DefaultLimits matches the reference volume layout.
var DefaultLimits = Limits{DirEntries: MaxDirEntries, Inodes: 64, DataBlocks: 59}

var (
	ErrImageTooSmall  = &kernel.Error{Module: "fs", Message: "volume image is smaller than its boot block declares"}
	ErrLimitsExceeded = &kernel.Error{Module: "fs", Message: "boot block counts exceed the file system limits"}
	ErrCorruptEntry   = &kernel.Error{Module: "fs", Message: "directory entry references an invalid inode"}
	ErrNotFound       = &kernel.Error{Module: "fs", Message: "no such file"}
	ErrNameTooLong    = &kernel.Error{Module: "fs", Message: "file name too long"}
	ErrInvalidName    = &kernel.Error{Module: "fs", Message: "invalid file name"}
	ErrEndOfDirectory = &kernel.Error{Module: "fs", Message: "end of directory"}
	ErrInvalidInode   = &kernel.Error{Module: "fs", Message: "invalid inode"}
	ErrInvalidOffset  = &kernel.Error{Module: "fs", Message: "offset past end of file"}
	ErrCorruptInode   = &kernel.Error{Module: "fs", Message: "inode references an invalid data block"}
	ErrNoSpace        = &kernel.Error{Module: "fs", Message: "no free data blocks"}
	ErrFileTooLarge   = &kernel.Error{Module: "fs", Message: "file exceeds the maximum inode size"}
	ErrNoInodes       = &kernel.Error{Module: "fs", Message: "no free inodes"}
	ErrDirectoryFull  = &kernel.Error{Module: "fs", Message: "directory is full"}
	ErrExists         = &kernel.Error{Module: "fs", Message: "file already exists"}
	ErrNotRegular     = &kernel.Error{Module: "fs", Message: "not a regular file"}
	ErrOutOfRange     = &kernel.Error{Module: "fs", Message: "bitmap index out of range"}
	ErrBitmapMismatch = &kernel.Error{Module: "fs", Message: "allocation bitmap does not match the directory"}
	ErrNotInitialized = &kernel.Error{Module: "fs", Message: "file system not initialized"}
)

// FileSystem operates on an in-memory volume image. All mutations are
// applied to the image directly.
type FileSystem struct {
	image  []byte
	limits Limits

	inodeCount uint32
	blockCount uint32

	inodes *Bitmap
	blocks *Bitmap
}

// Stats summarises the allocation state.
type Stats struct {
	DirEntries    int
	MaxDirEntries int
	InodesUsed    int
	Inodes        int
	BlocksUsed    int
	Blocks        int
}

// Init parses the boot block of image and rebuilds the inode and data block
// bitmaps by scanning every live regular-file entry. Directory and device
// entries do not own an inode.
func (fs *FileSystem) Init(image []byte, limits Limits) *kernel.Error {
	if len(image) < BlockSize {
		return ErrImageTooSmall
	}
	if limits.DirEntries > MaxDirEntries {
		limits.DirEntries = MaxDirEntries
	}

	var hdr bootHeader
	_ = binary.Read(bytes.NewReader(image[:bootHeaderSize]), binary.LittleEndian, &hdr)

	if int(hdr.DirCount) > limits.DirEntries || int(hdr.InodeCount) > limits.Inodes || int(hdr.DataBlockCount) > limits.DataBlocks {
		return ErrLimitsExceeded
	}
	if len(image) < int(1+hdr.InodeCount+hdr.DataBlockCount)*BlockSize {
		return ErrImageTooSmall
	}

	fs.image = image
	fs.limits = limits
	fs.inodeCount = hdr.InodeCount
	fs.blockCount = hdr.DataBlockCount
	fs.inodes = NewBitmap(int(hdr.InodeCount))
	fs.blocks = NewBitmap(int(hdr.DataBlockCount))

	for i := 0; i < int(hdr.DirCount); i++ {
		entry := fs.entry(i)
		if entry.Type != TypeRegular {
			continue
		}
		if entry.Inode >= fs.inodeCount {
			fs.image = nil
			return ErrCorruptEntry
		}

		fs.inodes.Set(int(entry.Inode))
		length := fs.inodeLength(entry.Inode)
		if length > MaxFileSize {
			fs.image = nil
			return ErrCorruptInode
		}
		for j := uint32(0); j < blocksFor(length); j++ {
			block := fs.inodeBlock(entry.Inode, j)
			if block >= fs.blockCount {
				fs.image = nil
				return ErrCorruptInode
			}
			fs.blocks.Set(int(block))
		}
	}

	return nil
}

// Image returns the underlying volume image.
func (fs *FileSystem) Image() []byte {
	return fs.image
}

// Stats returns the allocation counters.
func (fs *FileSystem) Stats() Stats {
	return Stats{
		DirEntries:    fs.dirCount(),
		MaxDirEntries: fs.limits.DirEntries,
		InodesUsed:    fs.inodes.Used(),
		Inodes:        fs.inodes.Len(),
		BlocksUsed:    fs.blocks.Used(),
		Blocks:        fs.blocks.Len(),
	}
}

func (fs *FileSystem) dirCount() int {
	return int(binary.LittleEndian.Uint32(fs.image[0:]))
}

func (fs *FileSystem) setDirCount(n int) {
	binary.LittleEndian.PutUint32(fs.image[0:], uint32(n))
}

func (fs *FileSystem) entrySlot(i int) []byte {
	off := dirEntriesOffset + i*dirEntrySize
	return fs.image[off : off+dirEntrySize]
}

func (fs *FileSystem) entry(i int) DirEntry {
	return decodeDirEntry(fs.entrySlot(i))
}

func (fs *FileSystem) inodeOffset(inode uint32) int {
	return int(1+inode) * BlockSize
}

func (fs *FileSystem) blockOffset(block uint32) int {
	return int(1+fs.inodeCount+block) * BlockSize
}

func (fs *FileSystem) inodeLength(inode uint32) uint32 {
	return binary.LittleEndian.Uint32(fs.image[fs.inodeOffset(inode):])
}

func (fs *FileSystem) setInodeLength(inode, length uint32) {
	binary.LittleEndian.PutUint32(fs.image[fs.inodeOffset(inode):], length)
}

func (fs *FileSystem) inodeBlock(inode, index uint32) uint32 {
	return binary.LittleEndian.Uint32(fs.image[fs.inodeOffset(inode)+4+int(index)*4:])
}

func (fs *FileSystem) setInodeBlock(inode, index, block uint32) {
	binary.LittleEndian.PutUint32(fs.image[fs.inodeOffset(inode)+4+int(index)*4:], block)
}

func (fs *FileSystem) block(block uint32) []byte {
	off := fs.blockOffset(block)
	return fs.image[off : off+BlockSize]
}
