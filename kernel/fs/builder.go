package fs

import (
	"encoding/binary"
	"termos/kernel"
)

type builderEntry struct {
	name string
	typ  FileType
	data []byte
}

// Builder assembles a volume image. Regular files receive inodes and data
// blocks in the order they are added.
type Builder struct {
	limits  Limits
	entries []builderEntry
	inodes  int
	blocks  int
}

// NewBuilder returns a Builder for an image sized to limits.
func NewBuilder(limits Limits) *Builder {
	if limits.DirEntries > MaxDirEntries {
		limits.DirEntries = MaxDirEntries
	}
	return &Builder{limits: limits}
}

// AddDirectory adds a directory entry.
func (b *Builder) AddDirectory(name string) *kernel.Error {
	return b.add(builderEntry{name: name, typ: TypeDirectory})
}

// AddDevice adds a device entry.
func (b *Builder) AddDevice(name string) *kernel.Error {
	return b.add(builderEntry{name: name, typ: TypeDevice})
}

// AddFile adds a regular file with the given contents.
func (b *Builder) AddFile(name string, data []byte) *kernel.Error {
	if len(data) > MaxFileSize {
		return ErrFileTooLarge
	}
	if b.inodes >= b.limits.Inodes {
		return ErrNoInodes
	}
	if b.blocks+int(blocksFor(uint32(len(data)))) > b.limits.DataBlocks {
		return ErrNoSpace
	}
	if err := b.add(builderEntry{name: name, typ: TypeRegular, data: data}); err != nil {
		return err
	}

	b.inodes++
	b.blocks += int(blocksFor(uint32(len(data))))
	return nil
}

// AddExecutable adds a regular file holding an executable image.
func (b *Builder) AddExecutable(name string, entry uint32, body []byte) *kernel.Error {
	return b.AddFile(name, Executable(entry, body))
}

func (b *Builder) add(e builderEntry) *kernel.Error {
	if err := validName(e.name); err != nil {
		return err
	}
	if len(b.entries) >= b.limits.DirEntries {
		return ErrDirectoryFull
	}
	for _, existing := range b.entries {
		if existing.name == e.name {
			return ErrExists
		}
	}
	b.entries = append(b.entries, e)
	return nil
}

// Build returns the volume image.
func (b *Builder) Build() []byte {
	inodeCount := uint32(b.limits.Inodes)
	blockCount := uint32(b.limits.DataBlocks)
	image := make([]byte, int(1+inodeCount+blockCount)*BlockSize)

	binary.LittleEndian.PutUint32(image[0:], uint32(len(b.entries)))
	binary.LittleEndian.PutUint32(image[4:], inodeCount)
	binary.LittleEndian.PutUint32(image[8:], blockCount)

	var nextInode, nextBlock uint32
	for i, e := range b.entries {
		entry := DirEntry{Name: e.name, Type: e.typ}
		if e.typ == TypeRegular {
			entry.Inode = nextInode
			inodeOff := int(1+nextInode) * BlockSize
			binary.LittleEndian.PutUint32(image[inodeOff:], uint32(len(e.data)))

			for j := uint32(0); j < blocksFor(uint32(len(e.data))); j++ {
				binary.LittleEndian.PutUint32(image[inodeOff+4+int(j)*4:], nextBlock)
				blockOff := int(1+inodeCount+nextBlock) * BlockSize
				end := (j + 1) * BlockSize
				if end > uint32(len(e.data)) {
					end = uint32(len(e.data))
				}
				copy(image[blockOff:], e.data[j*BlockSize:end])
				nextBlock++
			}
			nextInode++
		}

		off := dirEntriesOffset + i*dirEntrySize
		encodeDirEntry(image[off:off+dirEntrySize], entry)
	}

	return image
}
