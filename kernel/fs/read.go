package fs

import "termos/kernel"

// LookupByName returns the directory entry whose name matches name exactly.
func (fs *FileSystem) LookupByName(name string) (DirEntry, *kernel.Error) {
	if len(name) > MaxNameLen {
		return DirEntry{}, ErrNameTooLong
	}
	if name == "" {
		return DirEntry{}, ErrNotFound
	}

	if i := fs.indexOf(name); i >= 0 {
		return fs.entry(i), nil
	}
	return DirEntry{}, ErrNotFound
}

// LookupByIndex returns the directory entry stored at slot i.
func (fs *FileSystem) LookupByIndex(i int) (DirEntry, *kernel.Error) {
	if i < 0 || i >= fs.dirCount() {
		return DirEntry{}, ErrNotFound
	}
	return fs.entry(i), nil
}

// ReadDir returns the name stored at directory slot index. Reading the slot
// just past the last live entry returns ErrEndOfDirectory.
func (fs *FileSystem) ReadDir(index int) (string, *kernel.Error) {
	count := fs.dirCount()
	switch {
	case index == count:
		return "", ErrEndOfDirectory
	case index < 0 || index > count:
		return "", ErrNotFound
	}
	return fs.entry(index).Name, nil
}

// Entries returns a copy of the live directory entries in slot order.
func (fs *FileSystem) Entries() []DirEntry {
	entries := make([]DirEntry, fs.dirCount())
	for i := range entries {
		entries[i] = fs.entry(i)
	}
	return entries
}

// Length returns the size in bytes of the file described by inode.
func (fs *FileSystem) Length(inode uint32) (uint32, *kernel.Error) {
	if inode >= fs.inodeCount {
		return 0, ErrInvalidInode
	}
	return fs.inodeLength(inode), nil
}

// ReadData copies up to len(buf) bytes of the file described by inode,
// starting at offset, into buf. Reads are clamped to the file length; a read
// at the end of the file returns 0. Offsets beyond the end of the file fail
// with ErrInvalidOffset and a data block index outside the volume fails with
// ErrCorruptInode.
func (fs *FileSystem) ReadData(inode, offset uint32, buf []byte) (int, *kernel.Error) {
	if inode >= fs.inodeCount {
		return 0, ErrInvalidInode
	}

	length := fs.inodeLength(inode)
	if offset > length {
		return 0, ErrInvalidOffset
	}

	remaining := length - offset
	if uint32(len(buf)) < remaining {
		remaining = uint32(len(buf))
	}

	var read int
	for remaining > 0 {
		index := offset / BlockSize
		if index >= MaxInodeBlocks {
			return read, ErrCorruptInode
		}
		block := fs.inodeBlock(inode, index)
		if block >= fs.blockCount {
			return read, ErrCorruptInode
		}

		n := copy(buf[read:read+int(remaining)], fs.block(block)[offset%BlockSize:])
		read += n
		offset += uint32(n)
		remaining -= uint32(n)
	}

	return read, nil
}

func (fs *FileSystem) indexOf(name string) int {
	for i := 0; i < fs.dirCount(); i++ {
		if fs.entry(i).Name == name {
			return i
		}
	}
	return -1
}
