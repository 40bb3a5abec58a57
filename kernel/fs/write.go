package fs

import "termos/kernel"

// WriteData replaces the contents of the file described by inode with data.
// Writes always start at offset 0: every block owned by the inode is freed
// first and fresh blocks are then allocated first-fit. The checks run
// before anything is modified so a failed write leaves the file intact.
//
// Like CreateEntry, WriteData fails while the directory or the inode table
// is full. The data must fit in the free blocks plus the blocks the file
// already owns.
func (fs *FileSystem) WriteData(inode uint32, data []byte) (int, *kernel.Error) {
	if inode >= fs.inodeCount || !fs.inodes.Get(int(inode)) {
		return 0, ErrInvalidInode
	}
	if len(data) > MaxFileSize {
		return 0, ErrFileTooLarge
	}
	if err := fs.checkCapacity(); err != nil {
		return 0, err
	}

	owned := blocksFor(fs.inodeLength(inode))
	needed := blocksFor(uint32(len(data)))
	if int(needed) > fs.blocks.Free()+int(owned) {
		return 0, ErrNoSpace
	}

	fs.releaseBlocks(inode)

	for index := uint32(0); index < needed; index++ {
		block := uint32(fs.blocks.FirstFree())
		fs.blocks.Set(int(block))
		fs.setInodeBlock(inode, index, block)

		start := index * BlockSize
		end := start + BlockSize
		if end > uint32(len(data)) {
			end = uint32(len(data))
		}

		dst := fs.block(block)
		n := copy(dst, data[start:end])
		for i := n; i < BlockSize; i++ {
			dst[i] = 0
		}
	}

	fs.setInodeLength(inode, uint32(len(data)))
	return len(data), nil
}

// CreateEntry appends a zero-length regular file called name to the
// directory, backed by the lowest free inode. It fails when the directory,
// the inode table or the data blocks are exhausted.
func (fs *FileSystem) CreateEntry(name string) *kernel.Error {
	if err := validName(name); err != nil {
		return err
	}
	if fs.indexOf(name) >= 0 {
		return ErrExists
	}

	if err := fs.checkCapacity(); err != nil {
		return err
	}
	if fs.blocks.Free() == 0 {
		return ErrNoSpace
	}

	count := fs.dirCount()
	inode := fs.inodes.FirstFree()

	fs.inodes.Set(inode)
	fs.setInodeLength(uint32(inode), 0)
	encodeDirEntry(fs.entrySlot(count), DirEntry{Name: name, Type: TypeRegular, Inode: uint32(inode)})
	fs.setDirCount(count + 1)

	return nil
}

// DeleteEntry removes the regular file called name, freeing its inode and
// data blocks. Subsequent entries shift down one slot so the directory
// stays dense.
func (fs *FileSystem) DeleteEntry(name string) *kernel.Error {
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}

	index := fs.indexOf(name)
	if index < 0 {
		return ErrNotFound
	}

	entry := fs.entry(index)
	if entry.Type != TypeRegular {
		return ErrNotRegular
	}

	fs.releaseBlocks(entry.Inode)
	fs.setInodeLength(entry.Inode, 0)
	fs.inodes.Clear(int(entry.Inode))

	count := fs.dirCount()
	for i := index; i < count-1; i++ {
		copy(fs.entrySlot(i), fs.entrySlot(i+1))
	}
	last := fs.entrySlot(count - 1)
	for i := range last {
		last[i] = 0
	}
	fs.setDirCount(count - 1)

	return nil
}

// checkCapacity fails when no directory entry or no inode is left.
func (fs *FileSystem) checkCapacity() *kernel.Error {
	if fs.dirCount() >= fs.limits.DirEntries {
		return ErrDirectoryFull
	}
	if fs.inodes.FirstFree() < 0 {
		return ErrNoInodes
	}
	return nil
}

// releaseBlocks returns every data block owned by inode to the bitmap.
func (fs *FileSystem) releaseBlocks(inode uint32) {
	owned := blocksFor(fs.inodeLength(inode))
	for index := uint32(0); index < owned; index++ {
		fs.blocks.Clear(int(fs.inodeBlock(inode, index)))
		fs.setInodeBlock(inode, index, 0)
	}
}

func validName(name string) *kernel.Error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c == 0 || c == '/' || c == ' ' || c == '\n' {
			return ErrInvalidName
		}
	}
	return nil
}
