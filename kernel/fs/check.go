package fs

import "termos/kernel"

var (
	// ErrZombieInode is reported when an inode is marked used but no
	// directory entry references it.
	ErrZombieInode = &kernel.Error{Module: "fs", Message: "found zombie inode that isn't used by the file system"}

	// ErrSharedInode is reported when two directory entries reference
	// the same inode.
	ErrSharedInode = &kernel.Error{Module: "fs", Message: "inode is referenced by more than one directory entry"}

	// ErrSharedBlock is reported when two inodes reference the same data
	// block.
	ErrSharedBlock = &kernel.Error{Module: "fs", Message: "data block is owned by more than one inode"}
)

// Check verifies that the in-memory bitmaps describe exactly the inodes and
// data blocks reachable from the live directory entries and that no inode or
// block is shared.
func (fs *FileSystem) Check() *kernel.Error {
	usedInodes := make(map[uint32]bool)
	usedBlocks := make(map[uint32]bool)

	for i := 0; i < fs.dirCount(); i++ {
		entry := fs.entry(i)
		if entry.Type != TypeRegular {
			continue
		}
		if entry.Inode >= fs.inodeCount {
			return ErrCorruptEntry
		}
		if usedInodes[entry.Inode] {
			return ErrSharedInode
		}
		usedInodes[entry.Inode] = true

		if !fs.inodes.Get(int(entry.Inode)) {
			return ErrBitmapMismatch
		}

		for j := uint32(0); j < blocksFor(fs.inodeLength(entry.Inode)); j++ {
			block := fs.inodeBlock(entry.Inode, j)
			switch {
			case block >= fs.blockCount:
				return ErrCorruptInode
			case usedBlocks[block]:
				return ErrSharedBlock
			case !fs.blocks.Get(int(block)):
				return ErrBitmapMismatch
			}
			usedBlocks[block] = true
		}
	}

	for i := 0; i < fs.inodes.Len(); i++ {
		if fs.inodes.Get(i) && !usedInodes[uint32(i)] {
			return ErrZombieInode
		}
	}

	if fs.inodes.Used() != len(usedInodes) || fs.blocks.Used() != len(usedBlocks) {
		return ErrBitmapMismatch
	}

	return nil
}
