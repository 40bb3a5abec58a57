package vmm

const (
	// VideoAddr is the physical (and kernel virtual) address of the
	// text-mode video buffer.
	VideoAddr = uint32(0xb8000)

	// VideoBackupBase is the physical address of terminal 0's backup video
	// buffer; terminal n uses VideoBackupBase + n pages.
	VideoBackupBase = uint32(0xba000)

	// VideoSize is the number of bytes of an 80x25 text screen.
	VideoSize = uint32(80 * 25 * 2)

	// KernelBase is the physical and virtual address of the kernel page.
	KernelBase = uint32(0x400000)

	// KernelStackTop is the top of the kernel region used for per-process
	// kernel stacks.
	KernelStackTop = uint32(0x800000)

	// UserPhysBase is the physical address of pid 0's user page.
	UserPhysBase = uint32(0x800000)

	// UserBase is the virtual address of the user page.
	UserBase = uint32(0x08000000)

	// UserTop is the first address past the user page.
	UserTop = uint32(0x08400000)

	// ProgramImageAddr is where executables are loaded.
	ProgramImageAddr = uint32(0x08048000)

	// UserStackTop is the initial user ESP.
	UserStackTop = UserTop - 4

	// UserVideoAddr is the address that vidmap hands to user programs.
	UserVideoAddr = uint32(0x08400000)

	// Physical addresses of the paging structures inside the kernel page.
	PageDirectoryAddr  = uint32(0x5fd000)
	lowPageTableAddr   = uint32(0x5fe000)
	videoPageTableAddr = uint32(0x5ff000)
)

// VideoBackupAddr returns the physical address of a terminal's backup video
// buffer.
func VideoBackupAddr(term int) uint32 {
	return VideoBackupBase + uint32(term)<<12
}

// UserPhysAddr returns the physical address of the 4 MiB page backing the
// user space of pid.
func UserPhysAddr(pid int) uint32 {
	return UserPhysBase + uint32(pid)<<22
}

// UserRange returns true if the n-byte range starting at addr lies inside
// the user page.
func UserRange(addr, n uint32) bool {
	if addr < UserBase || addr >= UserTop {
		return false
	}
	return n <= UserTop-addr
}
