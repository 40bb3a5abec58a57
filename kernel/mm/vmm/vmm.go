// Package vmm implements the two-level x86 paging structures of the kernel
// together with a software MMU that walks them.
package vmm

import (
	"termos/kernel"
	"termos/kernel/cpu"
	"termos/kernel/mm"
)

const (
	pdeKernel    = KernelBase >> mm.LargePageShift
	pdeUser      = UserBase >> mm.LargePageShift
	pdeUserVideo = UserVideoAddr >> mm.LargePageShift
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory
	// address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrProtection is returned when a mapped page is accessed without the
	// required privilege or write permission.
	ErrProtection = &kernel.Error{Module: "vmm", Message: "page protection violation"}

	// ErrBadUserPointer is returned when a user buffer is outside the user
	// page.
	ErrBadUserPointer = &kernel.Error{Module: "vmm", Message: "user pointer outside of the user address range"}

	// ErrStringTooLong is returned by ReadUserString when no terminator is
	// found within the permitted length.
	ErrStringTooLong = &kernel.Error{Module: "vmm", Message: "user string is not terminated"}
)

type tlbEntry struct {
	frameAddr uint32
	flags     PageTableEntryFlag
}

// Manager owns the page directory and the kernel page tables and performs
// address translation for every memory access made by the kernel and by
// user programs.
type Manager struct {
	cpu *cpu.CPU
	mem *mm.PhysicalMemory

	dir       pageTable
	low       pageTable
	userVideo pageTable

	tables map[mm.Frame]*pageTable

	tlb      map[mm.Page]tlbEntry
	tlbLoads uint64
}

// NewManager returns a Manager for the supplied CPU and memory. Init must be
// called before paging is used.
func NewManager(c *cpu.CPU, mem *mm.PhysicalMemory) *Manager {
	m := &Manager{
		cpu: c,
		mem: mem,
		tlb: make(map[mm.Page]tlbEntry),
	}
	m.tables = map[mm.Frame]*pageTable{
		mm.FrameFromAddress(lowPageTableAddr):   &m.low,
		mm.FrameFromAddress(videoPageTableAddr): &m.userVideo,
	}
	return m
}

// Init builds the kernel mappings and turns paging on:
//  - PD[0] points to a page table that maps the video buffer and the
//    terminal backup buffers
//  - PD[1] maps the 4 MiB kernel page
//  - PD[33] points to the user video page table (no page present yet)
func (m *Manager) Init() *kernel.Error {
	m.dir = pageTable{}
	m.low = pageTable{}
	m.userVideo = pageTable{}

	m.low[mm.PageFromAddress(VideoAddr)] = makeEntry(VideoAddr, FlagPresent|FlagRW)
	for term := 0; term < 3; term++ {
		addr := VideoBackupAddr(term)
		m.low[mm.PageFromAddress(addr)] = makeEntry(addr, FlagPresent|FlagRW)
	}

	m.dir[0] = makeEntry(lowPageTableAddr, FlagPresent|FlagRW)
	m.dir[pdeKernel] = makeEntry(KernelBase, FlagPresent|FlagRW|FlagHugePage|FlagGlobal)
	m.dir[pdeUserVideo] = makeEntry(videoPageTableAddr, FlagPresent|FlagRW|FlagUserAccessible)

	m.cpu.SwitchPDT(PageDirectoryAddr)
	m.cpu.EnablePaging()
	return nil
}

// MapProcess installs the 4 MiB user page of pid at UserBase and reloads
// CR3. It returns the physical address backing the page.
func (m *Manager) MapProcess(pid int) uint32 {
	phys := UserPhysAddr(pid)
	m.dir[pdeUser] = makeEntry(phys, FlagPresent|FlagRW|FlagUserAccessible|FlagHugePage)
	m.flush()
	return phys
}

// MapVideo points the user video page and the kernel's view of the video
// buffer at the buffer owned by term: the real video memory when term is the
// displayed terminal or the terminal's backup otherwise. The user page is
// only marked present if live is set. MapVideo returns UserVideoAddr.
func (m *Manager) MapVideo(term, displayed int, live bool) uint32 {
	target := VideoAddr
	if term != displayed {
		target = VideoBackupAddr(term)
	}

	userFlags := FlagRW | FlagUserAccessible
	if live {
		userFlags |= FlagPresent
	}
	m.userVideo[0] = makeEntry(target, userFlags)
	m.low[mm.PageFromAddress(VideoAddr)] = makeEntry(target, FlagPresent|FlagRW)

	m.flush()
	return UserVideoAddr
}

// UnmapVideo clears the present bit of the user video page. The translation
// itself is kept.
func (m *Manager) UnmapVideo() {
	m.userVideo[0].ClearFlags(FlagPresent)
	m.flush()
}

// KernelVideoTarget returns the physical buffer the kernel's video address
// currently resolves to.
func (m *Manager) KernelVideoTarget() uint32 {
	return uint32(m.low[mm.PageFromAddress(VideoAddr)]) & ptePhysPageMask
}

// SetKernelVideoTarget redirects the kernel's view of the video buffer to
// physAddr and returns the previous target.
func (m *Manager) SetKernelVideoTarget(physAddr uint32) uint32 {
	prev := m.KernelVideoTarget()
	m.low[mm.PageFromAddress(VideoAddr)] = makeEntry(physAddr, FlagPresent|FlagRW)
	m.flush()
	return prev
}

// UserVideoPresent reports whether the user video page is currently mapped.
func (m *Manager) UserVideoPresent() bool {
	return m.userVideo[0].HasFlags(FlagPresent)
}

// flush reloads CR3 which drops every non-global TLB entry.
func (m *Manager) flush() {
	m.cpu.SwitchPDT(m.cpu.ActivePDT())
}
