package vmm

import "termos/kernel/mm"

// PageTableEntryFlag describes a flag that can be applied to a page
// directory or page table entry.
type PageTableEntryFlag uint32

const (
	// FlagPresent is set when the page is available in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if ring 3 code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and
	// write-back caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the MMU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the MMU when this page is modified.
	FlagDirty

	// FlagHugePage marks a directory entry that maps a 4 MiB page.
	FlagHugePage

	// FlagGlobal keeps the translation in the TLB across CR3 reloads.
	FlagGlobal
)

const (
	// ptePhysPageMask extracts the 4 KiB frame address from an entry.
	ptePhysPageMask = uint32(0xfffff000)

	// pdeHugePageMask extracts the 4 MiB frame address from a directory
	// entry with FlagHugePage set.
	pdeHugePageMask = uint32(0xffc00000)

	// entriesPerTable is the number of entries in a directory or table.
	entriesPerTable = 1024
)

// pageTableEntry describes a 32-bit page directory or page table entry.
type pageTableEntry uint32

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint32(*pte) | uint32(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint32(*pte) &^ uint32(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.FrameFromAddress(uint32(pte) & ptePhysPageMask)
}

// SetFrame updates the page table entry to point to the given physical frame.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = pageTableEntry((uint32(*pte) &^ ptePhysPageMask) | frame.Address())
}

// Flags returns the flag bits of the entry.
func (pte pageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint32(pte) &^ ptePhysPageMask)
}

// makeEntry returns an entry pointing at physAddr with the given flags.
func makeEntry(physAddr uint32, flags PageTableEntryFlag) pageTableEntry {
	return pageTableEntry((physAddr & ptePhysPageMask) | uint32(flags))
}

// pageTable is a 4 KiB aligned page directory or page table.
type pageTable [entriesPerTable]pageTableEntry
