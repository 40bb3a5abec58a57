// Package mm defines the page and frame types shared by the memory
// management code together with the machine's physical memory.
package mm

const (
	// PageShift is equal to log2(PageSize).
	PageShift = 12

	// PageSize defines the small page size in bytes.
	PageSize = uint32(1 << PageShift)

	// LargePageShift is equal to log2(LargePageSize).
	LargePageShift = 22

	// LargePageSize defines the size of a PSE page in bytes.
	LargePageSize = uint32(1 << LargePageShift)
)

// Frame describes a physical memory page index.
type Frame uint32

// Address returns the physical address of the first byte of this Frame.
func (f Frame) Address() uint32 {
	return uint32(f) << PageShift
}

// FrameFromAddress returns the Frame that contains physAddr.
func FrameFromAddress(physAddr uint32) Frame {
	return Frame(physAddr >> PageShift)
}

// Page describes a virtual memory page index.
type Page uint32

// Address returns the virtual address of the first byte of this Page.
func (p Page) Address() uint32 {
	return uint32(p) << PageShift
}

// PageFromAddress returns the Page that contains virtAddr.
func PageFromAddress(virtAddr uint32) Page {
	return Page(virtAddr >> PageShift)
}
