package vmm

import (
	"termos/kernel"
	"termos/kernel/mm"
)

// Translate returns the physical address that corresponds to the supplied
// virtual address. User accesses require every level of the walk to carry
// FlagUserAccessible. A failed translation records the faulting address in
// CR2.
func (m *Manager) Translate(virtAddr uint32, user bool) (uint32, *kernel.Error) {
	return m.translate(virtAddr, user, false)
}

func (m *Manager) translate(virtAddr uint32, user, write bool) (uint32, *kernel.Error) {
	if !m.cpu.PagingEnabled() {
		return virtAddr, nil
	}

	if loads := m.cpu.PDTLoads(); loads != m.tlbLoads {
		for page, entry := range m.tlb {
			if entry.flags&FlagGlobal == 0 {
				delete(m.tlb, page)
			}
		}
		m.tlbLoads = loads
	}

	page := mm.PageFromAddress(virtAddr)
	entry, ok := m.tlb[page]
	if !ok {
		var err *kernel.Error
		if entry, err = m.walk(virtAddr); err != nil {
			m.cpu.SetCR2(virtAddr)
			return 0, err
		}
		m.tlb[page] = entry
	}

	if (user && entry.flags&FlagUserAccessible == 0) || (write && entry.flags&FlagRW == 0) {
		m.cpu.SetCR2(virtAddr)
		return 0, ErrProtection
	}

	return entry.frameAddr + (virtAddr & (mm.PageSize - 1)), nil
}

// walk resolves virtAddr through the page directory and, for 4 KiB pages,
// the page table it points to. Accessed bits are set along the way.
func (m *Manager) walk(virtAddr uint32) (tlbEntry, *kernel.Error) {
	pde := &m.dir[virtAddr>>mm.LargePageShift]
	if !pde.HasFlags(FlagPresent) {
		return tlbEntry{}, ErrInvalidMapping
	}
	pde.SetFlags(FlagAccessed)

	if pde.HasFlags(FlagHugePage) {
		offset := virtAddr & (mm.LargePageSize - 1) &^ (mm.PageSize - 1)
		return tlbEntry{
			frameAddr: (uint32(*pde) & pdeHugePageMask) + offset,
			flags:     pde.Flags(),
		}, nil
	}

	table := m.tables[pde.Frame()]
	if table == nil {
		return tlbEntry{}, ErrInvalidMapping
	}

	pte := &table[(virtAddr>>mm.PageShift)&(entriesPerTable-1)]
	if !pte.HasFlags(FlagPresent) {
		return tlbEntry{}, ErrInvalidMapping
	}
	pte.SetFlags(FlagAccessed)

	// Privilege and write checks use the most restrictive combination
	// of both levels.
	flags := pte.Flags() &^ (FlagUserAccessible | FlagRW)
	flags |= pte.Flags() & pde.Flags() & (FlagUserAccessible | FlagRW)
	return tlbEntry{frameAddr: uint32(*pte) & ptePhysPageMask, flags: flags}, nil
}

// access copies between p and virtual memory one page at a time.
func (m *Manager) access(virtAddr uint32, p []byte, user, write bool) *kernel.Error {
	for len(p) > 0 {
		phys, err := m.translate(virtAddr, user, write)
		if err != nil {
			return err
		}

		chunk := len(p)
		if rem := int(mm.PageSize - (virtAddr & (mm.PageSize - 1))); chunk > rem {
			chunk = rem
		}

		if write {
			m.mem.Write(phys, p[:chunk])
		} else {
			m.mem.Read(phys, p[:chunk])
		}

		p = p[chunk:]
		virtAddr += uint32(chunk)
	}
	return nil
}

// KernelRead reads len(p) bytes at virtAddr with supervisor privileges.
func (m *Manager) KernelRead(virtAddr uint32, p []byte) *kernel.Error {
	return m.access(virtAddr, p, false, false)
}

// KernelWrite writes p at virtAddr with supervisor privileges.
func (m *Manager) KernelWrite(virtAddr uint32, p []byte) *kernel.Error {
	return m.access(virtAddr, p, false, true)
}

// UserRead reads len(p) bytes at virtAddr with user privileges. Unlike
// CopyFromUser it does not restrict the address to the user page so it can
// also reach the vidmap page.
func (m *Manager) UserRead(virtAddr uint32, p []byte) *kernel.Error {
	return m.access(virtAddr, p, true, false)
}

// UserWrite writes p at virtAddr with user privileges.
func (m *Manager) UserWrite(virtAddr uint32, p []byte) *kernel.Error {
	return m.access(virtAddr, p, true, true)
}

// CopyFromUser copies a buffer that must lie inside the user page into p.
func (m *Manager) CopyFromUser(virtAddr uint32, p []byte) *kernel.Error {
	if !UserRange(virtAddr, uint32(len(p))) {
		return ErrBadUserPointer
	}
	return m.access(virtAddr, p, true, false)
}

// CopyToUser copies p into a buffer that must lie inside the user page.
func (m *Manager) CopyToUser(virtAddr uint32, p []byte) *kernel.Error {
	if !UserRange(virtAddr, uint32(len(p))) {
		return ErrBadUserPointer
	}
	return m.access(virtAddr, p, true, true)
}

// ReadUser32 reads a little-endian word from the user page.
func (m *Manager) ReadUser32(virtAddr uint32) (uint32, *kernel.Error) {
	var buf [4]byte
	if err := m.CopyFromUser(virtAddr, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// WriteUser32 stores a little-endian word in the user page.
func (m *Manager) WriteUser32(virtAddr, val uint32) *kernel.Error {
	buf := [4]byte{byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24)}
	return m.CopyToUser(virtAddr, buf[:])
}

// ReadUserString reads a NUL-terminated string of at most maxLen bytes
// (terminator excluded) from the user page.
func (m *Manager) ReadUserString(virtAddr uint32, maxLen int) (string, *kernel.Error) {
	var (
		out []byte
		ch  [1]byte
	)
	for i := 0; i <= maxLen; i++ {
		if err := m.CopyFromUser(virtAddr+uint32(i), ch[:]); err != nil {
			return "", err
		}
		if ch[0] == 0 {
			return string(out), nil
		}
		out = append(out, ch[0])
	}
	return "", ErrStringTooLong
}
