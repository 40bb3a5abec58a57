package vmm

import (
	"bytes"
	"termos/kernel/cpu"
	"termos/kernel/mm"
	"testing"
)

func newTestManager(t *testing.T) (*Manager, *cpu.CPU, *mm.PhysicalMemory) {
	c := cpu.New()
	mem := mm.NewPhysicalMemory()
	m := NewManager(c, mem)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	return m, c, mem
}

func TestInit(t *testing.T) {
	m, c, _ := newTestManager(t)

	if !c.PagingEnabled() {
		t.Fatal("expected Init to enable paging")
	}
	if c.ReadCR4()&cpu.CR4PSE == 0 {
		t.Fatal("expected Init to enable 4 MiB pages")
	}
	if exp, got := PageDirectoryAddr, c.ActivePDT(); got != exp {
		t.Fatalf("expected CR3 to be 0x%x; got 0x%x", exp, got)
	}

	if !m.dir[pdeKernel].HasFlags(FlagPresent | FlagHugePage | FlagGlobal) {
		t.Fatal("expected PD[1] to map the global 4 MiB kernel page")
	}
	if m.dir[pdeKernel].HasFlags(FlagUserAccessible) {
		t.Fatal("expected the kernel page to be supervisor only")
	}

	specs := []struct {
		virt    uint32
		user    bool
		expPhys uint32
		expErr  bool
	}{
		{VideoAddr + 0x10, false, VideoAddr + 0x10, false},
		{VideoBackupAddr(2) + 4, false, VideoBackupAddr(2) + 4, false},
		{KernelBase + 0x12345, false, KernelBase + 0x12345, false},
		{KernelBase + 0x12345, true, 0, true},
		{VideoAddr, true, 0, true},
		{0x1000, false, 0, true},
		{UserBase, true, 0, true},
		{UserVideoAddr, true, 0, true},
	}

	for specIndex, spec := range specs {
		phys, err := m.Translate(spec.virt, spec.user)
		switch {
		case spec.expErr && err == nil:
			t.Errorf("[spec %d] expected translation of 0x%x to fail", specIndex, spec.virt)
		case !spec.expErr && err != nil:
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
		case !spec.expErr && phys != spec.expPhys:
			t.Errorf("[spec %d] expected phys addr to be 0x%x; got 0x%x", specIndex, spec.expPhys, phys)
		}
	}
}

func TestMapProcess(t *testing.T) {
	m, c, _ := newTestManager(t)

	for pid := 0; pid < 6; pid++ {
		loads := c.PDTLoads()
		if exp, got := uint32(0x800000+pid*0x400000), m.MapProcess(pid); got != exp {
			t.Fatalf("expected pid %d user page at 0x%x; got 0x%x", pid, exp, got)
		}
		if c.PDTLoads() == loads {
			t.Fatalf("expected MapProcess to reload CR3")
		}

		phys, err := m.Translate(ProgramImageAddr, true)
		if err != nil {
			t.Fatal(err)
		}
		if exp := UserPhysAddr(pid) + (ProgramImageAddr - UserBase); phys != exp {
			t.Fatalf("expected 0x%x to translate to 0x%x for pid %d; got 0x%x", ProgramImageAddr, exp, pid, phys)
		}
	}
}

func TestTLBFlushOnReload(t *testing.T) {
	m, c, _ := newTestManager(t)
	m.MapProcess(3)

	if _, err := m.Translate(UserBase, true); err != nil {
		t.Fatal(err)
	}

	// Editing the directory without a reload leaves the cached
	// translation in place.
	m.dir[pdeUser] = makeEntry(UserPhysAddr(4), FlagPresent|FlagRW|FlagUserAccessible|FlagHugePage)
	if phys, _ := m.Translate(UserBase, true); phys != UserPhysAddr(3) {
		t.Fatalf("expected stale translation 0x%x before CR3 reload; got 0x%x", UserPhysAddr(3), phys)
	}

	c.SwitchPDT(c.ActivePDT())
	if phys, _ := m.Translate(UserBase, true); phys != UserPhysAddr(4) {
		t.Fatalf("expected fresh translation 0x%x after CR3 reload; got 0x%x", UserPhysAddr(4), phys)
	}
}

func TestMapVideo(t *testing.T) {
	specs := []struct {
		term, displayed int
		live            bool
		expTarget       uint32
	}{
		{0, 0, true, VideoAddr},
		{1, 0, true, VideoBackupAddr(1)},
		{2, 1, false, VideoBackupAddr(2)},
		{2, 2, false, VideoAddr},
	}

	for specIndex, spec := range specs {
		m, c, _ := newTestManager(t)

		if got := m.MapVideo(spec.term, spec.displayed, spec.live); got != UserVideoAddr {
			t.Errorf("[spec %d] expected MapVideo to return 0x%x; got 0x%x", specIndex, UserVideoAddr, got)
		}

		if got := m.KernelVideoTarget(); got != spec.expTarget {
			t.Errorf("[spec %d] expected kernel video target 0x%x; got 0x%x", specIndex, spec.expTarget, got)
		}

		phys, err := m.Translate(UserVideoAddr+8, true)
		switch {
		case spec.live && err != nil:
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
		case spec.live && phys != spec.expTarget+8:
			t.Errorf("[spec %d] expected user video to translate to 0x%x; got 0x%x", specIndex, spec.expTarget+8, phys)
		case !spec.live && err != ErrInvalidMapping:
			t.Errorf("[spec %d] expected ErrInvalidMapping for a non-live mapping; got %v", specIndex, err)
		case !spec.live && c.ReadCR2() != UserVideoAddr+8:
			t.Errorf("[spec %d] expected CR2 to hold the faulting address", specIndex)
		}

		m.UnmapVideo()
		if m.UserVideoPresent() {
			t.Errorf("[spec %d] expected UnmapVideo to clear the present bit", specIndex)
		}
		if got := uint32(m.userVideo[0]) & ptePhysPageMask; got != spec.expTarget {
			t.Errorf("[spec %d] expected UnmapVideo to keep the translation 0x%x; got 0x%x", specIndex, spec.expTarget, got)
		}
	}
}

func TestUserCopies(t *testing.T) {
	m, _, mem := newTestManager(t)
	m.MapProcess(2)

	payload := []byte("391OS> ")
	if err := m.CopyToUser(UserStackTop-16, payload); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(payload))
	mem.Read(UserPhysAddr(2)+(UserStackTop-16-UserBase), got)
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected physical memory to contain %q; got %q", payload, got)
	}

	if err := m.CopyToUser(UserTop-2, payload); err != ErrBadUserPointer {
		t.Fatalf("expected ErrBadUserPointer; got %v", err)
	}
	if err := m.CopyFromUser(KernelBase, got); err != ErrBadUserPointer {
		t.Fatalf("expected ErrBadUserPointer; got %v", err)
	}

	if err := m.WriteUser32(UserBase+0x100, 0x08400000); err != nil {
		t.Fatal(err)
	}
	if v, err := m.ReadUser32(UserBase + 0x100); err != nil || v != 0x08400000 {
		t.Fatalf("expected to read back 0x08400000; got 0x%x (%v)", v, err)
	}

	m.CopyToUser(UserBase+0x200, []byte("shell\x00"))
	if s, err := m.ReadUserString(UserBase+0x200, 32); err != nil || s != "shell" {
		t.Fatalf("expected to read %q; got %q (%v)", "shell", s, err)
	}
	if _, err := m.ReadUserString(UserBase+0x200, 3); err != ErrStringTooLong {
		t.Fatalf("expected ErrStringTooLong; got %v", err)
	}
}

func TestKernelWriteFollowsVideoRedirect(t *testing.T) {
	m, _, mem := newTestManager(t)

	m.MapVideo(1, 0, false)
	if err := m.KernelWrite(VideoAddr, []byte{'A', 0x07}); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 2)
	mem.Read(VideoBackupAddr(1), got)
	if got[0] != 'A' {
		t.Fatalf("expected kernel write to land in terminal 1 backup; got %v", got)
	}

	prev := m.SetKernelVideoTarget(VideoAddr)
	if prev != VideoBackupAddr(1) {
		t.Fatalf("expected previous target 0x%x; got 0x%x", VideoBackupAddr(1), prev)
	}
	m.KernelWrite(VideoAddr, []byte{'B'})
	mem.Read(VideoAddr, got[:1])
	if got[0] != 'B' {
		t.Fatalf("expected kernel write to land in video memory; got %v", got)
	}
}
