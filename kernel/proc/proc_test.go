package proc

import (
	"termos/kernel/signal"
	"testing"
)

func TestKernelStack(t *testing.T) {
	for pid := 0; pid < MaxProcesses; pid++ {
		top := KernelStackTop(pid)
		if exp := uint32(0x800000 - pid*0x2000 - 4); top != exp {
			t.Errorf("expected kernel stack of pid %d at 0x%x; got 0x%x", pid, exp, top)
		}

		for _, esp := range []uint32{top, top - 0x100, top - 0x1ff0} {
			if got := PIDFromKernelStack(esp); got != pid {
				t.Errorf("expected esp 0x%x to belong to pid %d; got %d", esp, pid, got)
			}
		}
	}
}

func TestAllocRoot(t *testing.T) {
	var tbl Table

	for term := 0; term < Terminals; term++ {
		p, err := tbl.AllocRoot(term, "shell")
		if err != nil {
			t.Fatal(err)
		}
		if p.PID != term || p.Parent != NoParent || p.Terminal != term {
			t.Fatalf("unexpected root PCB %+v", p)
		}
		if !p.Files[StdinFD].InUse || p.Files[StdinFD].Kind != KindTerminalIn {
			t.Fatal("expected stdin to be bound")
		}
		if !p.Files[StdoutFD].InUse || p.Files[StdoutFD].Kind != KindTerminalOut {
			t.Fatal("expected stdout to be bound")
		}
		if p.Signals.Action(signal.Segfault).Kind != signal.ActionKill {
			t.Fatal("expected default signal actions")
		}
	}

	first := tbl.Get(1).Generation
	restarted, _ := tbl.AllocRoot(1, "shell")
	if restarted.PID != 1 || restarted.Generation == first {
		t.Fatalf("expected restart in pid 1 with a new generation; got pid %d gen %d", restarted.PID, restarted.Generation)
	}

	if err := tbl.Free(1); err != ErrInvalidPID {
		t.Fatalf("expected root slots not to be freed; got %v", err)
	}
	if _, err := tbl.AllocRoot(3, "shell"); err != ErrInvalidPID {
		t.Fatalf("expected ErrInvalidPID; got %v", err)
	}
}

func TestAlloc(t *testing.T) {
	var tbl Table
	tbl.AllocRoot(0, "shell")
	tbl.AllocRoot(1, "shell")

	child, err := tbl.Alloc(1, "ls")
	if err != nil {
		t.Fatal(err)
	}
	if child.PID != 3 || child.Parent != 1 || child.Terminal != 1 {
		t.Fatalf("unexpected child %+v", child)
	}

	grandchild, err := tbl.Alloc(child.PID, "cat")
	if err != nil {
		t.Fatal(err)
	}
	if grandchild.PID != 4 || grandchild.Terminal != 1 {
		t.Fatalf("expected grandchild pid 4 on terminal 1; got pid %d term %d", grandchild.PID, grandchild.Terminal)
	}

	if _, err := tbl.Alloc(0, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Alloc(0, "y"); err != ErrProcessLimit {
		t.Fatalf("expected ErrProcessLimit; got %v", err)
	}
	if tbl.Available() != 0 {
		t.Fatalf("expected no free slots; got %d", tbl.Available())
	}

	if err := tbl.Free(4); err != nil {
		t.Fatal(err)
	}
	if tbl.Get(4) != nil {
		t.Fatal("expected freed slot to be unused")
	}
	if err := tbl.Free(4); err != ErrInvalidPID {
		t.Fatalf("expected double free to fail; got %v", err)
	}

	again, _ := tbl.Alloc(0, "z")
	if again.PID != 4 || again.Terminal != 0 {
		t.Fatalf("expected pid 4 to be reused on terminal 0; got pid %d term %d", again.PID, again.Terminal)
	}

	if _, err := tbl.Alloc(2, "orphan"); err != ErrInvalidPID {
		t.Fatalf("expected allocation for a missing parent to fail; got %v", err)
	}

	if exp, got := 5, len(tbl.Active()); got != exp {
		t.Fatalf("expected %d active pids; got %d", exp, got)
	}
}

func TestFileDescriptors(t *testing.T) {
	var tbl Table
	p, _ := tbl.AllocRoot(0, "shell")

	for exp := 2; exp < MaxFiles; exp++ {
		fd, ok := p.AllocFD()
		if !ok || fd != exp {
			t.Fatalf("expected fd %d; got %d (%t)", exp, fd, ok)
		}
		p.Files[fd] = Descriptor{Kind: KindRegular, InUse: true}
	}

	if _, ok := p.AllocFD(); ok {
		t.Fatal("expected the descriptor table to be full")
	}

	p.Files[5].InUse = false
	if fd, _ := p.AllocFD(); fd != 5 {
		t.Fatalf("expected fd 5 to be reused; got %d", fd)
	}

	if p.File(5) != nil || p.File(MaxFiles) != nil || p.File(-1) != nil {
		t.Fatal("expected File to reject free or out of range descriptors")
	}
	if d := p.File(2); d == nil || d.Kind != KindRegular {
		t.Fatal("expected fd 2 to be a regular file")
	}
}

func TestArgs(t *testing.T) {
	var p PCB

	if err := p.SetArgs("frame0.txt"); err != nil {
		t.Fatal(err)
	}
	if got := p.Args(); got != "frame0.txt" {
		t.Fatalf("expected args %q; got %q", "frame0.txt", got)
	}

	long := make([]byte, ArgsSize)
	for i := range long {
		long[i] = 'a'
	}
	if err := p.SetArgs(string(long)); err != ErrArgsTooLong {
		t.Fatalf("expected ErrArgsTooLong; got %v", err)
	}
	if err := p.SetArgs(string(long[:ArgsSize-1])); err != nil {
		t.Fatalf("expected %d byte args to fit; got %v", ArgsSize-1, err)
	}
}
