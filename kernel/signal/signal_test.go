package signal

import (
	"encoding/binary"
	"termos/kernel/gate"
	"testing"
)

func TestDefaultActions(t *testing.T) {
	var s State
	s.Reset()

	specs := []struct {
		n   Number
		exp ActionKind
	}{
		{DivZero, ActionKill},
		{Segfault, ActionKill},
		{Interrupt, ActionKill},
		{Alarm, ActionIgnore},
		{User1, ActionIgnore},
	}

	for _, spec := range specs {
		if got := s.Action(spec.n).Kind; got != spec.exp {
			t.Errorf("expected default action of %s to be %d; got %d", spec.n, spec.exp, got)
		}
	}
}

func TestNextPicksLowestUnmasked(t *testing.T) {
	var s State
	s.Reset()

	s.Raise(User1)
	s.Raise(Alarm)
	s.Raise(Segfault)
	s.Mask(Segfault)

	n, ok := s.Next()
	if !ok || n != Alarm {
		t.Fatalf("expected ALARM; got %s (%t)", n, ok)
	}
	if s.Pending(Alarm) {
		t.Fatal("expected Next to clear the pending bit")
	}

	n, ok = s.Next()
	if !ok || n != User1 {
		t.Fatalf("expected USER1; got %s (%t)", n, ok)
	}

	if _, ok = s.Next(); ok {
		t.Fatal("expected the masked SEGFAULT not to be delivered")
	}

	s.ClearMask()
	if n, ok = s.Next(); !ok || n != Segfault {
		t.Fatalf("expected SEGFAULT after clearing the mask; got %s (%t)", n, ok)
	}

	if err := s.Raise(Count); err != ErrInvalidSignal {
		t.Fatalf("expected ErrInvalidSignal; got %v", err)
	}
}

func TestSetHandler(t *testing.T) {
	var s State
	s.Reset()

	if err := s.SetHandler(Interrupt, 0x08048200); err != nil {
		t.Fatal(err)
	}
	if act := s.Action(Interrupt); act.Kind != ActionHandler || act.Handler != 0x08048200 {
		t.Fatalf("unexpected action %+v", act)
	}

	s.SetHandler(Interrupt, 0)
	if act := s.Action(Interrupt); act.Kind != ActionKill {
		t.Fatalf("expected a zero handler to restore the default; got %+v", act)
	}

	if err := s.SetHandler(7, 0x08048200); err != ErrInvalidSignal {
		t.Fatalf("expected ErrInvalidSignal; got %v", err)
	}
}

func TestBuildFrame(t *testing.T) {
	ctx := gate.UserFrame(0x08048100, 0x083fff00)
	ctx.EAX = 42

	frame := BuildFrame(ctx, Alarm, 0x08048400)

	if exp := ctx.ESP - FrameSize; frame.Regs.ESP != exp {
		t.Fatalf("expected new ESP 0x%x; got 0x%x", exp, frame.Regs.ESP)
	}
	if frame.Regs.EIP != 0x08048400 {
		t.Fatalf("expected EIP to point at the handler; got 0x%x", frame.Regs.EIP)
	}
	if len(frame.Bytes) != FrameSize {
		t.Fatalf("expected %d frame bytes; got %d", FrameSize, len(frame.Bytes))
	}

	retAddr := binary.LittleEndian.Uint32(frame.Bytes[0:])
	if exp := ctx.ESP - TrampolineSize; retAddr != exp {
		t.Fatalf("expected return address 0x%x; got 0x%x", exp, retAddr)
	}
	if got := binary.LittleEndian.Uint32(frame.Bytes[4:]); got != uint32(Alarm) {
		t.Fatalf("expected signal number %d; got %d", Alarm, got)
	}
	if tramp := frame.Bytes[FrameSize-TrampolineSize:]; tramp[0] != 0xb8 || tramp[1] != 10 || tramp[5] != 0xcd || tramp[6] != 0x80 {
		t.Fatalf("unexpected trampoline % x", tramp)
	}

	// After the handler returns the trampoline traps with ESP pointing at
	// the signal number; the context lives ContextOffset bytes above.
	trapESP := frame.Regs.ESP + 4
	off := trapESP + ContextOffset - frame.Regs.ESP
	restored := UnwindFrame(frame.Bytes[off : off+gate.RegistersSize])
	if restored != ctx {
		t.Fatalf("expected unwound context %+v; got %+v", ctx, restored)
	}
}

func TestUnwindFrameSanitisesSelectors(t *testing.T) {
	evil := gate.Registers{CS: gate.KernelCS, SS: gate.KernelDS, EIP: 0x400000}
	enc := evil.Encode()

	regs := UnwindFrame(enc[:])
	if !regs.UserMode() || regs.SS != gate.UserDS {
		t.Fatalf("expected user selectors; got CS=%x SS=%x", regs.CS, regs.SS)
	}
	if regs.EFlags&0x200 == 0 {
		t.Fatal("expected interrupts to be enabled")
	}
}
