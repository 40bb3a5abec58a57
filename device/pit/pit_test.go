package pit

import (
	"bytes"
	"termos/kernel/cpu"
	"testing"
)

type portRecorder struct {
	writes []uint8
	ports  []uint16
}

func (r *portRecorder) PortWrite(port uint16, val uint8) {
	r.ports = append(r.ports, port)
	r.writes = append(r.writes, val)
}

func (r *portRecorder) PortRead(port uint16) uint8 { return 0 }

func TestDivisor(t *testing.T) {
	specs := []struct {
		hz  uint32
		exp uint16
	}{
		{100, 11931},
		{1000, 1193},
		{19, 62799},
		{BaseFrequency, 1},
	}

	for specIndex, spec := range specs {
		if got := Divisor(spec.hz); got != spec.exp {
			t.Errorf("[spec %d] expected Divisor(%d) to be %d; got %d", specIndex, spec.hz, spec.exp, got)
		}
	}
}

func TestDriverInit(t *testing.T) {
	c := cpu.New()
	rec := &portRecorder{}
	c.AttachPort(commandPort, rec)
	c.AttachPort(channel0Data, rec)

	p := New(c)
	var buf bytes.Buffer
	if err := p.DriverInit(&buf); err != nil {
		t.Fatal(err)
	}

	div := Divisor(DefaultFrequency)
	expPorts := []uint16{commandPort, channel0Data, channel0Data}
	expVals := []uint8{Mode, uint8(div), uint8(div >> 8)}
	for i := range expPorts {
		if rec.ports[i] != expPorts[i] || rec.writes[i] != expVals[i] {
			t.Errorf("[write %d] expected %x <- %x; got %x <- %x", i, expPorts[i], expVals[i], rec.ports[i], rec.writes[i])
		}
	}

	if exp, got := uint32(DefaultFrequency), p.Frequency(); got != exp {
		t.Errorf("expected frequency to be %d; got %d", exp, got)
	}
	if buf.Len() == 0 {
		t.Error("expected DriverInit to log the timer rate")
	}
}

func TestSetFrequency(t *testing.T) {
	p := New(cpu.New())

	specs := []struct {
		hz     uint32
		expErr bool
	}{
		{1, true},
		{18, true},
		{19, false},
		{250, false},
		{BaseFrequency + 1, true},
	}

	for specIndex, spec := range specs {
		err := p.SetFrequency(spec.hz)
		if spec.expErr {
			if err != ErrInvalidFrequency {
				t.Errorf("[spec %d] expected ErrInvalidFrequency; got %v", specIndex, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}
		if p.Frequency() != spec.hz {
			t.Errorf("[spec %d] expected frequency to be %d; got %d", specIndex, spec.hz, p.Frequency())
		}
	}
}
