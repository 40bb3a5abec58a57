package bin

import (
	"strconv"
	"strings"
	"termos/kernel/gate"
	"termos/kernel/signal"
	"termos/usr"
)

func init() {
	usr.Register("sigtest", Sigtest)
}

// Sigtest raises a signal and reports whether its handler ran. The first
// argument names the signal by number or name; a second argument
// "default" leaves the default action in place.
//
// DIV_ZERO and SEGFAULT are raised by faulting. The other signals come
// from outside (Ctrl+C, the alarm timer or the monitor) so sigtest waits
// for them on the RTC.
func Sigtest(env *usr.Env) uint8 {
	args := strings.Fields(env.Args())
	if len(args) == 0 {
		env.Puts("usage: sigtest <signal> [default]\n")
		return 1
	}
	n, ok := parseSignal(args[0])
	if !ok {
		env.Puts("unknown signal\n")
		return 1
	}

	handled := 0
	if len(args) < 2 || args[1] != "default" {
		env.SetHandler(n, func(henv *usr.Env, got signal.Number) {
			handled++
			henv.Printf("caught SIG_%s\n", got)
		})
	}

	switch n {
	case signal.DivZero:
		env.Fault(gate.DivideByZero)
	case signal.Segfault:
		var b [1]byte
		env.Peek(0, b[:])
	default:
		rtc := env.Open("rtc")
		if rtc < 0 {
			env.Puts("rtc open failed\n")
			return 2
		}
		env.Printf("waiting for SIG_%s\n", n)
		var garbage [4]byte
		for handled == 0 {
			env.Read(rtc, garbage[:])
		}
		env.Close(rtc)
	}

	if handled == 0 {
		env.Printf("SIG_%s was not handled\n", n)
		return 1
	}
	env.Printf("SIG_%s handled\n", n)
	return 0
}

func parseSignal(arg string) (signal.Number, bool) {
	if v, err := strconv.Atoi(arg); err == nil {
		if v < 0 || v >= signal.Count {
			return 0, false
		}
		return signal.Number(v), true
	}

	name := strings.TrimPrefix(strings.ToUpper(arg), "SIG_")
	for n := signal.Number(0); n < signal.Count; n++ {
		if n.String() == name {
			return n, true
		}
	}
	return 0, false
}
