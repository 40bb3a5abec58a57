package monitor

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"termos/kernel/fs"
	"termos/kernel/gate"
	"termos/kernel/proc"
	"termos/kernel/sched"
	"termos/kernel/signal"

	"github.com/fatih/color"
)

const (
	keyInterrupt = 0x03
	keyClear     = 0x0c
	keyBackspace = 0x08
)

var (
	header  = color.New(color.Bold, color.FgCyan).SprintFunc()
	good    = color.New(color.FgGreen).SprintFunc()
	bad     = color.New(color.FgRed).SprintFunc()
	dimmed  = color.New(color.FgHiBlack).SprintFunc()
	keyName = map[string]byte{
		"ctrl-c":    keyInterrupt,
		"ctrl-l":    keyClear,
		"backspace": keyBackspace,
		"enter":     '\n',
	}
	faultName = map[string]gate.InterruptNumber{
		"divzero":   gate.DivideByZero,
		"ud":        gate.InvalidOpcode,
		"gpf":       gate.GPFException,
		"pagefault": gate.PageFaultException,
	}
)

var commands map[string]command

func init() {
	commands = map[string]command{
		"run":    {"run until every process waits for input", "[steps]", (*Monitor).run},
		"step":   {"execute single bursts", "[count]", (*Monitor).step},
		"tick":   {"deliver timer interrupts", "[count]", (*Monitor).tick},
		"rtc":    {"deliver RTC interrupts", "[count]", (*Monitor).rtc},
		"type":   {"type a line on the displayed terminal", "<text>...", (*Monitor).typeLine},
		"key":    {"press special keys", "ctrl-c|ctrl-l|backspace|enter...", (*Monitor).key},
		"switch": {"show another terminal", "<terminal>", (*Monitor).switchTerminal},
		"signal": {"raise a signal for a process", "<pid> <signal>", (*Monitor).signal},
		"fault":  {"raise a CPU exception in the running process", "divzero|ud|gpf|pagefault|<vector>", (*Monitor).fault},
		"ps":     {"list processes", "", (*Monitor).ps},
		"regs":   {"dump the registers of the running process", "", (*Monitor).regs},
		"sched":  {"show the run queue", "", (*Monitor).sched},
		"screen": {"print the text of a terminal", "[terminal]", (*Monitor).screen},
		"ls":     {"list the files of the volume", "", (*Monitor).ls},
		"check":  {"check the volume for consistency", "", (*Monitor).check},
		"sync":   {"write the volume image to the host", "[path]", (*Monitor).sync},
		"snap":   {"save a PNG screenshot of a terminal", "[terminal] [file]", (*Monitor).snap},
		"source": {"run the commands in a host file", "<file>", (*Monitor).source},
	}
}

// count parses an optional positive count argument.
func count(args []string, def int) (int, error) {
	switch len(args) {
	case 0:
		return def, nil
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return 0, errUsage
		}
		return n, nil
	default:
		return 0, errUsage
	}
}

// terminal parses an optional terminal argument.
func (mon *Monitor) terminal(args []string) (int, error) {
	if len(args) == 0 {
		return mon.m.Kernel().Displayed(), nil
	}
	t, err := strconv.Atoi(args[0])
	if err != nil || t < 0 || t >= proc.Terminals {
		return 0, errUsage
	}
	return t, nil
}

func (mon *Monitor) run(args []string) error {
	n, err := count(args, mon.opts.RunSteps)
	if err != nil {
		return err
	}

	st, kerr := mon.m.Run(n)
	fmt.Fprintf(mon.out, "%d steps, %d ticks", st.Steps, st.Ticks)
	if st.Idle {
		fmt.Fprint(mon.out, dimmed(" (idle)"))
	}
	fmt.Fprintln(mon.out)
	if kerr != nil {
		return kerr
	}
	return nil
}

func (mon *Monitor) step(args []string) error {
	n, err := count(args, 1)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if kerr := mon.m.Step(); kerr != nil {
			return kerr
		}
	}
	return nil
}

func (mon *Monitor) tick(args []string) error {
	n, err := count(args, 1)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if kerr := mon.m.Tick(); kerr != nil {
			return kerr
		}
	}
	return nil
}

func (mon *Monitor) rtc(args []string) error {
	n, err := count(args, 1)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if kerr := mon.m.RTCInterrupt(); kerr != nil {
			return kerr
		}
	}
	return nil
}

func (mon *Monitor) typeLine(args []string) error {
	if kerr := mon.m.Type([]byte(strings.Join(args, " ") + "\n")); kerr != nil {
		return kerr
	}
	return nil
}

func (mon *Monitor) key(args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	keys := make([]byte, 0, len(args))
	for _, arg := range args {
		k, ok := keyName[strings.ToLower(arg)]
		if !ok {
			return errUsage
		}
		keys = append(keys, k)
	}
	if kerr := mon.m.Type(keys); kerr != nil {
		return kerr
	}
	return nil
}

func (mon *Monitor) switchTerminal(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	t, err := mon.terminal(args)
	if err != nil {
		return err
	}
	if kerr := mon.m.Switch(t); kerr != nil {
		return kerr
	}
	return nil
}

func (mon *Monitor) signal(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return errUsage
	}
	n, ok := parseSignal(args[1])
	if !ok {
		return errUsage
	}
	if kerr := mon.m.Signal(pid, n); kerr != nil {
		return kerr
	}
	return nil
}

// parseSignal accepts a signal number or a name with an optional SIG_
// prefix.
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

func (mon *Monitor) fault(args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	vec, ok := faultName[strings.ToLower(args[0])]
	if !ok {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 || v > int(gate.LastException) {
			return errUsage
		}
		vec = gate.InterruptNumber(v)
	}
	if kerr := mon.m.Fault(vec); kerr != nil {
		return kerr
	}
	return nil
}

func (mon *Monitor) ps(args []string) error {
	k := mon.m.Kernel()
	cur, running := k.Current()

	fmt.Fprintln(mon.out, header(fmt.Sprintf("%4s %4s %4s %-12s %5s %s", "PID", "PPID", "TERM", "PROGRAM", "FILES", "STATE")))
	for _, p := range k.Processes() {
		var state []string
		if running && p.PID == cur.PID {
			state = append(state, good("running"))
		} else if p.Scheduled {
			state = append(state, "ready")
		}
		if k.Blocked(p.PID) {
			state = append(state, "reading")
		}
		if p.VideoMapped {
			state = append(state, "vidmap")
		}

		parent := "-"
		if p.Parent >= 0 {
			parent = strconv.Itoa(p.Parent)
		}
		name := p.Program
		if p.Args != "" {
			name += " " + p.Args
		}
		fmt.Fprintf(mon.out, "%4d %4s %4d %-12s %5d %s\n", p.PID, parent, p.Terminal, name, p.Files, strings.Join(state, ","))
	}
	return nil
}

func (mon *Monitor) regs(args []string) error {
	regs := mon.m.Registers()
	regs.DumpTo(mon.out)

	c := mon.m.CPU()
	fmt.Fprintf(mon.out, "CR0 = %08x CR2 = %08x CR3 = %08x CR4 = %08x IF = %t\n",
		c.ReadCR0(), c.ReadCR2(), c.ActivePDT(), c.ReadCR4(), c.InterruptsEnabled())
	return nil
}

func (mon *Monitor) sched(args []string) error {
	rq := mon.m.Kernel().RunQueue()
	slots, selected := rq.Snapshot(), rq.Selected()

	fmt.Fprintln(mon.out, header(fmt.Sprintf("%4s %5s %8s", "SLOT", "PID", "PICKED")))
	for i, pid := range slots {
		cur := ""
		if i == rq.Current() {
			cur = good(" <")
		}
		if pid == sched.Uninitialized {
			fmt.Fprintf(mon.out, "%4d %5s %8d%s\n", i, dimmed("-"), selected[i], cur)
			continue
		}
		fmt.Fprintf(mon.out, "%4d %5d %8d%s\n", i, pid, selected[i], cur)
	}
	return nil
}

func (mon *Monitor) screen(args []string) error {
	if len(args) > 1 {
		return errUsage
	}
	t, err := mon.terminal(args)
	if err != nil {
		return err
	}

	for _, row := range ScreenText(mon.m.Kernel().VideoBuffer(t)) {
		fmt.Fprintln(mon.out, row)
	}
	return nil
}

func (mon *Monitor) ls(args []string) error {
	fsys := mon.m.FS()

	fmt.Fprintln(mon.out, header(fmt.Sprintf("%-32s %-9s %5s %8s", "NAME", "TYPE", "INODE", "SIZE")))
	for _, e := range fsys.Entries() {
		size := "-"
		if e.Type == fs.TypeRegular {
			if n, err := fsys.Length(e.Inode); err == nil {
				size = strconv.Itoa(int(n))
			}
		}
		fmt.Fprintf(mon.out, "%-32s %-9s %5d %8s\n", e.Name, e.Type, e.Inode, size)
	}

	st := fsys.Stats()
	fmt.Fprintf(mon.out, "%d/%d entries, %d/%d inodes, %d/%d blocks\n",
		st.DirEntries, st.MaxDirEntries, st.InodesUsed, st.Inodes, st.BlocksUsed, st.Blocks)
	return nil
}

func (mon *Monitor) check(args []string) error {
	if err := mon.m.FS().Check(); err != nil {
		fmt.Fprintln(mon.out, bad("volume damaged"))
		return err
	}
	fmt.Fprintln(mon.out, good("volume ok"))
	return nil
}

func (mon *Monitor) sync(args []string) error {
	path := mon.opts.Volume
	switch len(args) {
	case 0:
	case 1:
		path = args[0]
	default:
		return errUsage
	}
	if path == "" {
		return errUsage
	}

	if err := fs.SaveVolume(path, mon.m.FS().Image()); err != nil {
		return err
	}
	fmt.Fprintf(mon.out, "volume written to %s\n", path)
	return nil
}

func (mon *Monitor) snap(args []string) error {
	if len(args) > 2 {
		return errUsage
	}
	t, err := mon.terminal(args)
	if err != nil {
		return err
	}

	path := filepath.Join(mon.opts.SnapDir, fmt.Sprintf("term%d-%d.png", t, mon.m.Kernel().Ticks()))
	if len(args) == 2 {
		path = args[1]
	}

	if err := SavePNG(path, mon.m.Kernel().VideoBuffer(t)); err != nil {
		return err
	}
	fmt.Fprintf(mon.out, "screen of terminal %d saved to %s\n", t, path)
	return nil
}

func (mon *Monitor) source(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	return mon.Source(args[0])
}
