// Package monitor implements the host-side console of the machine. Its
// commands drive the machine (run, type, switch, signal, fault) and inspect
// it (ps, screen, ls, check, snap). The same commands back the interactive
// ishell session and command scripts loaded with source.
package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"termos/kernel/kfmt"
	"termos/kernel/kmain"

	"github.com/abiosoft/ishell"
	"github.com/abiosoft/readline"
	shlex "github.com/flynn-archive/go-shlex"
)

const (
	// Prompt is the monitor prompt.
	Prompt = "kmon> "

	// DefaultRunSteps bounds a run command without an argument.
	DefaultRunSteps = 100000

	commentPrefix = "#"
)

var (
	// ErrUnknownCommand is returned by Exec for a command it does not
	// know.
	ErrUnknownCommand = errors.New("unknown command")

	errUsage = errors.New("invalid arguments")
)

// Options configure a Monitor.
type Options struct {
	// Volume is the host file sync writes the volume image to.
	Volume string

	// SnapDir is where snap stores screenshots.
	SnapDir string

	// RunSteps bounds a run command without an argument.
	RunSteps int
}

type command struct {
	help  string
	usage string
	fn    func(mon *Monitor, args []string) error
}

// Monitor executes monitor commands against a machine.
type Monitor struct {
	m    *kmain.Machine
	opts Options
	out  io.Writer
	log  io.Writer
}

// New returns a monitor for m that prints to out.
func New(m *kmain.Machine, out io.Writer, opts Options) *Monitor {
	if opts.RunSteps <= 0 {
		opts.RunSteps = DefaultRunSteps
	}
	if opts.SnapDir == "" {
		opts.SnapDir = "."
	}
	return &Monitor{
		m:    m,
		opts: opts,
		out:  out,
		log:  kfmt.NewPrefixWriter(nil, "kmon"),
	}
}

// Commands returns the sorted names of the monitor commands.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exec runs the command args[0] with the remaining arguments.
func (mon *Monitor) Exec(args ...string) error {
	if len(args) == 0 {
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%s: %w", args[0], ErrUnknownCommand)
	}

	err := cmd.fn(mon, args[1:])
	if errors.Is(err, errUsage) {
		return fmt.Errorf("usage: %s %s", args[0], cmd.usage)
	}
	return err
}

// ExecLine splits line like a shell would and runs it. Empty lines and
// comments are ignored.
func (mon *Monitor) ExecLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, commentPrefix) {
		return nil
	}

	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	return mon.Exec(args...)
}

// Source runs every line of the script at path and stops at the first
// failing command.
func (mon *Monitor) Source(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		kfmt.Fprintf(mon.log, "%s:%d: %s\n", path, lineNo, scanner.Text())
		if err := mon.ExecLine(scanner.Text()); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	return scanner.Err()
}

// Shell returns an interactive shell with every monitor command.
func (mon *Monitor) Shell() *ishell.Shell {
	shell := ishell.NewWithConfig(&readline.Config{Prompt: Prompt})
	shell.Set("monitor", mon)

	for _, name := range Commands() {
		name, cmd := name, commands[name]
		var complete func([]string) []string
		if name == "type" {
			complete = mon.completeFileNames
		}
		shell.AddCmd(&ishell.Cmd{
			Name:      name,
			Help:      cmd.help,
			LongHelp:  fmt.Sprintf("%s\n\nusage: %s %s", cmd.help, name, cmd.usage),
			Completer: complete,
			Func: func(c *ishell.Context) {
				mon := c.Get("monitor").(*Monitor)
				if err := mon.Exec(append([]string{name}, c.Args...)...); err != nil {
					c.Err(err)
				}
			},
		})
	}
	return shell
}

// completeFileNames offers the names of the files on the mounted volume.
func (mon *Monitor) completeFileNames([]string) []string {
	return mon.m.FS().Complete("")
}
