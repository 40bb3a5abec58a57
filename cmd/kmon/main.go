// Command kmon boots the machine from a volume image and opens the monitor.
// A missing volume is created with the default programs.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"termos/device/pit"
	"termos/kernel/kfmt"
	"termos/kernel/kmain"
	"termos/kernel/proc"
	"termos/monitor"
	"termos/usr"

	"github.com/fatih/color"

	kfs "termos/kernel/fs"
	_ "termos/usr/bin"
)

var termColors = [proc.Terminals]color.Attribute{color.FgGreen, color.FgYellow, color.FgMagenta}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[kmon] error: %s\n", err.Error())
	os.Exit(1)
}

// loadVolume reads the volume at path, building a fresh one if the file
// does not exist.
func loadVolume(path string) ([]byte, error) {
	image, err := kfs.LoadVolume(path)
	if !errors.Is(err, fs.ErrNotExist) {
		return image, err
	}

	image, kerr := usr.NewVolume(kfs.DefaultLimits, nil)
	if kerr != nil {
		return nil, kerr
	}
	if err := kfs.SaveVolume(path, image); err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "created volume %s\n", path)
	return image, nil
}

func runTool() error {
	hz := flag.Uint("hz", pit.DefaultFrequency, "the timer interrupt rate")
	alarm := flag.Uint64("alarm", proc.AlarmTicks, "the number of timer ticks between two ALARM signals")
	bursts := flag.Int("bursts", kmain.DefaultBurstsPerTick, "the number of bursts a process runs per time slice")
	snapDir := flag.String("snapdir", ".", "the directory where snap saves screenshots")
	script := flag.String("script", "", "run the monitor commands in a file and exit")
	verbose := flag.Bool("v", false, "print the kernel log to STDERR")
	quiet := flag.Bool("q", false, "do not echo terminal output")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "kmon: boot the machine and open its monitor\n\n")
		fmt.Fprint(os.Stderr, "Usage: kmon [options] volume\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		exit(errors.New("missing volume argument"))
	}
	path := flag.Arg(0)

	image, err := loadVolume(path)
	if err != nil {
		return err
	}

	cfg := kmain.DefaultConfig()
	cfg.TimerHz = uint32(*hz)
	cfg.AlarmTicks = *alarm
	cfg.BurstsPerTick = *bursts
	if *verbose {
		cfg.Log = os.Stderr
	}
	if !*quiet {
		for t := range cfg.Terminals {
			cfg.Terminals[t] = terminalWriter(os.Stdout, t)
		}
	}

	m, kerr := kmain.Boot(image, cfg)
	if kerr != nil {
		return kerr
	}
	defer m.Shutdown()

	mon := monitor.New(m, os.Stdout, monitor.Options{Volume: path, SnapDir: *snapDir})
	if *script != "" {
		return mon.Source(*script)
	}

	shell := mon.Shell()
	shell.Println("kmon: type help for the list of commands")
	shell.Run()
	return nil
}

// terminalWriter tags the output of terminal t with a coloured prefix.
func terminalWriter(w io.Writer, t int) io.Writer {
	prefix := color.New(termColors[t]).Sprintf("[tty%d] ", t)
	return &kfmt.PrefixWriter{Sink: w, Prefix: []byte(prefix)}
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
