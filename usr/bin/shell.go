// Package bin contains the user programs shipped on the boot volume. Every
// program registers itself with usr so the machine can start it from its
// image stub.
package bin

import (
	"strings"
	"termos/kernel/sys"
	"termos/usr"
)

// Prompt is printed by the shell before reading a command.
const Prompt = "391OS> "

func init() {
	usr.Register("shell", Shell)
}

// Shell reads commands from the terminal and executes them until it reads
// "exit".
func Shell(env *usr.Env) uint8 {
	for {
		env.Puts(Prompt)
		line, n := env.ReadLine()
		if n < 0 {
			env.Puts("read from keyboard failed\n")
			return 3
		}

		cmd := strings.TrimSpace(line)
		switch cmd {
		case "":
			continue
		case "exit":
			return 0
		}

		switch status := env.Execute(cmd); {
		case status == -1:
			env.Puts("no such command\n")
		case status == sys.ExceptionStatus:
			env.Puts("program terminated by exception\n")
		case status != 0:
			env.Puts("program terminated abnormally\n")
		}
	}
}
