package usr

import "sort"

// Program is the code of a user program. The returned value is the status
// passed to halt when the program returns.
type Program func(env *Env) uint8

var programs = map[string]Program{}

// Register makes prog available under name. Programs register themselves
// from an init function.
func Register(name string, prog Program) {
	if len(name) > MaxNameLen {
		panic(ErrNameTooLong)
	}
	programs[name] = prog
}

// Lookup returns the program registered under name.
func Lookup(name string) (Program, bool) {
	prog, ok := programs[name]
	return prog, ok
}

// Programs returns the names of every registered program in lexical
// order.
func Programs() []string {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
