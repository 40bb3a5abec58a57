package bin

import "termos/usr"

func init() {
	usr.Register("hello", Hello)
}

// Hello greets the user by name.
func Hello(env *usr.Env) uint8 {
	env.Puts("Hi, what's your name? ")
	name, n := env.ReadLine()
	if n < 0 {
		env.Puts("Can't read name from keyboard.\n")
		return 3
	}
	env.Printf("Hello, %s\n", name)
	return 0
}
