package bin

import (
	"strings"
	"termos/kernel/fs"
	"termos/usr"
)

const readChunk = 1024

func init() {
	usr.Register("ls", Ls)
	usr.Register("cat", Cat)
	usr.Register("touch", Touch)
	usr.Register("rm", Rm)
	usr.Register("write", Write)
	usr.Register("cp", Cp)
}

// Ls prints the name of every directory entry.
func Ls(env *usr.Env) uint8 {
	fd := env.Open(".")
	if fd < 0 {
		env.Puts("directory open failed\n")
		return 2
	}

	buf := make([]byte, fs.MaxNameLen+1)
	for {
		n := env.Read(fd, buf)
		if n < 0 {
			env.Puts("directory entry read failed\n")
			return 3
		}
		if n == 0 {
			return 0
		}
		env.Puts(string(buf[:n]) + "\n")
	}
}

// Cat prints the contents of the file named by its argument.
func Cat(env *usr.Env) uint8 {
	name, ret := env.Getargs(fs.MaxNameLen + 1)
	if ret != 0 {
		env.Puts("could not read arguments\n")
		return 3
	}

	data, status := readFile(env, name)
	if status != 0 {
		return status
	}
	env.Write(1, data)
	return 0
}

// Touch creates an empty file.
func Touch(env *usr.Env) uint8 {
	name, ret := env.Getargs(readChunk)
	if ret != 0 {
		env.Puts("could not read arguments\n")
		return 3
	}

	if fd := env.Open(name); fd >= 0 {
		env.Close(fd)
		env.Puts("file already exists\n")
		return 2
	}
	if env.Create(name) < 0 {
		env.Puts("file write failed\n")
		return 3
	}
	return 0
}

// Rm deletes a file.
func Rm(env *usr.Env) uint8 {
	name, ret := env.Getargs(readChunk)
	if ret != 0 {
		env.Puts("could not read arguments\n")
		return 3
	}
	if env.Remove(name) < 0 {
		env.Puts("file remove failed\n")
		return 2
	}
	return 0
}

// Write replaces the contents of an existing file with the text that
// follows its name.
func Write(env *usr.Env) uint8 {
	args, ret := env.Getargs(readChunk)
	if ret != 0 {
		env.Puts("could not read arguments\n")
		return 3
	}
	name, text, _ := strings.Cut(args, " ")

	fd := env.Open(name)
	if fd < 0 {
		env.Puts("file not exists\n")
		return 2
	}
	defer env.Close(fd)

	if len(text) == 0 {
		return 0
	}
	if env.Write(fd, []byte(text)) < 0 {
		env.Puts("file write failed\n")
		return 3
	}
	return 0
}

// Cp copies a file over an existing file.
func Cp(env *usr.Env) uint8 {
	args, ret := env.Getargs(readChunk)
	if ret != 0 {
		env.Puts("could not read arguments\n")
		return 3
	}
	src, dst, _ := strings.Cut(args, " ")

	data, status := readFile(env, src)
	if status != 0 {
		return status
	}

	fd := env.Open(dst)
	if fd < 0 {
		env.Puts("file not exists\n")
		return 2
	}
	defer env.Close(fd)

	if env.Write(fd, data) < 0 {
		env.Puts("file write failed\n")
		return 3
	}
	return 0
}

// readFile returns the whole contents of the file called name.
func readFile(env *usr.Env, name string) ([]byte, uint8) {
	fd := env.Open(name)
	if fd < 0 {
		env.Puts("file not exists\n")
		return nil, 2
	}
	defer env.Close(fd)

	var (
		data []byte
		buf  = make([]byte, readChunk)
	)
	for {
		n := env.Read(fd, buf)
		if n < 0 {
			env.Puts("file read failed\n")
			return nil, 3
		}
		if n == 0 {
			return data, 0
		}
		data = append(data, buf[:n]...)
	}
}
