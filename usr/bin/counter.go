package bin

import (
	"encoding/binary"
	"strconv"
	"termos/usr"
)

const (
	counterHz     = 32
	screenColumns = 80
	counterAttr   = 0x0e
)

func init() {
	usr.Register("counter", Counter)
}

// Counter counts RTC ticks. The count is printed on the terminal and drawn
// in the top right corner of the screen through the mapped video memory.
// The number of ticks is taken from the argument; 0 counts forever.
func Counter(env *usr.Env) uint8 {
	limit := 5
	if args := env.Args(); args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 0 {
			env.Puts("usage: counter [ticks]\n")
			return 1
		}
		limit = n
	}

	rtc := env.Open("rtc")
	if rtc < 0 {
		env.Puts("rtc open failed\n")
		return 2
	}
	defer env.Close(rtc)

	var hz [4]byte
	binary.LittleEndian.PutUint32(hz[:], counterHz)
	if env.Write(rtc, hz[:]) < 0 {
		env.Puts("rtc write failed\n")
		return 3
	}

	video, ret := env.Vidmap()
	if ret != 0 {
		env.Puts("vidmap failed\n")
		return 3
	}

	var garbage [4]byte
	for i := 1; limit == 0 || i <= limit; i++ {
		if env.Read(rtc, garbage[:]) < 0 {
			env.Puts("rtc read failed\n")
			return 3
		}
		count := strconv.Itoa(i)
		env.Printf("counter: %s\n", count)
		drawCounter(env, video, count)
	}
	return 0
}

func drawCounter(env *usr.Env, video uint32, count string) {
	cells := make([]byte, 0, 2*len(count))
	for i := 0; i < len(count); i++ {
		cells = append(cells, count[i], counterAttr)
	}
	env.Poke(video+uint32(2*(screenColumns-len(count))), cells)
}
