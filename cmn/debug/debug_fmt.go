package debug

import "fmt"

func panicf(format string, args ...any) {
	panic("dartrt: assertion failed: " + fmt.Sprintf(format, args...))
}
