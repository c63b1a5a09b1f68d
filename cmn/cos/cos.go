// Package cos ("common OS/string") collects small parsing and bit-twiddling
// helpers shared across the runtime, in the spirit of aistore's cmn/cos
// package: no component-specific logic lives here, only primitives every
// layer needs.
package cos

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
)

// NextPow2 returns the smallest power of two >= n, or 1 if n == 0 (the
// buddy allocator's documented behavior for a zero-size request, see
// spec section 9 "Open questions").
func NextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Log2 returns floor(log2(n)) for a power-of-two n > 0.
func Log2(n uint64) uint {
	var l uint
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// ParseSize parses a byte count with an optional B/K/M/G suffix
// (TASK_STACKSIZE, spec section 6), case-insensitive.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("cos: empty size")
	}
	mult := int64(1)
	last := strings.ToUpper(s[len(s)-1:])
	switch last {
	case "B":
		mult = 1
		s = s[:len(s)-1]
	case "K":
		mult = 1 << 10
		s = s[:len(s)-1]
	case "M":
		mult = 1 << 20
		s = s[:len(s)-1]
	case "G":
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cos: invalid size %q: %w", s, err)
	}
	return n * mult, nil
}

// ParseDuration parses a duration with an s/ms/us suffix
// (IDLE_THREAD_SLEEP, THREAD_PROGRESS_INTERVAL, spec section 6).
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("cos: empty duration")
	}
	return time.ParseDuration(s)
}

// XXHash32 hashes b with a fixed seed, used by the scheduler's
// per-segment offset hash map (spec section 4.8) to key on
// (segment_id, offset) pairs.
func XXHash32(b []byte) uint32 {
	h := xxhash.New32()
	_, _ = h.Write(b)
	return h.Sum32()
}

// Max returns the larger of a, b.
func Max[T int | int32 | int64 | uint | uint32 | uint64](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a, b.
func Min[T int | int32 | int64 | uint | uint32 | uint64](a, b T) T {
	if a < b {
		return a
	}
	return b
}
