package task

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dash-project/dartrt/cmn/cos"
)

// CopyinImpl selects the COPYIN prefetch strategy (spec section 4.8).
type CopyinImpl int

const (
	CopyinGet CopyinImpl = iota
	CopyinSendRecv
)

// CopyinWait selects how a consumer waits on an in-flight COPYIN.
type CopyinWait int

const (
	CopyinYield CopyinWait = iota
	CopyinBlock
)

// IdlePolicy selects what an out-of-work worker does (spec section 4.8).
type IdlePolicy int

const (
	IdleSleep IdlePolicy = iota
	IdlePoll
	IdleWait
)

// Config is the scheduler's env/flag-derived tuning, parsed at init
// from the variables spec section 6 lists (plus original_source's
// fuller `dart-impl/base/src/env.c` complement, see SPEC_FULL.md).
type Config struct {
	NumThreads    int
	TaskStackSize int64

	BindThreads        bool
	BindThreadsVerbose bool

	MatchingInterval int
	MaxActivePhases  int

	CopyinImpl CopyinImpl
	CopyinWait CopyinWait

	IdlePolicy       IdlePolicy
	IdleSleep        time.Duration
	ThreadProgress   bool
	ProgressInterval time.Duration
}

// LoadConfig reads Config from the process environment, defaulting
// every field to the value spec section 4.8 describes when its
// variable is unset or unparseable.
func LoadConfig() Config {
	c := Config{
		NumThreads:       cos.Max(runtime.NumCPU(), envInt("NUM_THREADS", runtime.NumCPU())),
		TaskStackSize:    envSize("TASK_STACKSIZE", 256<<10),
		MatchingInterval: envInt("MATCHING_INTERVAL", 1),
		MaxActivePhases:  envInt("MAX_ACTIVE_PHASES", 4),
		IdleSleep:        envDuration("IDLE_THREAD_SLEEP", time.Millisecond),
		ProgressInterval: envDuration("THREAD_PROGRESS_INTERVAL", 10*time.Millisecond),
	}
	c.BindThreads = envBool("BIND_THREADS")
	c.BindThreadsVerbose = envBool("BIND_THREADS_VERBOSE")
	c.ThreadProgress = envBool("THREAD_PROGRESS")

	switch strings.ToUpper(os.Getenv("COPYIN_IMPL")) {
	case "SENDRECV":
		c.CopyinImpl = CopyinSendRecv
	default:
		c.CopyinImpl = CopyinGet
	}
	switch strings.ToUpper(os.Getenv("COPYIN_WAIT")) {
	case "BLOCK":
		c.CopyinWait = CopyinBlock
	default:
		c.CopyinWait = CopyinYield
	}
	switch strings.ToUpper(os.Getenv("IDLE_THREAD")) {
	case "POLL":
		c.IdlePolicy = IdlePoll
	case "WAIT":
		c.IdlePolicy = IdleWait
	default:
		c.IdlePolicy = IdleSleep
	}
	return c
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSize(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := cos.ParseSize(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := cos.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(name string) bool {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "TRUE" || v == "YES" || v == "ON"
}
