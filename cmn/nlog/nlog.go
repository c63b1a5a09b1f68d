// Package nlog is the runtime's leveled logger. Level is controlled by
// the LOG_LEVEL environment variable (ERROR|WARN|INFO|DEBUG|TRACE, see
// spec section 6); callers on hot paths should guard expensive
// formatting with FastV rather than relying on the logger to discard it.
package nlog

import (
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func parseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	case "TRACE":
		return LevelTrace
	default:
		return LevelInfo
	}
}

var (
	level  atomic.Int32
	logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

func init() {
	level.Store(int32(parseLevel(os.Getenv("LOG_LEVEL"))))
}

// SetLevel overrides the level parsed from LOG_LEVEL at init time.
func SetLevel(l Level) { level.Store(int32(l)) }

// CurLevel returns the effective log level.
func CurLevel() Level { return Level(level.Load()) }

// FastV reports whether the given verbosity level (reusing Level's
// ordering) is currently enabled for the named subsystem. The subsystem
// argument is accepted for call-site symmetry with aistore's
// cmn.Rom.FastV and is not yet used to gate per-module verbosity.
func FastV(v int, _ string) bool { return Level(v) <= CurLevel() }

func enabled(l Level) bool { return l <= CurLevel() }

func Errorln(args ...any) {
	if enabled(LevelError) {
		logger.Println(append([]any{"E:"}, args...)...)
	}
}

func Errorf(format string, args ...any) {
	if enabled(LevelError) {
		logger.Printf("E: "+format, args...)
	}
}

func Warnln(args ...any) {
	if enabled(LevelWarn) {
		logger.Println(append([]any{"W:"}, args...)...)
	}
}

func Infoln(args ...any) {
	if enabled(LevelInfo) {
		logger.Println(append([]any{"I:"}, args...)...)
	}
}

func Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		logger.Printf("I: "+format, args...)
	}
}

func Debugln(args ...any) {
	if enabled(LevelDebug) {
		logger.Println(append([]any{"D:"}, args...)...)
	}
}

func Debugf(format string, args ...any) {
	if enabled(LevelDebug) {
		logger.Printf("D: "+format, args...)
	}
}

func Traceln(args ...any) {
	if enabled(LevelTrace) {
		logger.Println(append([]any{"T:"}, args...)...)
	}
}

// Fatal logs at error level and terminates the process. Reserved for the
// protocol-error class of spec section 7: conditions where continuing
// would silently corrupt shared state across units.
func Fatal(args ...any) {
	logger.Println(append([]any{"F:"}, args...)...)
	os.Exit(1)
}

func Fatalf(format string, args ...any) {
	logger.Printf("F: "+format, args...)
	os.Exit(1)
}
