// Package slog is a small leveled logger with per-level printers, code
// locations and check helpers for the `if err = f(); chk.E(err)` idiom.
package slog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
)

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

type (
	// Ln prints lists of interfaces with spaces in between
	Ln func(a ...interface{})
	// F prints like fmt.Printf surrounded by log details
	F func(format string, a ...interface{})
	// S prints a spew.Sdump for an interface slice
	S func(a ...interface{})
	// C accepts a function so that the extra computation can be avoided if it is
	// not being viewed
	C func(closure func() string)
	// Chk is a shortcut for printing if there is an error, or returning true
	Chk func(e error) bool
	// Err is a pass-through function that uses fmt.Errorf to construct an error
	// and returns the error after printing it to the log
	Err func(format string, a ...interface{}) error

	// LevelPrinter defines a set of terminal printing primitives that output
	// with the log level and code location.
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}
	LevelSpec struct {
		ID        int
		Name      string
		Colorizer func(a ...interface{}) string
	}
)

var (
	currentLevel atomic.Int32
	// writeMx keeps lines from concurrent goroutines from interleaving.
	writeMx sync.Mutex
	// LevelSpecs specifies the id, string name and color-printing function
	LevelSpecs = []LevelSpec{
		{Off, "   ", color.Bit24(0, 0, 0, false).Sprint},
		{Fatal, "FTL", color.Bit24(128, 0, 0, false).Sprint},
		{Error, "ERR", color.Bit24(255, 0, 0, false).Sprint},
		{Warn, "WRN", color.Bit24(0, 255, 0, false).Sprint},
		{Info, "INF", color.Bit24(255, 255, 0, false).Sprint},
		{Debug, "DBG", color.Bit24(0, 125, 255, false).Sprint},
		{Trace, "TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
	// LevelNames maps the names accepted by SetLogLevelName to levels.
	LevelNames = map[string]int{
		"off":   Off,
		"fatal": Fatal,
		"error": Error,
		"warn":  Warn,
		"info":  Info,
		"debug": Debug,
		"trace": Trace,
	}
)

func init() {
	switch strings.ToUpper(os.Getenv("GODEBUG")) {
	case "1", "TRUE", "ON", "DEBUG":
		SetLogLevel(Debug)
	case "TRACE":
		SetLogLevel(Trace)
	case "WARN":
		SetLogLevel(Warn)
	case "ERROR":
		SetLogLevel(Error)
	case "FATAL":
		SetLogLevel(Fatal)
	case "0", "OFF", "FALSE":
		SetLogLevel(Off)
	default:
		SetLogLevel(Info)
	}
}

// Log is a set of log printers for the various Level items.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

type Check struct {
	F, E, W, I, D, T Chk
}

func JoinStrings(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

func enabled(l int32) bool { return l <= currentLevel.Load() }

func emit(writer io.Writer, l int32, text string) {
	writeMx.Lock()
	defer writeMx.Unlock()
	_, _ = fmt.Fprintf(writer,
		"%s %s %s\n",
		LevelSpecs[l].Colorizer(LevelSpecs[l].Name),
		text,
		GetLoc(3),
	)
}

func GetPrinter(l int32, writer io.Writer) LevelPrinter {
	return LevelPrinter{
		Ln: func(a ...interface{}) {
			if enabled(l) {
				emit(writer, l, JoinStrings(a...))
			}
		},
		F: func(format string, a ...interface{}) {
			if enabled(l) {
				emit(writer, l, fmt.Sprintf(format, a...))
			}
		},
		S: func(a ...interface{}) {
			if enabled(l) {
				emit(writer, l, spew.Sdump(a...))
			}
		},
		C: func(closure func() string) {
			if enabled(l) {
				emit(writer, l, closure())
			}
		},
		Chk: func(e error) bool {
			if e != nil {
				if enabled(l) {
					emit(writer, l, e.Error())
				}
				return true
			}
			return false
		},
		Err: func(format string, a ...interface{}) error {
			err := fmt.Errorf(format, a...)
			if enabled(l) {
				emit(writer, l, err.Error())
			}
			return err
		},
	}
}

func New(writer io.Writer) (l *Log, c *Check) {
	l = &Log{
		F: GetPrinter(Fatal, writer),
		E: GetPrinter(Error, writer),
		W: GetPrinter(Warn, writer),
		I: GetPrinter(Info, writer),
		D: GetPrinter(Debug, writer),
		T: GetPrinter(Trace, writer),
	}
	c = &Check{
		F: l.F.Chk,
		E: l.E.Chk,
		W: l.W.Chk,
		I: l.I.Chk,
		D: l.D.Chk,
		T: l.T.Chk,
	}
	return
}

func SetLogLevel(l int) {
	if l < Off {
		l = Off
	}
	if l > Trace {
		l = Trace
	}
	currentLevel.Store(int32(l))
}

// SetLogLevelName sets the level by name, matching on the first letter so
// "d", "dbg" and "debug" all select Debug. Unknown names leave the level
// unchanged and return false.
func SetLogLevelName(name string) (ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	for n, l := range LevelNames {
		if n[0] == name[0] {
			SetLogLevel(l)
			return true
		}
	}
	return
}

func GetLogLevel() (l int) { return int(currentLevel.Load()) }

func GetLoc(skip int) (output string) {
	_, file, line, _ := runtime.Caller(skip)
	output = color.Bit24(0, 128, 255, false).Sprint(
		file, ":", line,
	)
	return
}
