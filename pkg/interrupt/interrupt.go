// Package interrupt runs shutdown handlers once, on SIGINT or SIGTERM or
// when Request is called, and exposes the shutdown as a context.
package interrupt

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
)

var log, _ = slog.New(os.Stderr)

type handler struct {
	source string
	fn     func()
}

var (
	mx        sync.Mutex
	handlers  []handler
	listening bool
	requested atomic.Bool
	trigger   = make(chan struct{})
	once      sync.Once
	// done is closed after every handler ran.
	done = make(chan struct{})
)

// signals cause the shutdown.
var signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func listen() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	defer signal.Stop(ch)
	select {
	case sig := <-ch:
		log.I.Ln("received", sig, "shutting down")
		requested.Store(true)
	case <-trigger:
		log.D.Ln("shutdown requested")
	}
	mx.Lock()
	hs := handlers
	handlers = nil
	mx.Unlock()
	// last added runs first
	for i := len(hs) - 1; i >= 0; i-- {
		log.T.Ln("running shutdown handler from", hs[i].source)
		hs[i].fn()
	}
	close(done)
}

func start() {
	mx.Lock()
	defer mx.Unlock()
	if !listening {
		listening = true
		go listen()
	}
}

// AddHandler registers fn to run on shutdown and starts listening for
// signals.
func AddHandler(fn func()) {
	_, file, line, _ := runtime.Caller(1)
	mx.Lock()
	handlers = append(handlers, handler{fmt.Sprintf("%s:%d", file, line), fn})
	mx.Unlock()
	start()
}

// Request shuts down as if a signal had been received. Calls after the
// first do nothing.
func Request() {
	if requested.Swap(true) {
		return
	}
	start()
	once.Do(func() { close(trigger) })
}

func Requested() bool { return requested.Load() }

// Done is closed once the shutdown handlers have run.
func Done() <-chan struct{} { return done }

// Context is cancelled when the shutdown starts.
func Context(parent context.Context) context.Context {
	c, cancel := context.WithCancel(parent)
	AddHandler(cancel)
	return c
}
