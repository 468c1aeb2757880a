package engine

import (
	"context"
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
)

// Task is a send running in the background.
type Task struct {
	done chan struct{}
	res  relaypool.SendResult
	err  error
}

func runTask(c context.Context, fn func(c context.Context) (relaypool.SendResult, error)) (t *Task) {
	t = &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.res, t.err = fn(c)
		chk.D(t.err)
	}()
	return
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or c is done, and returns the outcome
// of the send. Giving up on the wait does not stop the send.
func (t *Task) Wait(c context.Context) (relaypool.SendResult, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-c.Done():
		return relaypool.SendResult{}, fmt.Errorf("waiting for send: %v: %w",
			c.Err(), errs.Timeout)
	}
}
