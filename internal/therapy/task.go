// SPDX-License-Identifier: MIT
package therapy

import (
	"context"

	"github.com/google/uuid"
)

// Task is the pending result of one request. A started task always runs to
// completion.
type Task struct {
	ID      string
	Request ProcessingRequest

	done   chan struct{}
	result *ProcessingResult
	err    error
}

// Submit starts processing req against input on a new goroutine and returns
// immediately.
func Submit(req ProcessingRequest, input *PcmBuffer) *Task {
	t := newTask(req)
	go t.exec(func() (*ProcessingResult, error) {
		return Process(req, input)
	})
	return t
}

// failedTask returns an already finished task carrying err.
func failedTask(req ProcessingRequest, err error) *Task {
	t := newTask(req)
	t.exec(func() (*ProcessingResult, error) { return nil, err })
	return t
}

func newTask(req ProcessingRequest) *Task {
	return &Task{
		ID:      uuid.NewString(),
		Request: req,
		done:    make(chan struct{}),
	}
}

// exec runs fn and publishes its result. It must be called exactly once.
func (t *Task) exec(fn func() (*ProcessingResult, error)) {
	defer close(t.done)
	t.result, t.err = fn()
}

// Done is closed once the result is available.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends. An ended ctx does not stop
// the task; a later Wait still returns its result.
func (t *Task) Wait(ctx context.Context) (*ProcessingResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
