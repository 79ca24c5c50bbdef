package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainerrors "alarm-gateway/pkg/errors"
)

// WorkerState is a connection worker's place in its state machine.
type WorkerState int

const (
	WorkerIdle WorkerState = iota
	WorkerSending
	WorkerAwaitingDrain
)

// Worker is one task bound to one long-lived gateway client instance. It
// sends exactly one payload at a time and reports terminal per-attempt
// status.
type Worker struct {
	sender      Sender
	exceptionCb ExceptionCallback

	mu           sync.Mutex
	state        WorkerState
	status       Status
	eventTime    time.Time
	sequence     uint64
	attemptCount int
	inFlight     *Message
}

func newWorker(sender Sender, exceptionCb ExceptionCallback) *Worker {
	return &Worker{sender: sender, exceptionCb: exceptionCb, status: Status{Code: NoMessage}}
}

// Submit transitions the worker Idle->Sending and drives the send in a new
// goroutine. Callers must only submit to a worker they just observed Idle;
// submit does not itself wait for a prior send to finish.
//
// onDone is invoked exactly once, after the worker settles back to Idle (or
// AwaitingDrain if Shutdown raced it), whether the send succeeded, failed,
// or panicked.
func (w *Worker) Submit(msg Message, attemptCount int, onDone func()) {
	clone := msg.Clone()
	w.mu.Lock()
	w.state = WorkerSending
	w.status = Status{Code: InProcessing}
	w.attemptCount = attemptCount
	w.sequence = msg.Sequence
	w.eventTime = msg.EventTime
	w.inFlight = &clone
	w.mu.Unlock()

	go w.run(clone, attemptCount, onDone)
}

func (w *Worker) run(msg Message, attemptCount int, onDone func()) {
	defer func() {
		if r := recover(); r != nil {
			w.mu.Lock()
			if w.state != WorkerAwaitingDrain {
				w.state = WorkerIdle
			}
			w.status = Status{Code: FatalFailure, Text: fmt.Sprintf("worker panic: %v", r)}
			w.mu.Unlock()
			if w.exceptionCb != nil {
				w.exceptionCb(fmt.Errorf("connection worker panic: %v", r))
			}
		}
		if onDone != nil {
			onDone()
		}
	}()

	err := w.sender.Send(context.Background(), msg)
	status := classifySendResult(err)

	w.mu.Lock()
	w.status = status
	if w.state != WorkerAwaitingDrain {
		w.state = WorkerIdle
	}
	w.mu.Unlock()
}

func classifySendResult(err error) Status {
	if err == nil {
		return Status{Code: Success}
	}
	switch domainerrors.KindOf(err) {
	case domainerrors.KindNonFatalSend:
		return Status{Code: NonFatalFailure, Text: err.Error()}
	case domainerrors.KindTimeoutSend:
		return Status{Code: TimeoutFailure, Text: err.Error()}
	case domainerrors.KindFatalSend:
		return Status{Code: FatalFailure, Text: err.Error()}
	default:
		// An unclassified error from a channel implementation is treated as
		// fatal rather than silently retried.
		return Status{Code: FatalFailure, Text: err.Error()}
	}
}

// GetStatus returns a consistent snapshot of the worker's current state.
func (w *Worker) GetStatus() (status Status, eventTime time.Time, sequence uint64, attemptCount int, inFlight *Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var clone *Message
	if w.inFlight != nil {
		c := w.inFlight.Clone()
		clone = &c
	}
	return w.status, w.eventTime, w.sequence, w.attemptCount, clone
}

func (w *Worker) isIdle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == WorkerIdle
}

// shutdown marks the worker AwaitingDrain. A send already in flight is not
// interrupted; the manager must wait for it to finish via its own
// bookkeeping (the worker does not expose a blocking join).
func (w *Worker) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = WorkerAwaitingDrain
}
