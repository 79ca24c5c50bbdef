package gateway

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"alarm-gateway/internal/login"
	"alarm-gateway/internal/payload"
)

// idleSleep is the timer duration used when the pending queue offers no
// useful wake-up instant (empty, or blocked on a full worker pool); the
// driver still wakes promptly on enqueue/reap/shutdown signals via wakeCh.
const idleSleep = time.Hour

// ConnectionManager owns a fixed worker pool for one gateway-kind, a
// time-ordered retry queue, and the single driver task that reaps finished
// workers and dispatches due messages.
type ConnectionManager struct {
	kind  payload.GatewayKind
	retry login.RetryPolicy
	login login.Login

	statusCb    StatusCallback
	exceptionCb ExceptionCallback

	mu        sync.Mutex
	available []*Worker
	busy      map[*Worker]struct{}
	pending   pendingQueue

	wakeCh     chan struct{}
	shutdownCh chan struct{}
	doneCh     chan struct{}
	runningWG  sync.WaitGroup
}

// NewConnectionManager constructs and starts a connection manager for one
// gateway-kind, with a worker pool sized by retry.MaxConcurrentConnections.
func NewConnectionManager(kind payload.GatewayKind, l login.Login, sender Sender, statusCb StatusCallback, exceptionCb ExceptionCallback) *ConnectionManager {
	m := &ConnectionManager{
		kind:        kind,
		retry:       l.Retry,
		login:       l,
		statusCb:    statusCb,
		exceptionCb: exceptionCb,
		busy:        make(map[*Worker]struct{}),
		wakeCh:      make(chan struct{}, 1),
		shutdownCh:  make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	heap.Init(&m.pending)
	for i := 0; i < l.Retry.MaxConcurrentConnections; i++ {
		m.available = append(m.available, newWorker(sender, exceptionCb))
	}
	go m.driverLoop()
	return m
}

func (m *ConnectionManager) wake() {
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

// AddMessage enqueues a new dispatch with due = now and wakes the driver.
// Blocks only for the duration of a mutex acquisition; never on I/O.
func (m *ConnectionManager) AddMessage(sequence uint64, code string, utcTime time.Time, isRealAlarm bool, p payload.Payload, audio *AudioReference) {
	msg := Message{
		Sequence:    sequence,
		Code:        code,
		EventTime:   utcTime,
		IsRealAlarm: isRealAlarm,
		Payload:     p.Clone(),
		Login:       m.login,
		Audio:       audio.clone(),
	}
	m.mu.Lock()
	heap.Push(&m.pending, &pendingItem{due: time.Now(), msg: msg})
	m.mu.Unlock()
	m.wake()
}

func (m *ConnectionManager) driverLoop() {
	defer close(m.doneCh)
	defer func() {
		if r := recover(); r != nil {
			if m.exceptionCb != nil {
				m.exceptionCb(fmt.Errorf("connection manager driver panic: %v", r))
			}
		}
	}()

	for {
		m.reapAndDispatch()

		select {
		case <-m.shutdownCh:
			m.drain()
			return
		case <-m.wakeCh:
		case <-time.After(m.sleepDuration()):
		}
	}
}

func (m *ConnectionManager) reapAndDispatch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for w := range m.busy {
		status, _, sequence, attemptCount, inFlight := w.GetStatus()
		if status.Code == InProcessing {
			continue
		}
		delete(m.busy, w)
		m.available = append(m.available, w)

		reported := status
		if status.Code == NonFatalFailure {
			if attemptCount < m.retry.MaxAttempts {
				if inFlight != nil {
					heap.Push(&m.pending, &pendingItem{
						due:          time.Now().Add(time.Duration(m.retry.RetryDelaySeconds) * time.Second),
						msg:          *inFlight,
						attemptsMade: attemptCount,
					})
				}
			} else {
				reported = Status{Code: TimeoutFailure, Text: status.Text}
			}
		}

		if m.statusCb != nil {
			var payloadClone payload.Payload
			if inFlight != nil {
				payloadClone = inFlight.Payload.Clone()
			}
			code := ""
			if inFlight != nil {
				code = inFlight.Code
			}
			m.statusCb(SendStatusMessage{
				Sequence:          sequence,
				Code:              code,
				Status:            reported,
				AttemptCount:      attemptCount,
				RetryDelaySeconds: m.retry.RetryDelaySeconds,
				Payload:           payloadClone,
			})
		}
	}

	for m.pending.Len() > 0 && len(m.available) > 0 {
		head := m.pending.peek()
		if head.due.After(time.Now()) {
			break
		}
		item := heap.Pop(&m.pending).(*pendingItem)
		worker := m.available[len(m.available)-1]
		m.available = m.available[:len(m.available)-1]
		m.busy[worker] = struct{}{}

		m.runningWG.Add(1)
		worker.Submit(item.msg, item.attemptsMade+1, func() {
			m.runningWG.Done()
			m.wake()
		})
	}
}

func (m *ConnectionManager) sleepDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	head := m.pending.peek()
	if head == nil || len(m.available) == 0 {
		return idleSleep
	}
	d := time.Until(head.due)
	if d < 0 {
		return 0
	}
	return d
}

// drain discards not-yet-dispatched messages and waits for in-flight
// attempts to finish; it does not interrupt them.
func (m *ConnectionManager) drain() {
	m.mu.Lock()
	m.pending = pendingQueue{}
	for w := range m.busy {
		w.shutdown()
	}
	m.mu.Unlock()
	m.runningWG.Wait()
}

// Shutdown signals the driver to drain and blocks until it has joined every
// worker.
func (m *ConnectionManager) Shutdown() {
	select {
	case <-m.shutdownCh:
	default:
		close(m.shutdownCh)
	}
	<-m.doneCh
}
