package gateway

import (
	"context"
	"time"

	"alarm-gateway/internal/login"
	"alarm-gateway/internal/payload"
)

// AudioReference is an opaque recorded-audio attachment threaded through a
// dispatch; channel implementations that cannot use it (REST, external
// program) simply ignore it.
type AudioReference struct {
	Data      []byte
	MediaType string
}

func (a *AudioReference) clone() *AudioReference {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &AudioReference{Data: data, MediaType: a.MediaType}
}

// Message is one in-flight dispatch: owned exclusively while enqueued or
// being handled by exactly one worker.
type Message struct {
	Sequence     uint64
	Code         string
	EventTime    time.Time
	IsRealAlarm  bool
	Payload      payload.Payload
	Login        login.Login
	Audio        *AudioReference
	AttemptCount int
}

// Clone returns an independent deep copy — login.Login's fields are all
// scalar, so a value copy of it is already a full clone.
func (m Message) Clone() Message {
	return Message{
		Sequence:     m.Sequence,
		Code:         m.Code,
		EventTime:    m.EventTime,
		IsRealAlarm:  m.IsRealAlarm,
		Payload:      m.Payload.Clone(),
		Login:        m.Login,
		Audio:        m.Audio.clone(),
		AttemptCount: m.AttemptCount,
	}
}

// Sender is the channel contract a connection worker drives: exactly one
// blocking send attempt per call. Implementations classify failures by
// returning a *pkg/errors.DomainError of kind NonFatalSend, FatalSend, or
// TimeoutSend; any other error is treated as fatal.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
