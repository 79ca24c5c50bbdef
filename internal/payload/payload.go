// Package payload implements the outbound message payload variants: Email,
// Rest, External, and the Infoalarm decorator. Payloads are immutable value
// types cloned on insert into the routing database; the database owns its
// copies exclusively.
package payload

import (
	"fmt"
	"strings"
)

// ConfigError is returned by constructors that reject an invariant
// violation.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid payload: %s", e.Reason) }

// GatewayKind identifies which connection manager handles a payload.
type GatewayKind string

const (
	KindEmail    GatewayKind = "email"
	KindRest     GatewayKind = "rest"
	KindExternal GatewayKind = "external"
)

// Payload is the common contract every message variant implements.
type Payload interface {
	// GatewayKind reports which connection manager handles this payload.
	// Infoalarm reports its inner payload's kind.
	GatewayKind() GatewayKind
	// Clone returns a deep, independent copy.
	Clone() Payload
	// Equal reports deep structural equality.
	Equal(other Payload) bool
	// IsEmpty reports whether this is the "suppress this outbound" empty
	// sentinel.
	IsEmpty() bool
	// SetEmpty marks this payload as the empty sentinel. The only mutator
	// permitted after construction.
	SetEmpty()
}

// Recipient is a (display name, address) pair used by Email.
type Recipient struct {
	DisplayName string
	Address     string
}

// Email is the SMTP payload variant.
type Email struct {
	SiteID            string
	AlarmID           string
	Recipients        []Recipient
	Body              string
	DeliverImmediately bool
	empty             bool
}

func NewEmail(siteID, alarmID string, recipients []Recipient, body string, deliverImmediately bool) *Email {
	rc := make([]Recipient, len(recipients))
	copy(rc, recipients)
	return &Email{
		SiteID:             siteID,
		AlarmID:            alarmID,
		Recipients:         rc,
		Body:               body,
		DeliverImmediately: deliverImmediately,
	}
}

func (e *Email) GatewayKind() GatewayKind { return KindEmail }

func (e *Email) Clone() Payload {
	rc := make([]Recipient, len(e.Recipients))
	copy(rc, e.Recipients)
	return &Email{SiteID: e.SiteID, AlarmID: e.AlarmID, Recipients: rc, Body: e.Body, DeliverImmediately: e.DeliverImmediately, empty: e.empty}
}

func (e *Email) Equal(other Payload) bool {
	o, ok := other.(*Email)
	if !ok {
		return false
	}
	if e.empty != o.empty || e.SiteID != o.SiteID || e.AlarmID != o.AlarmID || e.Body != o.Body || e.DeliverImmediately != o.DeliverImmediately {
		return false
	}
	if len(e.Recipients) != len(o.Recipients) {
		return false
	}
	for i := range e.Recipients {
		if e.Recipients[i] != o.Recipients[i] {
			return false
		}
	}
	return true
}

func (e *Email) IsEmpty() bool { return e.empty }
func (e *Email) SetEmpty()     { e.empty = true }

// RestTarget describes who a Rest payload's notification is addressed to.
// Several branches may be populated together; no combination is enforced.
type RestTarget struct {
	AllUsers  bool
	Labels    map[string]int // label name -> headcount
	Units     []string
	Scenarios []string
	Individuals []Individual
}

type Individual struct {
	First, Last string
}

func (t RestTarget) clone() RestTarget {
	out := RestTarget{AllUsers: t.AllUsers}
	if t.Labels != nil {
		out.Labels = make(map[string]int, len(t.Labels))
		for k, v := range t.Labels {
			out.Labels[k] = v
		}
	}
	out.Units = append([]string(nil), t.Units...)
	out.Scenarios = append([]string(nil), t.Scenarios...)
	out.Individuals = append([]Individual(nil), t.Individuals...)
	return out
}

func (t RestTarget) equal(o RestTarget) bool {
	if t.AllUsers != o.AllUsers {
		return false
	}
	if len(t.Labels) != len(o.Labels) {
		return false
	}
	for k, v := range t.Labels {
		if o.Labels[k] != v {
			return false
		}
	}
	if len(t.Units) != len(o.Units) || len(t.Scenarios) != len(o.Scenarios) || len(t.Individuals) != len(o.Individuals) {
		return false
	}
	for i := range t.Units {
		if t.Units[i] != o.Units[i] {
			return false
		}
	}
	for i := range t.Scenarios {
		if t.Scenarios[i] != o.Scenarios[i] {
			return false
		}
	}
	for i := range t.Individuals {
		if t.Individuals[i] != o.Individuals[i] {
			return false
		}
	}
	return true
}

func (t RestTarget) isZero() bool {
	return !t.AllUsers && len(t.Labels) == 0 && len(t.Units) == 0 && len(t.Scenarios) == 0 && len(t.Individuals) == 0
}

// Rest is the HTTPS REST-alarm-service payload variant.
type Rest struct {
	AlarmTemplateRef   string // (a) named alarm-template reference
	Target             RestTarget
	MessageText        string
	MessageTemplateRef string
	EventOpenHours     float64
	empty              bool
}

// NewRest constructs a Rest payload. Rejects message-text and
// message-template both set; both empty unless an alarm-template reference
// is given; negative event-open-duration.
func NewRest(alarmTemplateRef string, target RestTarget, messageText, messageTemplateRef string, eventOpenHours float64) (*Rest, error) {
	if messageText != "" && messageTemplateRef != "" {
		return nil, &ConfigError{Reason: "rest payload cannot set both message-text and message-template"}
	}
	if messageText == "" && messageTemplateRef == "" && alarmTemplateRef == "" {
		return nil, &ConfigError{Reason: "rest payload requires message-text, message-template, or an alarm-template reference"}
	}
	if eventOpenHours < 0 {
		return nil, &ConfigError{Reason: "rest payload event-open-duration must not be negative"}
	}
	return &Rest{
		AlarmTemplateRef:   alarmTemplateRef,
		Target:             target.clone(),
		MessageText:        messageText,
		MessageTemplateRef: messageTemplateRef,
		EventOpenHours:     eventOpenHours,
	}, nil
}

func (r *Rest) GatewayKind() GatewayKind { return KindRest }

func (r *Rest) Clone() Payload {
	return &Rest{
		AlarmTemplateRef:   r.AlarmTemplateRef,
		Target:             r.Target.clone(),
		MessageText:        r.MessageText,
		MessageTemplateRef: r.MessageTemplateRef,
		EventOpenHours:     r.EventOpenHours,
		empty:              r.empty,
	}
}

func (r *Rest) Equal(other Payload) bool {
	o, ok := other.(*Rest)
	if !ok {
		return false
	}
	return r.empty == o.empty &&
		r.AlarmTemplateRef == o.AlarmTemplateRef &&
		r.MessageText == o.MessageText &&
		r.MessageTemplateRef == o.MessageTemplateRef &&
		r.EventOpenHours == o.EventOpenHours &&
		r.Target.equal(o.Target)
}

func (r *Rest) IsEmpty() bool { return r.empty }
func (r *Rest) SetEmpty()     { r.empty = true }

// HasOpenDuration reports whether scheduledEndTime should be present in the
// outbound REST body.
func (r *Rest) HasOpenDuration() bool { return r.EventOpenHours > 0 }

// External is the arbitrary-process payload variant. The
// argument string may contain $CODE/$TIME/$TYPE, substituted at send time
// only.
type External struct {
	Command string
	Args    string
	empty   bool
}

func NewExternal(command, args string) *External {
	return &External{Command: command, Args: args}
}

func (e *External) GatewayKind() GatewayKind { return KindExternal }

func (e *External) Clone() Payload {
	return &External{Command: e.Command, Args: e.Args, empty: e.empty}
}

func (e *External) Equal(other Payload) bool {
	o, ok := other.(*External)
	return ok && e.empty == o.empty && e.Command == o.Command && e.Args == o.Args
}

func (e *External) IsEmpty() bool { return e.empty }
func (e *External) SetEmpty()     { e.empty = true }

const (
	PlaceholderCode = "$CODE"
	PlaceholderTime = "$TIME"
	PlaceholderType = "$TYPE"
)

// Substitute replaces $CODE/$TIME/$TYPE tokens in the argument string.
func (e *External) Substitute(code, formattedTime, alarmType string) string {
	r := strings.NewReplacer(PlaceholderCode, code, PlaceholderTime, formattedTime, PlaceholderType, alarmType)
	return r.Replace(e.Args)
}

// Infoalarm exclusively owns one inner payload and shares a list of sibling
// payloads describing companion notifications for the same event. Always
// deliver-immediately.
type Infoalarm struct {
	Inner    Payload
	Siblings []Payload
	empty    bool
}

// NewInfoalarm constructs an Infoalarm. inner must not be nil; siblings are
// deep-cloned so the database never aliases the caller's values.
func NewInfoalarm(inner Payload, siblings []Payload) (*Infoalarm, error) {
	if inner == nil {
		return nil, &ConfigError{Reason: "infoalarm requires a non-nil inner payload"}
	}
	sib := make([]Payload, len(siblings))
	for i, s := range siblings {
		if s == nil {
			return nil, &ConfigError{Reason: "infoalarm sibling list must not contain nil"}
		}
		sib[i] = s.Clone()
	}
	return &Infoalarm{Inner: inner.Clone(), Siblings: sib}, nil
}

// GatewayKind reports the inner payload's gateway-kind.
func (i *Infoalarm) GatewayKind() GatewayKind { return i.Inner.GatewayKind() }

func (i *Infoalarm) Clone() Payload {
	sib := make([]Payload, len(i.Siblings))
	for idx, s := range i.Siblings {
		sib[idx] = s.Clone()
	}
	return &Infoalarm{Inner: i.Inner.Clone(), Siblings: sib, empty: i.empty}
}

// Equal descends into the inner payload and then lexicographically into the
// sibling list.
func (i *Infoalarm) Equal(other Payload) bool {
	o, ok := other.(*Infoalarm)
	if !ok {
		return false
	}
	if i.empty != o.empty || !i.Inner.Equal(o.Inner) {
		return false
	}
	if len(i.Siblings) != len(o.Siblings) {
		return false
	}
	for idx := range i.Siblings {
		if !i.Siblings[idx].Equal(o.Siblings[idx]) {
			return false
		}
	}
	return true
}

func (i *Infoalarm) IsEmpty() bool { return i.empty }
func (i *Infoalarm) SetEmpty()     { i.empty = true }

// DeliverImmediately is always true for Infoalarm.
func (i *Infoalarm) DeliverImmediately() bool { return true }

// FilterEmpty drops every empty payload from the list, preserving order.
func FilterEmpty(payloads []Payload) []Payload {
	out := make([]Payload, 0, len(payloads))
	for _, p := range payloads {
		if p != nil && !p.IsEmpty() {
			out = append(out, p)
		}
	}
	return out
}

// ClonePayloads deep-clones a slice of payloads.
func ClonePayloads(payloads []Payload) []Payload {
	out := make([]Payload, len(payloads))
	for i, p := range payloads {
		out[i] = p.Clone()
	}
	return out
}
