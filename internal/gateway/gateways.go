package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"alarm-gateway/internal/login"
	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/routing"
	domainerrors "alarm-gateway/pkg/errors"
)

// SenderFactory builds a channel Sender for one gateway-kind given its
// credentials. Construction happens once per (re-)creation of the
// connection manager for that kind.
type SenderFactory func(kind payload.GatewayKind, creds login.Credentials) (Sender, error)

// GatewaysManager owns one ConnectionManager per gateway-kind present in
// the login database and routes each dispatched payload to the manager for
// its kind.
type GatewaysManager struct {
	statusCb      StatusCallback
	exceptionCb   ExceptionCallback
	senderFactory SenderFactory

	mu         sync.Mutex
	loginDB    *login.Database
	messagesDB *routing.AlarmMessageDatabase
	managers   map[payload.GatewayKind]*ConnectionManager

	sequence uint64
}

// NewGatewaysManager constructs a manager holding no connection managers
// yet; ResetLoginDB creates them once both databases are populated.
func NewGatewaysManager(statusCb StatusCallback, exceptionCb ExceptionCallback, senderFactory SenderFactory) *GatewaysManager {
	return &GatewaysManager{
		statusCb:      statusCb,
		exceptionCb:   exceptionCb,
		senderFactory: senderFactory,
		managers:      make(map[payload.GatewayKind]*ConnectionManager),
	}
}

// ResetMessagesDB atomically replaces the routing database.
func (g *GatewaysManager) ResetMessagesDB(db *routing.AlarmMessageDatabase) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messagesDB = db
}

// ResetLoginDB atomically replaces the login database. When both databases
// are populated this (re-)creates one ConnectionManager per gateway-kind
// present, sharing the manager's callbacks; connection managers for kinds
// no longer present are shut down.
func (g *GatewaysManager) ResetLoginDB(db *login.Database) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loginDB = db
	if g.messagesDB == nil || g.loginDB == nil {
		return nil
	}

	next := make(map[payload.GatewayKind]*ConnectionManager, len(db.Kinds()))
	for _, kind := range db.Kinds() {
		l, ok := db.Search(kind)
		if !ok {
			continue
		}
		sender, err := g.senderFactory(kind, l.Credentials)
		if err != nil {
			for _, created := range next {
				created.Shutdown()
			}
			return domainerrors.NewConfigError(fmt.Sprintf("constructing sender for gateway kind %q", kind), err)
		}
		next[kind] = NewConnectionManager(kind, l, sender, g.statusCb, g.exceptionCb)
	}

	old := g.managers
	g.managers = next
	for kind, mgr := range old {
		if _, stillPresent := next[kind]; !stillPresent {
			mgr.Shutdown()
		}
	}
	return nil
}

// Shutdown stops every connection manager.
func (g *GatewaysManager) Shutdown() {
	g.mu.Lock()
	managers := g.managers
	g.managers = make(map[payload.GatewayKind]*ConnectionManager)
	g.mu.Unlock()
	for _, mgr := range managers {
		mgr.Shutdown()
	}
}

// audioFor applies the requiredState routing rule: non-immediate email
// payloads may carry the recorded audio; immediate ones, and infoalarm
// (always immediate), must not.
func audioFor(p payload.Payload, audio *AudioReference) *AudioReference {
	switch v := p.(type) {
	case *payload.Email:
		if v.DeliverImmediately {
			return nil
		}
		return audio
	case *payload.Infoalarm:
		return nil
	default:
		return audio
	}
}

// Send looks up the routing for (code, utcTime), then routes every
// resulting payload to the connection manager matching its gateway-kind.
// Fails with NoMatch if routing found nothing, or UnknownGateway if a
// payload's gateway-kind has no connection manager.
func (g *GatewaysManager) Send(code string, utcTime time.Time, audio *AudioReference, isRealAlarm bool) error {
	g.mu.Lock()
	messagesDB := g.messagesDB
	g.mu.Unlock()
	if messagesDB == nil {
		return domainerrors.NewConfigError("gateways manager has no routing database configured", nil)
	}

	payloads, _, err := messagesDB.Search(code, utcTime)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range payloads {
		kind := p.GatewayKind()
		mgr, ok := g.managers[kind]
		if !ok {
			return domainerrors.NewUnknownGateway(fmt.Sprintf("no connection manager for gateway kind %q", kind))
		}
		seq := atomic.AddUint64(&g.sequence, 1)
		mgr.AddMessage(seq, code, utcTime, isRealAlarm, p, audioFor(p, audio))
	}
	return nil
}
