// Package audit publishes security events about shop credentials to the log
// or a message broker.
package audit

import (
	"context"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/idx"
)

type EventType string

const (
	ShopSignedUp         EventType = "shop.signed_up"
	ShopLoggedIn         EventType = "shop.logged_in"
	SessionRotated       EventType = "session.rotated"
	SessionReuseDetected EventType = "session.reuse_detected"
	SessionLoggedOut     EventType = "session.logged_out"
)

type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	ShopID     string    `json:"shopId"`
	SessionID  string    `json:"sessionId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewEvent(typ EventType, shopID, sessionID string, at time.Time) Event {
	return Event{
		ID:         idx.NewAt(at).String(),
		Type:       typ,
		ShopID:     shopID,
		SessionID:  sessionID,
		OccurredAt: at.UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
