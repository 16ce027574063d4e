// Package events fans committed access events out to listeners: a message
// broker for downstream systems and a websocket feed for guard consoles.
// Delivery is best effort.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smartgate/server/internal/smartgate/types"
)

type Publisher interface {
	Publish(ctx context.Context, ev types.AccessEvent) error
}

// Multi publishes to every member and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev types.AccessEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RoutingKey is access.<decision>.<gate>, e.g. access.deny.inner.
func RoutingKey(ev types.AccessEvent) string {
	gate := ev.GateSlug
	if gate == "" {
		gate = "unknown"
	}
	return "access." + strings.ToLower(string(ev.Decision)) + "." + gate
}

// Message is the envelope written to every sink.
type Message struct {
	Type      string            `json:"type"`
	Payload   types.AccessEvent `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
}

func envelope(ev types.AccessEvent) Message {
	return Message{Type: "access_event", Payload: ev, Timestamp: time.Now().UTC()}
}
