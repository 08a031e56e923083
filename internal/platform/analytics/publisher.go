// Package analytics provides a fire-and-forget NATS publisher for
// marketplace interaction events (comments, replies, likes).
package analytics

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/market-comments/internal/platform/logging"
)

// Subject constants for every analytics event type.
const (
	SubjectCommentCreated = "analytics.comments.created"
	SubjectCommentReplied = "analytics.comments.replied"
	SubjectCommentEdited  = "analytics.comments.edited"
	SubjectCommentDeleted = "analytics.comments.deleted"
	SubjectProductLiked   = "analytics.likes.added"
	SubjectProductUnliked = "analytics.likes.removed"
)

// Event is the canonical envelope sent to all analytics.* subjects.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher publishes analytics events on a NATS connection.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	nc  *nats.Conn
	log *zap.Logger
	now func() time.Time
}

// New creates a Publisher over an existing connection.
// Pass nc=nil to get a no-op stub (tests, or analytics disabled).
func New(nc *nats.Conn, log *zap.Logger) *Publisher {
	log = logging.OrNop(log)
	return &Publisher{nc: nc, log: log, now: time.Now}
}

// Publish sends an analytics event without waiting for delivery.
// Failures are logged as warnings and never surface to the caller.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := encode(eventName, userID, props, p.now())
	if err != nil {
		p.log.Warn("analytics: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn("analytics: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func encode(eventName, userID string, props map[string]any, at time.Time) ([]byte, error) {
	return json.Marshal(Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: at.UTC(),
		Properties: props,
	})
}
