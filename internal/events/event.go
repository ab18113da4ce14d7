// Package events publishes ledger changes for other services to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Event types
const (
	TypeExpenseCreated    = "expense.created"
	TypeExpenseUpdated    = "expense.updated"
	TypeExpenseDeleted    = "expense.deleted"
	TypeMemberJoined      = "group.member_joined"
	TypeGroupRecalculated = "group.recalculated"
)

// Event describes one committed ledger change
type Event struct {
	Type        string    `json:"type"`
	GroupID     int64     `json:"group_id"`
	ExpenseID   int64     `json:"expense_id,omitempty"`
	MemberID    int64     `json:"member_id,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// New stamps an event with the current time
func New(eventType string, groupID int64) Event {
	return Event{Type: eventType, GroupID: groupID, OccurredAt: time.Now().UTC()}
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event body
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("event type is required")
	}
	return &e, nil
}

// Publisher delivers events after the transaction that produced them commits
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher backed by logger (slog.Default when nil)
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event at debug level
func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.DebugContext(ctx, "ledger event",
		"type", e.Type,
		"group_id", e.GroupID,
		"expense_id", e.ExpenseID,
		"member_id", e.MemberID)
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error { return nil }

// PublishQuietly publishes and logs failures instead of returning them.
// The ledger change is already committed at this point.
func PublishQuietly(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger event",
			"type", e.Type,
			"group_id", e.GroupID,
			"error", err)
	}
}
