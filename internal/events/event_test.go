package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSON(t *testing.T) {
	e := New(TypeExpenseCreated, 7)
	e.ExpenseID = 12
	e.AmountCents = 10000

	body, err := e.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"expense.created"`)
	assert.NotContains(t, string(body), "member_id")

	parsed, err := FromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, e.GroupID, parsed.GroupID)
	assert.Equal(t, e.ExpenseID, parsed.ExpenseID)
	assert.True(t, e.OccurredAt.Equal(parsed.OccurredAt))
}

func TestFromJSONRejectsInvalid(t *testing.T) {
	_, err := FromJSON([]byte(`{"group_id": 1}`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := NewLogPublisher(logger)
	require.NoError(t, p.Publish(context.Background(), New(TypeMemberJoined, 3)))
	assert.Contains(t, buf.String(), "group.member_joined")
	assert.NoError(t, p.Close())
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestPublishQuietly(t *testing.T) {
	f := &failingPublisher{}
	assert.NotPanics(t, func() {
		PublishQuietly(context.Background(), f, New(TypeExpenseDeleted, 1))
		PublishQuietly(context.Background(), nil, New(TypeExpenseDeleted, 1))
	})
	assert.Equal(t, 1, f.calls)
}
