package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// Validation runs before any storage access, so these paths are testable
// without a database.

func TestSendRejectsInvalidName(t *testing.T) {
	l := New(nil, Options{})

	err := l.Send(context.Background(), "no spaces allowed", map[string]interface{}{})
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestSendRejectsReservedKey(t *testing.T) {
	l := New(nil, Options{})

	err := l.Send(context.Background(), "chat", map[string]interface{}{
		"__asgi_channel__": "chat!abc",
	})
	require.ErrorIs(t, err, ErrReservedKey)
}

func TestReceiveRejectsInvalidName(t *testing.T) {
	l := New(nil, Options{})

	_, _, err := l.Receive(context.Background(), "bad:name")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestGroupOpsRejectInvalidNames(t *testing.T) {
	l := New(nil, Options{})
	ctx := context.Background()

	require.ErrorIs(t, l.GroupAdd(ctx, "room!7", "chat"), ErrInvalidName)
	require.ErrorIs(t, l.GroupAdd(ctx, "room", "bad name"), ErrInvalidName)
	require.ErrorIs(t, l.GroupDiscard(ctx, "room!7", "chat"), ErrInvalidName)
	require.ErrorIs(t, l.GroupSend(ctx, "room!7", map[string]interface{}{}), ErrInvalidName)
}
