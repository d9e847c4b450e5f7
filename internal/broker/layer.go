// internal/broker/layer.go
package broker

import (
	"context"
	"errors"
)

var (
	// ErrInvalidName rejects channel or group names that fail validation.
	ErrInvalidName = errors.New("invalid channel or group name")
	// ErrReservedKey rejects messages that already carry the framing key used
	// to reroute specific-channel sends through their general channel.
	ErrReservedKey = errors.New("message contains reserved key")
)

// ChannelLayer is the broker's capability set. Implementations over other
// backing stores can be swapped in without touching callers.
type ChannelLayer interface {
	// Send delivers message onto a general or specific channel.
	Send(ctx context.Context, channel string, message map[string]interface{}) error
	// Receive blocks until a message arrives on channel and returns the
	// original channel name alongside it. When several callers wait on the
	// same channel, each message goes to exactly one of them.
	Receive(ctx context.Context, channel string) (string, map[string]interface{}, error)
	// NewChannel returns a fresh process-bound specific channel name.
	NewChannel(prefix string) string
	// GroupAdd enrolls channel in group.
	GroupAdd(ctx context.Context, group, channel string) error
	// GroupDiscard removes channel from group; absent membership is not an
	// error.
	GroupDiscard(ctx context.Context, group, channel string) error
	// GroupSend fans message out to every current member of group.
	GroupSend(ctx context.Context, group string, message map[string]interface{}) error
	// Flush drops every pending message and every group membership.
	Flush(ctx context.Context) error
}
