// internal/broker/postgres.go
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pgbroker/internal/metrics"
	"pgbroker/internal/model"
	"pgbroker/internal/serializer"
	"pgbroker/internal/storage"
)

// membershipNeverExpires is the expiry stamped on group rows when membership
// expiry is disabled.
var membershipNeverExpires = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Options configures a PostgresChannelLayer. Except for GroupExpiry, zero
// values fall back to the documented defaults.
type Options struct {
	// Prefix namespaces every storage key, so independent layers can share
	// one database.
	Prefix string
	// MessageExpiry bounds how long an unclaimed message stays deliverable.
	MessageExpiry time.Duration
	// GroupExpiry bounds how long a membership lasts; zero disables
	// membership expiry.
	GroupExpiry time.Duration
	// ReceiveWait bounds one notification wait before the backlog is
	// rechecked. Keeping it short is what tolerates lost notifications.
	ReceiveWait time.Duration
	// Capacity and ChannelCapacity are advisory; the delivery path does not
	// enforce them.
	Capacity        int
	ChannelCapacity map[string]int
	// Alias labels this layer's metrics.
	Alias string
	// NewID generates row and channel-name identifiers; defaults to uuid.New.
	NewID func() uuid.UUID
}

// PostgresChannelLayer implements ChannelLayer on a Postgres message store,
// using LISTEN/NOTIFY to wake blocked receivers and FOR UPDATE SKIP LOCKED
// claims to arbitrate which receiver wins each message.
type PostgresChannelLayer struct {
	store *storage.Store

	prefix          string
	clientPrefix    string
	messageExpiry   time.Duration
	groupExpiry     time.Duration
	receiveWait     time.Duration
	capacity        int
	channelCapacity map[string]int
	alias           string
	newID           func() uuid.UUID
}

func New(store *storage.Store, opts Options) *PostgresChannelLayer {
	if opts.Prefix == "" {
		opts.Prefix = "asgi"
	}
	if opts.MessageExpiry == 0 {
		opts.MessageExpiry = 60 * time.Second
	}
	if opts.ReceiveWait == 0 {
		opts.ReceiveWait = 5 * time.Second
	}
	if opts.Capacity == 0 {
		opts.Capacity = 100
	}
	if opts.Alias == "" {
		opts.Alias = "default"
	}
	if opts.NewID == nil {
		opts.NewID = uuid.New
	}
	return &PostgresChannelLayer{
		store:           store,
		prefix:          opts.Prefix,
		clientPrefix:    hex(uuid.New()),
		messageExpiry:   opts.MessageExpiry,
		groupExpiry:     opts.GroupExpiry,
		receiveWait:     opts.ReceiveWait,
		capacity:        opts.Capacity,
		channelCapacity: opts.ChannelCapacity,
		alias:           opts.Alias,
		newID:           opts.NewID,
	}
}

func hex(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// Send stores one message for channel. A specific channel's message is filed
// under its general channel key with the true destination framed into the
// payload, so any process can drain the shared queue and still route it.
func (l *PostgresChannelLayer) Send(ctx context.Context, channel string, message map[string]interface{}) error {
	if !ValidChannelName(channel) {
		return fmt.Errorf("%w: %q", ErrInvalidName, channel)
	}
	if _, ok := message[reservedKey]; ok {
		return fmt.Errorf("%w: %q", ErrReservedKey, reservedKey)
	}

	if strings.ContainsRune(channel, '!') {
		framed := make(map[string]interface{}, len(message)+1)
		for k, v := range message {
			framed[k] = v
		}
		framed[reservedKey] = channel
		message = framed
	}

	payload, err := serializer.Encode(message)
	if err != nil {
		return err
	}

	m := &model.Message{
		ID:         l.newID(),
		ChannelKey: l.channelKey(channel),
		Payload:    payload,
		Expire:     time.Now().Add(l.messageExpiry),
	}
	if err := l.store.InsertMessage(ctx, m); err != nil {
		return err
	}
	metrics.MessagesSent.WithLabelValues(l.alias).Inc()
	return nil
}

// Receive blocks until one message destined for channel can be claimed, then
// returns the original channel name and the decoded message.
func (l *PostgresChannelLayer) Receive(ctx context.Context, channel string) (string, map[string]interface{}, error) {
	if !ValidChannelName(channel) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidName, channel)
	}

	metrics.ReceiversWaiting.WithLabelValues(l.alias).Inc()
	defer metrics.ReceiversWaiting.WithLabelValues(l.alias).Dec()

	m, err := l.receiveOne(ctx, l.channelKey(channel))
	if err != nil {
		return "", nil, err
	}

	message, err := serializer.Decode(m.Payload)
	if err != nil {
		return "", nil, err
	}
	if original, ok := message[reservedKey].(string); ok {
		channel = original
	}
	delete(message, reservedKey)

	return channel, message, nil
}

// receiveOne races the stored backlog against the notification channel.
// Claims use SKIP LOCKED row locks scoped to a single transaction, so
// concurrent receivers on the same key never block each other and every
// message goes to exactly one winner. The bounded wait plus backlog recheck
// is the backstop for notifications that are lost or arrive for rows someone
// else already claimed.
func (l *PostgresChannelLayer) receiveOne(ctx context.Context, channelKey string) (*model.Message, error) {
	var notifier *storage.Notifier
	defer func() {
		if notifier != nil {
			notifier.Close()
		}
	}()

	for {
		m, err := l.store.ClaimOldest(ctx, channelKey, time.Now())
		if err != nil {
			return nil, err
		}
		if m != nil {
			metrics.MessagesReceived.WithLabelValues(l.alias, "backlog").Inc()
			return m, nil
		}

		if notifier == nil {
			notifier, err = l.store.Listener(channelKey)
			if err != nil {
				return nil, err
			}
			// A message may have been committed between the empty backlog
			// check and LISTEN taking effect.
			continue
		}

		payload, ok, err := notifier.Wait(ctx, l.receiveWait)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		metrics.ReceiveWakeups.WithLabelValues(l.alias).Inc()

		id, err := uuid.Parse(payload)
		if err != nil {
			continue
		}
		m, err = l.store.ClaimByID(ctx, id, time.Now())
		if err != nil {
			return nil, err
		}
		if m != nil {
			metrics.MessagesReceived.WithLabelValues(l.alias, "notify").Inc()
			return m, nil
		}
		// Another waiter won the row, or it expired; fall through to the
		// backlog check.
	}
}

// NewChannel returns a specific channel name no other process or call can
// collide with: the layer's per-instance token plus a fresh suffix per call.
func (l *PostgresChannelLayer) NewChannel(prefix string) string {
	return fmt.Sprintf("%s.%s!%s", prefix, l.clientPrefix, hex(l.newID()))
}

// GroupAdd enrolls channel in group. Adds are deliberately not idempotent:
// each call inserts a row, and fan-out sends once per row.
func (l *PostgresChannelLayer) GroupAdd(ctx context.Context, group, channel string) error {
	if !ValidGroupName(group) {
		return fmt.Errorf("%w: %q", ErrInvalidName, group)
	}
	if !ValidChannelName(channel) {
		return fmt.Errorf("%w: %q", ErrInvalidName, channel)
	}

	expire := membershipNeverExpires
	if l.groupExpiry > 0 {
		expire = time.Now().Add(l.groupExpiry)
	}
	return l.store.AddGroupMembership(ctx, &model.GroupMembership{
		ID:       l.newID(),
		GroupKey: l.groupKey(group),
		Channel:  channel,
		Expire:   expire,
	})
}

// GroupDiscard removes channel from group. Removing an absent membership is
// a no-op, not an error.
func (l *PostgresChannelLayer) GroupDiscard(ctx context.Context, group, channel string) error {
	if !ValidGroupName(group) {
		return fmt.Errorf("%w: %q", ErrInvalidName, group)
	}
	if !ValidChannelName(channel) {
		return fmt.Errorf("%w: %q", ErrInvalidName, channel)
	}
	_, err := l.store.RemoveGroupMembership(ctx, l.groupKey(group), channel)
	return err
}

// GroupSend sends message to every current member concurrently and waits for
// all of them. Any member failure fails the whole operation; members already
// delivered to are not rolled back.
func (l *PostgresChannelLayer) GroupSend(ctx context.Context, group string, message map[string]interface{}) error {
	if !ValidGroupName(group) {
		return fmt.Errorf("%w: %q", ErrInvalidName, group)
	}

	channels, err := l.store.GroupChannels(ctx, l.groupKey(group), time.Now())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, channel := range channels {
		channel := channel
		g.Go(func() error {
			return l.Send(gctx, channel, message)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("group send to %q failed: %w", group, err)
	}
	metrics.GroupSends.WithLabelValues(l.alias).Inc()
	return nil
}

// Flush drops all pending messages and memberships. Notifications already
// queued by Postgres are not retractable; receivers they wake will find
// nothing to claim.
func (l *PostgresChannelLayer) Flush(ctx context.Context) error {
	return l.store.Flush(ctx)
}

var _ ChannelLayer = (*PostgresChannelLayer)(nil)
