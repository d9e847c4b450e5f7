// internal/storage/listener.go
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Notifier is the store's notify-on-commit capability: it subscribes to one
// channel key and hands out notification payloads as they arrive. The insert
// trigger fires pg_notify with the new row's id, and Postgres delivers it only
// after the inserting transaction commits.
type Notifier struct {
	listener *pq.Listener
}

// Listener subscribes a new Notifier to the given channel key. Each receiver
// holds its own Notifier for the lifetime of one receive call, so an
// abandoned wait never leaves shared state behind.
func (s *Store) Listener(channelKey string) (*Notifier, error) {
	l := pq.NewListener(s.DSN, 10*time.Second, time.Minute, nil)
	if err := l.Listen(channelKey); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen on %q: %w", channelKey, err)
	}
	return &Notifier{listener: l}, nil
}

// Wait blocks for the next notification payload, at most timeout. ok is false
// on timeout or when the underlying connection was re-established without a
// payload; both mean "recheck the backlog and wait again".
func (n *Notifier) Wait(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-timer.C:
		return "", false, nil
	case notification := <-n.listener.Notify:
		if notification == nil {
			// Connection was re-established; any rows inserted while it was
			// down are caught by the backlog recheck.
			return "", false, nil
		}
		return notification.Extra, true, nil
	}
}

func (n *Notifier) Close() error {
	return n.listener.Close()
}
