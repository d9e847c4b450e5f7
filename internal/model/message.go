// internal/model/message.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is one pending payload addressed to a channel key. Rows are never
// updated: a message is inserted by send and deleted either by the receiver
// that claims it or by the GC once expired.
type Message struct {
	ID         uuid.UUID `db:"id"`
	ChannelKey string    `db:"channel_key"`
	Payload    []byte    `db:"payload"`
	Expire     time.Time `db:"expire"`
	CreatedAt  time.Time `db:"created_at"`
}
