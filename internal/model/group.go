// internal/model/group.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// GroupMembership enrolls a channel in a named group. Repeated adds of the
// same channel create repeated rows; fan-out reads them all.
type GroupMembership struct {
	ID       uuid.UUID `db:"id"`
	GroupKey string    `db:"group_key"`
	Channel  string    `db:"channel"`
	Expire   time.Time `db:"expire"`
}
