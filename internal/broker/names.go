// internal/broker/names.go
package broker

import (
	"fmt"
	"regexp"
	"strings"
)

// reservedKey carries the original specific-channel name when a message is
// stored under its general channel key.
const reservedKey = "__asgi_channel__"

const maxNameLength = 99

var (
	channelNameRe = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+(![a-zA-Z0-9\-_.]*)?$`)
	groupNameRe   = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+$`)
)

// ValidChannelName reports whether name is a syntactically valid channel
// name, general or specific.
func ValidChannelName(name string) bool {
	return len(name) <= maxNameLength && channelNameRe.MatchString(name)
}

// ValidGroupName reports whether name is a syntactically valid group name.
func ValidGroupName(name string) bool {
	return len(name) <= maxNameLength && groupNameRe.MatchString(name)
}

// nonLocalName strips the process-local part of a specific channel name,
// keeping the "!" so specific traffic stays partitioned from the plain
// general channel of the same name.
func nonLocalName(name string) string {
	if i := strings.IndexByte(name, '!'); i >= 0 {
		return name[:i+1]
	}
	return name
}

func (l *PostgresChannelLayer) channelKey(channel string) string {
	return fmt.Sprintf("%s:channel:%s", l.prefix, nonLocalName(channel))
}

func (l *PostgresChannelLayer) groupKey(group string) string {
	return fmt.Sprintf("%s:group:%s", l.prefix, group)
}
