package broker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidChannelName(t *testing.T) {
	valid := []string{
		"chat",
		"chat.room-1_a",
		"chat!",
		"chat!f81d4fae7dec",
		"a",
	}
	for _, name := range valid {
		require.True(t, ValidChannelName(name), "expected %q to be valid", name)
	}

	invalid := []string{
		"",
		"chat room",
		"chat:room",
		"!local",
		"chat!a!b",
		strings.Repeat("c", 100),
	}
	for _, name := range invalid {
		require.False(t, ValidChannelName(name), "expected %q to be invalid", name)
	}
}

func TestValidGroupName(t *testing.T) {
	require.True(t, ValidGroupName("room-42.news"))
	require.False(t, ValidGroupName("room!42"))
	require.False(t, ValidGroupName(""))
	require.False(t, ValidGroupName(strings.Repeat("g", 100)))
}

func TestNonLocalName(t *testing.T) {
	require.Equal(t, "chat", nonLocalName("chat"))
	require.Equal(t, "chat!", nonLocalName("chat!abc123"))
	require.Equal(t, "chat!", nonLocalName("chat!"))
}

func TestChannelAndGroupKeys(t *testing.T) {
	l := New(nil, Options{Prefix: "asgi"})

	require.Equal(t, "asgi:channel:chat", l.channelKey("chat"))
	require.Equal(t, "asgi:channel:chat!", l.channelKey("chat!abc123"))
	require.Equal(t, "asgi:group:room", l.groupKey("room"))
}

func TestNewChannel(t *testing.T) {
	l := New(nil, Options{})

	first := l.NewChannel("specific")
	second := l.NewChannel("specific")

	require.True(t, ValidChannelName(first))
	require.True(t, strings.HasPrefix(first, "specific."))
	require.Contains(t, first, "!")
	require.NotEqual(t, first, second)

	// Both names share the per-instance token, so they land on the same
	// general queue.
	require.Equal(t, nonLocalName(first), nonLocalName(second))

	other := New(nil, Options{})
	require.NotEqual(t, nonLocalName(first), nonLocalName(other.NewChannel("specific")))
}
