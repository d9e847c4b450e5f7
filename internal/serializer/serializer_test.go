package serializer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	message := map[string]interface{}{
		"type": "chat.message",
		"body": "hello",
		"seq":  int64(42),
		"ok":   true,
		"temp": 36.6,
	}

	data, err := Encode(message)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, message, decoded)
}

func TestRoundTripBinary(t *testing.T) {
	message := map[string]interface{}{
		"frame": []byte{0x00, 0x01, 0xfe, 0xff},
	}

	data, err := Encode(message)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, message, decoded)
}

func TestRoundTripNested(t *testing.T) {
	message := map[string]interface{}{
		"headers": map[string]interface{}{
			"content-type": "text/plain",
			"retries":      int64(3),
		},
		"tags": []interface{}{"a", "b", int64(7)},
	}

	data, err := Encode(message)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, message, decoded)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0xc1})
	require.Error(t, err)
}
