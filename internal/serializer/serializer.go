// internal/serializer/serializer.go
package serializer

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode packs a string-keyed message into its compact binary form. Byte
// slices are encoded as msgpack bin so they survive the round trip unchanged.
func Encode(message map[string]interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode unpacks a payload produced by Encode. Loose decoding keeps the
// result uniform: integers come back as int64, bin values as []byte and
// nested maps as map[string]interface{}.
func Decode(data []byte) (map[string]interface{}, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var message map[string]interface{}
	if err := dec.Decode(&message); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return message, nil
}
