package commsutil

import "encoding/json"

// EncodePayload is the one JSON encode path every outbound NATS publish (connect reply,
// wire.Frame) goes through, so the wire format has a single place to change.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload is the matching decode path for inbound NATS message data.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
