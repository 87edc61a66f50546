package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/jormio/chronicle/pkg/api"
)

// encodePayload serializes an entity change document to its stored JSON
// form. A json.RawMessage passes through as-is; nil becomes an empty
// document.
func encodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("encode payload: raw payload is not valid JSON")
		}
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// decodeCoworkerPayload parses a stored coworker change document. Stored
// payloads are schema-on-read: a malformed document is treated as empty
// rather than failing the fold.
func decodeCoworkerPayload(data []byte) api.CoworkerPayload {
	var p api.CoworkerPayload
	if len(data) == 0 {
		return p
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return api.CoworkerPayload{}
	}
	return p
}
