package domain

import (
	"encoding/json"
	"strings"
)

// DecodeCell attempts to parse text cells that look like JSON objects;
// successful parses are kept structured, anything else passes through
// unchanged.
func DecodeCell(v any) any {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return v
	}
	return decoded
}
