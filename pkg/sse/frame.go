package sse

import "encoding/json"

// DoneSentinel is the literal data payload that terminates a successful
// relay stream. It is not JSON and must be matched before any frame parse.
const DoneSentinel = "[DONE]"

// Frame is the decoded form of a single relay data payload. Exactly one
// field is set per frame; pointers distinguish an absent field from an
// empty value.
type Frame struct {
	JSON  json.RawMessage `json:"json,omitempty"`
	Token *string         `json:"token,omitempty"`
	Error *string         `json:"error,omitempty"`
}

// ParseFrame decodes a data payload into a Frame. The [DONE] sentinel is
// not a frame; callers must check for it first.
func ParseFrame(data string) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// internal wire shapes; each serializes as a single-key object.
type tokenFrame struct {
	Token string `json:"token"`
}

type jsonFrame struct {
	JSON json.RawMessage `json:"json"`
}

type errorFrame struct {
	Error string `json:"error"`
}
