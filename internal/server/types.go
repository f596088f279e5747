package server

import "strings"

// inboundFrame is the superset of every message shape a client may send.
// Pointer fields distinguish an absent key from an empty value: a frame
// carrying a "join" key is a join regardless of the other fields.
type inboundFrame struct {
	Nick   *string `json:"nick"`
	Text   *string `json:"text"`
	Join   *string `json:"join"`
	Type   string  `json:"type"`
	Typing bool    `json:"typing"`
}

func (f *inboundFrame) nick() string {
	if f.Nick == nil {
		return ""
	}
	return *f.Nick
}

func (f *inboundFrame) text() string {
	if f.Text == nil {
		return ""
	}
	return *f.Text
}

// usersFrame announces the current member list of a room.
type usersFrame struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// typingFrame relays a typing indicator between clients; it carries no
// server-side state.
type typingFrame struct {
	Type   string `json:"type"`
	Nick   string `json:"nick"`
	Typing bool   `json:"typing"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
