package ws

import "huddle/internal/changefeed"

// Client frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// Server frame types.
const (
	FrameSubscribed = "subscribed"
	FrameChange     = "change"
	FrameError      = "error"
	FramePong       = "pong"
)

// ClientFrame is sent by subscribers. ID names the subscription and is
// chosen by the client.
type ClientFrame struct {
	Type   string            `json:"type"`
	ID     string            `json:"id,omitempty"`
	Table  string            `json:"table,omitempty"`
	Filter changefeed.Filter `json:"filter,omitempty"`
}

// ServerFrame carries either a change for subscription ID or an error.
type ServerFrame struct {
	Type   string             `json:"type"`
	ID     string             `json:"id,omitempty"`
	Change *changefeed.Change `json:"change,omitempty"`
	Error  string             `json:"error,omitempty"`
}
