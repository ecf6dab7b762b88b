package dto

import "artisan-delivery/internal/domain"

// Client -> server websocket message types. start is only needed to
// restart after stop; the server starts a session on connect.
const (
	MsgPosition      = "position"
	MsgPositionError = "position_error"
	MsgStart         = "start"
	MsgBegin         = "begin"
	MsgStop          = "stop"
)

// Server -> client websocket message types.
const (
	MsgState = "state"
	MsgError = "error"
)

type ClientMessage struct {
	Type     string   `json:"type"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	Accuracy float64  `json:"accuracy,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
}

type ServerMessage struct {
	Type     string                     `json:"type"`
	Snapshot *domain.NavigationSnapshot `json:"snapshot,omitempty"`
	Error    string                     `json:"error,omitempty"`
}
