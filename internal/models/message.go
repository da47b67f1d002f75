package models

import "encoding/json"

// Event names on the wire. Inbound events are issued by clients,
// outbound events by the server. The set is a stable contract with
// the frontend.
const (
	// Inbound
	EventJoinRoom   = "join-room"
	EventCallUser   = "call-user"
	EventAnswerCall = "answer-call"
	EventLeaveRoom  = "leave-room"

	// Outbound
	EventUserJoined   = "user-joined"
	EventRoomUsers    = "room-users"
	EventIncomingCall = "incoming-call"
	EventCallAccepted = "call-accepted"
	EventUserLeft     = "user-left"
	EventError        = "error"
)

// Envelope is the framing for every websocket message: a named event
// plus its JSON payload. Data is left raw so signaling payloads pass
// through unexamined.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is the body of a join-room event.
type JoinRoomPayload struct {
	UserName string `json:"userName"`
	RoomID   string `json:"roomId"`
}

// CallUserPayload is the body of a call-user event. SignalData is an
// opaque SDP-like descriptor relayed verbatim.
type CallUserPayload struct {
	UserToCall string          `json:"userToCall"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
	Name       string          `json:"name"`
}

// AnswerCallPayload is the body of an answer-call event.
type AnswerCallPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// UserJoinedPayload is broadcast to a room when a new member joins.
type UserJoinedPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// RoomUser is one entry in a room-users listing.
type RoomUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// IncomingCallPayload is delivered to the callee of a call-user event.
type IncomingCallPayload struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
	Name   string          `json:"name"`
}

// CallAcceptedPayload is delivered to the caller of an answer-call event.
type CallAcceptedPayload struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
}
