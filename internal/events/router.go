// Package events dispatches named inbound events from the transport
// to the presence registry and the call relay, and emits the
// resulting notifications.
package events

import (
	"encoding/json"
	"log/slog"

	"github.com/mindguard/signaling-server/internal/models"
	"github.com/mindguard/signaling-server/internal/presence"
	"github.com/mindguard/signaling-server/internal/relay"
)

// Emitter is the transport capability consumed by the router. The
// transport hub implements it.
type Emitter interface {
	EmitTo(connID, event string, payload any) error
	EmitToRoomExcept(roomID, senderID, event string, payload any)
	JoinRoom(connID, roomID string)
	LeaveRoom(connID, roomID string)
}

// Mirror receives membership changes for external diagnostics. All
// methods must be safe on a nil implementation value.
type Mirror interface {
	AddMember(roomID, connID string)
	RemoveMember(roomID, connID string)
}

// HandlerFunc handles one inbound event from one connection.
type HandlerFunc func(connID string, data json.RawMessage)

// Router owns the event-name to handler mapping. Registry mutations
// all run through here; the transport calls Dispatch once per inbound
// message and HandleDisconnect when a connection drops.
type Router struct {
	registry *presence.Registry
	relay    *relay.Relay
	emitter  Emitter
	mirror   Mirror

	handlers map[string]HandlerFunc
}

func NewRouter(registry *presence.Registry, r *relay.Relay, emitter Emitter, mirror Mirror) *Router {
	rt := &Router{
		registry: registry,
		relay:    r,
		emitter:  emitter,
		mirror:   mirror,
		handlers: make(map[string]HandlerFunc),
	}

	rt.Handle(models.EventJoinRoom, rt.handleJoinRoom)
	rt.Handle(models.EventCallUser, rt.handleCallUser)
	rt.Handle(models.EventAnswerCall, rt.handleAnswerCall)
	rt.Handle(models.EventLeaveRoom, rt.handleLeaveRoom)

	return rt
}

// Handle registers a handler for a named event.
func (rt *Router) Handle(event string, fn HandlerFunc) {
	rt.handlers[event] = fn
}

// Dispatch routes one raw inbound message. A fault inside a handler
// is contained here: it is logged and answered with a bare error
// event to the offending connection only, so one bad message cannot
// take down the dispatch loop or other connections.
func (rt *Router) Dispatch(connID string, raw []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		slog.Debug("discarding unparseable message", "conn", connID, "error", err)
		return
	}

	fn, ok := rt.handlers[envelope.Event]
	if !ok {
		slog.Debug("unknown event", "conn", connID, "event", envelope.Event)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler fault", "conn", connID, "event", envelope.Event, "panic", r)
			message := "internal error"
			if envelope.Event == models.EventJoinRoom {
				message = "Failed to join room"
			}
			rt.emitter.EmitTo(connID, models.EventError, message)
		}
	}()

	fn(connID, envelope.Data)
}

// HandleDisconnect treats a transport-level disconnect as an
// unconditional leave. Safe to call for connections that never
// joined a room or already left.
func (rt *Router) HandleDisconnect(connID string) {
	if roomID, ok := rt.leave(connID); ok {
		slog.Info("user disconnected from room", "conn", connID, "room", roomID)
	}
}

func (rt *Router) handleJoinRoom(connID string, data json.RawMessage) {
	var payload models.JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Debug("malformed join-room payload", "conn", connID, "error", err)
		return
	}
	if payload.RoomID == "" || payload.UserName == "" {
		slog.Debug("join-room with missing fields skipped", "conn", connID)
		return
	}

	// A connection sits in at most one room; leaving first also
	// notifies the previous room.
	rt.leave(connID)

	rt.registry.Join(connID, payload.UserName, payload.RoomID)
	rt.emitter.JoinRoom(connID, payload.RoomID)
	if rt.mirror != nil {
		rt.mirror.AddMember(payload.RoomID, connID)
	}

	rt.emitter.EmitToRoomExcept(payload.RoomID, connID, models.EventUserJoined, models.UserJoinedPayload{
		UserID:   connID,
		UserName: payload.UserName,
	})

	members := rt.registry.MembersOf(payload.RoomID, connID)
	users := make([]models.RoomUser, 0, len(members))
	for _, m := range members {
		users = append(users, models.RoomUser{UserID: m.ID, UserName: m.UserName})
	}
	if err := rt.emitter.EmitTo(connID, models.EventRoomUsers, users); err != nil {
		slog.Warn("failed to deliver room-users", "conn", connID, "error", err)
	}

	slog.Info("user joined room", "conn", connID, "user", payload.UserName, "room", payload.RoomID)
}

func (rt *Router) handleCallUser(connID string, data json.RawMessage) {
	var payload models.CallUserPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Debug("malformed call-user payload", "conn", connID, "error", err)
		return
	}

	rt.relay.InitiateCall(payload.From, payload.UserToCall, payload.SignalData, payload.Name)
}

func (rt *Router) handleAnswerCall(connID string, data json.RawMessage) {
	var payload models.AnswerCallPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Debug("malformed answer-call payload", "conn", connID, "error", err)
		return
	}

	rt.relay.AcceptCall(connID, payload.To, payload.Signal)
}

func (rt *Router) handleLeaveRoom(connID string, _ json.RawMessage) {
	if roomID, ok := rt.leave(connID); ok {
		slog.Info("user left room", "conn", connID, "room", roomID)
	}
}

// leave runs the full leave sequence for connID: registry removal,
// user-left broadcast to the remaining members, transport room sync
// and mirror update. No-op when the connection holds no session.
func (rt *Router) leave(connID string) (string, bool) {
	roomID, ok := rt.registry.Leave(connID)
	if !ok {
		return "", false
	}

	rt.emitter.EmitToRoomExcept(roomID, connID, models.EventUserLeft, connID)
	rt.emitter.LeaveRoom(connID, roomID)
	if rt.mirror != nil {
		rt.mirror.RemoveMember(roomID, connID)
	}
	return roomID, true
}
