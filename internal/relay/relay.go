// Package relay forwards call negotiation payloads between two
// connections after checking, against current registry state, that
// both sit in the same room.
package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/mindguard/signaling-server/internal/models"
	"github.com/mindguard/signaling-server/internal/presence"
)

// Emitter is the unicast capability the relay needs from the
// transport layer.
type Emitter interface {
	EmitTo(connID, event string, payload any) error
}

// Relay routes offer/answer payloads. It keeps no call state of its
// own: authorization is re-checked on every message because either
// party can leave the room or disconnect mid-negotiation.
type Relay struct {
	registry *presence.Registry
	emitter  Emitter
}

func New(registry *presence.Registry, emitter Emitter) *Relay {
	return &Relay{registry: registry, emitter: emitter}
}

// authorized reports whether both connections currently hold sessions
// in the same room.
func (r *Relay) authorized(a, b string) bool {
	sessionA, okA := r.registry.Session(a)
	sessionB, okB := r.registry.Session(b)
	return okA && okB && sessionA.RoomID == sessionB.RoomID
}

// InitiateCall delivers an incoming-call event to targetID. An
// unauthorized request is dropped without feedback so that probing
// connection ids does not reveal room membership.
func (r *Relay) InitiateCall(callerID, targetID string, signal json.RawMessage, displayName string) {
	if !r.authorized(callerID, targetID) {
		slog.Debug("call request dropped", "from", callerID, "to", targetID)
		return
	}

	err := r.emitter.EmitTo(targetID, models.EventIncomingCall, models.IncomingCallPayload{
		Signal: signal,
		From:   callerID,
		Name:   displayName,
	})
	if err != nil {
		slog.Warn("failed to deliver incoming-call", "to", targetID, "error", err)
	}
}

// AcceptCall delivers a call-accepted event to callerID, under the
// same authorization rule and silent-drop policy as InitiateCall.
func (r *Relay) AcceptCall(answererID, callerID string, signal json.RawMessage) {
	if !r.authorized(answererID, callerID) {
		slog.Debug("call answer dropped", "from", answererID, "to", callerID)
		return
	}

	err := r.emitter.EmitTo(callerID, models.EventCallAccepted, models.CallAcceptedPayload{
		Signal: signal,
		From:   answererID,
	})
	if err != nil {
		slog.Warn("failed to deliver call-accepted", "to", callerID, "error", err)
	}
}
