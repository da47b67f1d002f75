package events

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mindguard/signaling-server/internal/models"
	"github.com/mindguard/signaling-server/internal/presence"
	"github.com/mindguard/signaling-server/internal/relay"
)

type delivery struct {
	connID  string
	event   string
	payload any
}

type broadcast struct {
	roomID  string
	exclude string
	event   string
	payload any
}

// fakeTransport records everything the router asks the transport to
// do, including transport-room membership sync.
type fakeTransport struct {
	deliveries []delivery
	broadcasts []broadcast
	rooms      map[string]map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{rooms: make(map[string]map[string]bool)}
}

func (f *fakeTransport) EmitTo(connID, event string, payload any) error {
	f.deliveries = append(f.deliveries, delivery{connID, event, payload})
	return nil
}

func (f *fakeTransport) EmitToRoomExcept(roomID, senderID, event string, payload any) {
	f.broadcasts = append(f.broadcasts, broadcast{roomID, senderID, event, payload})
}

func (f *fakeTransport) JoinRoom(connID, roomID string) {
	if f.rooms[roomID] == nil {
		f.rooms[roomID] = make(map[string]bool)
	}
	f.rooms[roomID][connID] = true
}

func (f *fakeTransport) LeaveRoom(connID, roomID string) {
	delete(f.rooms[roomID], connID)
}

func (f *fakeTransport) sentTo(connID, event string) []delivery {
	var out []delivery
	for _, d := range f.deliveries {
		if d.connID == connID && d.event == event {
			out = append(out, d)
		}
	}
	return out
}

func newTestRouter() (*Router, *presence.Registry, *fakeTransport) {
	registry := presence.NewRegistry()
	transport := newFakeTransport()
	return NewRouter(registry, relay.New(registry, transport), transport, nil), registry, transport
}

func dispatch(t *testing.T, rt *Router, connID, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(models.Envelope{Event: event, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	rt.Dispatch(connID, raw)
}

func TestJoinRoomScenario(t *testing.T) {
	rt, registry, transport := newTestRouter()

	dispatch(t, rt, "c1", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Alice", RoomID: "room42"})
	dispatch(t, rt, "c2", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Bob", RoomID: "room42"})

	// c1's join broadcast went to an empty room; c2's join must have
	// announced Bob to the rest of the room.
	var bobJoin *broadcast
	for i, b := range transport.broadcasts {
		if b.event == models.EventUserJoined && b.exclude == "c2" {
			bobJoin = &transport.broadcasts[i]
		}
	}
	if bobJoin == nil {
		t.Fatal("no user-joined broadcast for c2's join")
	}
	joined := bobJoin.payload.(models.UserJoinedPayload)
	if joined.UserID != "c2" || joined.UserName != "Bob" {
		t.Errorf("user-joined payload = %+v, want {c2 Bob}", joined)
	}

	// c2 got the room roster, excluding itself.
	rosters := transport.sentTo("c2", models.EventRoomUsers)
	if len(rosters) != 1 {
		t.Fatalf("c2 received %d room-users events, want 1", len(rosters))
	}
	users := rosters[0].payload.([]models.RoomUser)
	if len(users) != 1 || users[0].UserID != "c1" || users[0].UserName != "Alice" {
		t.Fatalf("room-users = %v, want only {c1 Alice}", users)
	}

	// Transport room mirrors registry membership.
	if !transport.rooms["room42"]["c1"] || !transport.rooms["room42"]["c2"] {
		t.Errorf("transport room out of sync: %v", transport.rooms["room42"])
	}

	rooms, userCount := registry.Counts()
	if rooms != 1 || userCount != 2 {
		t.Fatalf("Counts() = (%d, %d), want (1, 2)", rooms, userCount)
	}
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	rt, registry, transport := newTestRouter()

	dispatch(t, rt, "c1", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Alice", RoomID: "room42"})
	dispatch(t, rt, "c2", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Bob", RoomID: "room42"})

	rt.HandleDisconnect("c1")

	var left *broadcast
	for i, b := range transport.broadcasts {
		if b.event == models.EventUserLeft {
			left = &transport.broadcasts[i]
		}
	}
	if left == nil {
		t.Fatal("no user-left broadcast after disconnect")
	}
	if left.roomID != "room42" || left.exclude != "c1" || left.payload != "c1" {
		t.Errorf("user-left = %+v, want c1's id broadcast to room42 excluding c1", left)
	}

	members := registry.MembersOf("room42", "")
	if len(members) != 1 || members[0].ID != "c2" {
		t.Fatalf("membership after disconnect = %v, want only c2", members)
	}
	if transport.rooms["room42"]["c1"] {
		t.Error("c1 still in transport room after disconnect")
	}
}

func TestDisconnectWithoutSessionIsNoop(t *testing.T) {
	rt, _, transport := newTestRouter()

	rt.HandleDisconnect("ghost")
	rt.HandleDisconnect("ghost")

	if len(transport.broadcasts) != 0 || len(transport.deliveries) != 0 {
		t.Fatalf("disconnect of unknown connection produced traffic: %v %v",
			transport.broadcasts, transport.deliveries)
	}
}

func TestLeaveRoomTwiceIsIdempotent(t *testing.T) {
	rt, registry, transport := newTestRouter()

	dispatch(t, rt, "c1", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Alice", RoomID: "R1"})
	rt.Dispatch("c1", []byte(`{"event":"leave-room"}`))

	before := len(transport.broadcasts)
	rt.Dispatch("c1", []byte(`{"event":"leave-room"}`))

	if len(transport.broadcasts) != before {
		t.Error("second leave-room produced additional broadcasts")
	}
	if rooms, users := registry.Counts(); rooms != 0 || users != 0 {
		t.Fatalf("Counts() = (%d, %d), want (0, 0)", rooms, users)
	}
}

func TestRejoinNotifiesOldRoom(t *testing.T) {
	rt, registry, transport := newTestRouter()

	dispatch(t, rt, "c1", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Alice", RoomID: "A"})
	dispatch(t, rt, "c2", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Bob", RoomID: "A"})
	dispatch(t, rt, "c1", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Alice", RoomID: "B"})

	var leftA bool
	for _, b := range transport.broadcasts {
		if b.event == models.EventUserLeft && b.roomID == "A" && b.payload == "c1" {
			leftA = true
		}
	}
	if !leftA {
		t.Error("room A was not told that c1 left when c1 switched rooms")
	}

	session, ok := registry.Session("c1")
	if !ok || session.RoomID != "B" {
		t.Fatalf("Session(c1).RoomID = %q, want B", session.RoomID)
	}
	if transport.rooms["A"]["c1"] {
		t.Error("c1 still in transport room A after switching")
	}
}

func TestCallRelayThroughRouter(t *testing.T) {
	rt, _, transport := newTestRouter()

	dispatch(t, rt, "c1", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Alice", RoomID: "A"})
	dispatch(t, rt, "c2", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Bob", RoomID: "A"})
	dispatch(t, rt, "c3", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Eve", RoomID: "B"})

	signal := json.RawMessage(`{"sdp":"offer"}`)
	dispatch(t, rt, "c1", models.EventCallUser, models.CallUserPayload{
		UserToCall: "c2", SignalData: signal, From: "c1", Name: "Alice",
	})

	calls := transport.sentTo("c2", models.EventIncomingCall)
	if len(calls) != 1 {
		t.Fatalf("c2 received %d incoming-call events, want 1", len(calls))
	}
	incoming := calls[0].payload.(models.IncomingCallPayload)
	if string(incoming.Signal) != string(signal) || incoming.From != "c1" || incoming.Name != "Alice" {
		t.Errorf("incoming-call payload = %+v, want verbatim signal from c1/Alice", incoming)
	}

	// Cross-room call is silently dropped.
	dispatch(t, rt, "c1", models.EventCallUser, models.CallUserPayload{
		UserToCall: "c3", SignalData: signal, From: "c1", Name: "Alice",
	})
	if got := transport.sentTo("c3", models.EventIncomingCall); len(got) != 0 {
		t.Fatalf("cross-room call delivered: %v", got)
	}
	if got := transport.sentTo("c1", models.EventError); len(got) != 0 {
		t.Fatalf("cross-room call surfaced an error to the caller: %v", got)
	}

	// Answer flows back to the caller.
	dispatch(t, rt, "c2", models.EventAnswerCall, models.AnswerCallPayload{
		To: "c1", Signal: json.RawMessage(`{"sdp":"answer"}`),
	})
	answers := transport.sentTo("c1", models.EventCallAccepted)
	if len(answers) != 1 {
		t.Fatalf("c1 received %d call-accepted events, want 1", len(answers))
	}
	accepted := answers[0].payload.(models.CallAcceptedPayload)
	if accepted.From != "c2" {
		t.Errorf("call-accepted from = %q, want c2", accepted.From)
	}
}

func TestMalformedPayloadsAreSkipped(t *testing.T) {
	rt, registry, transport := newTestRouter()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"unknown event", `{"event":"shutdown"}`},
		{"join with wrong data type", `{"event":"join-room","data":"nope"}`},
		{"join with missing fields", `{"event":"join-room","data":{}}`},
		{"call with wrong data type", `{"event":"call-user","data":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt.Dispatch("c1", []byte(tt.raw))
		})
	}

	if rooms, users := registry.Counts(); rooms != 0 || users != 0 {
		t.Fatalf("Counts() = (%d, %d), want (0, 0) after junk input", rooms, users)
	}
	if len(transport.deliveries) != 0 || len(transport.broadcasts) != 0 {
		t.Fatalf("junk input produced traffic: %v %v", transport.deliveries, transport.broadcasts)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	rt, registry, transport := newTestRouter()

	rt.Handle("explode", func(connID string, data json.RawMessage) {
		panic("boom")
	})

	dispatch(t, rt, "c1", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Alice", RoomID: "R1"})
	rt.Dispatch("c1", []byte(`{"event":"explode"}`))

	// The fault is answered with a bare error event to the sender only.
	errs := transport.sentTo("c1", models.EventError)
	if len(errs) != 1 {
		t.Fatalf("c1 received %d error events, want 1", len(errs))
	}

	// Registry state survives for both this and other connections.
	if rooms, users := registry.Counts(); rooms != 1 || users != 1 {
		t.Fatalf("Counts() after fault = (%d, %d), want (1, 1)", rooms, users)
	}

	// The loop keeps dispatching afterwards.
	dispatch(t, rt, "c2", models.EventJoinRoom, models.JoinRoomPayload{UserName: "Bob", RoomID: "R1"})
	if _, users := registry.Counts(); users != 2 {
		t.Fatal("dispatch stopped working after a handler fault")
	}
}

func TestConsistencyAcrossManyOperations(t *testing.T) {
	rt, registry, transport := newTestRouter()

	for i := 0; i < 50; i++ {
		connID := fmt.Sprintf("conn-%d", i)
		dispatch(t, rt, connID, models.EventJoinRoom, models.JoinRoomPayload{
			UserName: fmt.Sprintf("user-%d", i),
			RoomID:   fmt.Sprintf("room-%d", i%5),
		})
	}
	for i := 0; i < 50; i += 2 {
		rt.HandleDisconnect(fmt.Sprintf("conn-%d", i))
	}

	rooms, users := registry.Counts()
	if users != 25 {
		t.Fatalf("users = %d, want 25", users)
	}
	if rooms != 5 {
		t.Fatalf("rooms = %d, want 5", rooms)
	}

	// Transport rooms agree with the registry.
	for roomID, members := range transport.rooms {
		want := registry.MembersOf(roomID, "")
		if len(members) != len(want) {
			t.Errorf("transport room %q has %d members, registry has %d", roomID, len(members), len(want))
		}
	}
}
