package ws

import (
	"log"
	"time"

	"github.com/huddleapp/huddle/backend/internal/registry"
	"github.com/huddleapp/huddle/backend/internal/room"
)

// SessionStore is the persistence collaborator behind the hub. Every
// call can fail (missing record, storage error); the hub logs such
// failures and carries on, because persistence must never abort the
// in-memory broadcast path.
type SessionStore interface {
	ExistsAndJoinable(roomID string) (bool, error)
	EndTime(roomID string) (time.Time, bool, error)
	SetEndTime(roomID string, end time.Time) error
	MarkInactive(roomID string) error
}

// Hub serializes every room mutation through a single run loop and
// fans the resulting events out to participant connections. Applying
// the mutation and enqueueing its broadcast happen in the same loop
// iteration, so the order edits land in shared state is the order
// every participant observes them.
type Hub struct {
	registry *registry.Registry
	store    SessionStore

	joins  chan joinRequest
	leaves chan leaveRequest
	events chan event
}

type joinRequest struct {
	roomID string
	conn   room.Conn
	reply  chan joinResult
}

type joinResult struct {
	participantID string
	ok            bool
}

type leaveRequest struct {
	participantID string
	done          chan struct{}
}

// One decoded message from a joined connection.
type event struct {
	participantID string
	conn          room.Conn
	msg           Message
	done          chan struct{}
}

func NewHub(reg *registry.Registry, store SessionStore) *Hub {
	return &Hub{
		registry: reg,
		store:    store,
		joins:    make(chan joinRequest),
		leaves:   make(chan leaveRequest),
		events:   make(chan event),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case req := <-h.joins:
			req.reply <- h.handleJoin(req)

		case req := <-h.leaves:
			h.registry.Leave(req.participantID)
			close(req.done)

		case ev := <-h.events:
			h.handleEvent(ev)
			close(ev.done)
		}
	}
}

// Join binds conn to the requested room and returns the new
// participant id. It blocks until the hub has processed the request.
func (h *Hub) Join(roomID string, conn room.Conn) (string, bool) {
	reply := make(chan joinResult, 1)
	h.joins <- joinRequest{roomID: roomID, conn: conn, reply: reply}
	res := <-reply
	return res.participantID, res.ok
}

// Leave is idempotent and safe to call for never-joined ids.
func (h *Hub) Leave(participantID string) {
	done := make(chan struct{})
	h.leaves <- leaveRequest{participantID: participantID, done: done}
	<-done
}

// Dispatch hands one decoded message to the hub and waits until it has
// been applied and its broadcasts enqueued.
func (h *Hub) Dispatch(participantID string, conn room.Conn, msg Message) {
	done := make(chan struct{})
	h.events <- event{participantID: participantID, conn: conn, msg: msg, done: done}
	<-done
}

// handleJoin resolves the room, creating it only when the session
// store vouches for the id. The reply ordering contract: the join ack
// is enqueued before the snapshot events, and all of them before any
// later edit broadcast, because the loop handles one request at a time.
func (h *Hub) handleJoin(req joinRequest) joinResult {
	rm, ok := h.registry.Lookup(req.roomID)
	if !ok {
		joinable, err := h.store.ExistsAndJoinable(req.roomID)
		if err != nil {
			log.Printf("Session lookup failed for room %s: %v", req.roomID, err)
		}
		if !joinable {
			return joinResult{}
		}

		if _, err := h.registry.CreateRoom(req.roomID); err != nil {
			log.Printf("Failed to create room %s: %v", req.roomID, err)
			return joinResult{}
		}
		rm, _ = h.registry.Lookup(req.roomID)

		// Seed the timer from the persisted session record.
		if end, set, err := h.store.EndTime(req.roomID); err != nil {
			log.Printf("End time lookup failed for room %s: %v", req.roomID, err)
		} else if set {
			rm.AdoptEndTime(end)
		}
	}

	pid, err := h.registry.Join(req.roomID, req.conn)
	if err != nil {
		// The room was retired between lookup and join.
		log.Printf("Join failed for room %s: %v", req.roomID, err)
		return joinResult{}
	}

	log.Printf("Participant %s joined room %s (total: %d)", pid, req.roomID, rm.ParticipantCount())

	// Id first, then one consistent snapshot of the shared state.
	snap := rm.Snapshot()
	req.conn.Send(encodeJoinAck(pid))
	req.conn.Send(encodeDocumentUpdate(snap.DocumentText))
	req.conn.Send(encodeWhiteboardUpdate(snap.WhiteboardBuffer))
	if snap.TimerSet {
		req.conn.Send(encodeTimerUpdate(snap.TimerEndTime))
	}

	return joinResult{participantID: pid, ok: true}
}

func (h *Hub) handleEvent(ev event) {
	// A signal to the session owner, not a room-lifecycle action: it
	// must reach the store even when no in-memory room backs the id.
	if ev.msg.Kind == KindExpireSession {
		h.expireSession(ev)
		return
	}

	roomID, rm, ok := h.resolveRoom(ev)
	if !ok {
		// Disconnect races make unknown senders routine, not errors.
		return
	}

	switch ev.msg.Kind {
	case KindDocumentEdit:
		rm.SetDocumentText(ev.msg.Data)
		h.broadcast(rm, encodeDocumentUpdate(ev.msg.Data))

	case KindWhiteboardEdit:
		rm.SetWhiteboardBuffer(ev.msg.Data)
		h.broadcast(rm, encodeWhiteboardUpdate(ev.msg.Data))

	case KindStartTimer:
		end, err := rm.StartTimer(ev.msg.Duration)
		if err != nil {
			log.Printf("Rejected timer for room %s: %v", roomID, err)
			return
		}
		if err := h.store.SetEndTime(roomID, end); err != nil {
			log.Printf("Failed to persist end time for room %s: %v", roomID, err)
		}
		h.broadcast(rm, encodeTimerUpdate(end))

	case KindGetTimer:
		// Reply to the requester only; silence when unset.
		if end, set := rm.TimerEndTime(); set {
			ev.conn.Send(encodeTimerUpdate(end))
		}

	case KindJoin, KindUnknown, KindExpireSession:
		// Joins are handled before dispatch, expirations above;
		// unknown kinds are dropped.
	}
}

func (h *Hub) expireSession(ev event) {
	roomID := ev.msg.Room
	if roomID == "" {
		var ok bool
		roomID, ok = h.registry.RoomOf(ev.participantID)
		if !ok {
			return
		}
	}
	if err := h.store.MarkInactive(roomID); err != nil {
		log.Printf("Failed to mark session %s inactive: %v", roomID, err)
	}
}

// resolveRoom prefers an explicit room named in the message, falling
// back to the sender's own room.
func (h *Hub) resolveRoom(ev event) (string, *room.Room, bool) {
	roomID := ev.msg.Room
	if roomID == "" {
		var ok bool
		roomID, ok = h.registry.RoomOf(ev.participantID)
		if !ok {
			return "", nil, false
		}
	}
	rm, ok := h.registry.Lookup(roomID)
	if !ok {
		return "", nil, false
	}
	return roomID, rm, true
}

// broadcast fans one frame out to every participant in the room,
// including the sender, which doubles as its write confirmation. A
// participant whose send buffer is full is cut loose rather than
// allowed to stall the room.
func (h *Hub) broadcast(rm *room.Room, data []byte) {
	for _, p := range rm.Participants() {
		if !p.Conn.Send(data) {
			log.Printf("Dropping slow participant %s in room %s", p.ID, rm.ID)
			h.registry.Leave(p.ID)
			p.Conn.Close()
		}
	}
}
