package registry

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/huddleapp/huddle/backend/internal/room"
)

var (
	// ErrRoomNotFound is the only join failure visible to clients.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists rejects explicit creation of an id already in use.
	ErrRoomExists = errors.New("room id already in use")
)

// Registry is the process-wide authority over live rooms: the id→room
// map plus the participant→room index. It is constructed once at
// startup and handed to every connection handler, so tests can build
// isolated instances instead of sharing ambient state.
//
// Invariants: every index entry names a participant present in exactly
// one room's participant set, and room ids are unique at any instant.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room
	index map[string]string // participant id → room id
}

func New() *Registry {
	return &Registry{
		rooms: make(map[string]*room.Room),
		index: make(map[string]string),
	}
}

// CreateRoom allocates a room. A requested id must not already exist;
// an empty id gets a freshly generated one.
func (g *Registry) CreateRoom(requestedID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := requestedID
	if id == "" {
		for {
			id = newRoomID()
			if _, taken := g.rooms[id]; !taken {
				break
			}
		}
	} else if _, taken := g.rooms[id]; taken {
		return "", ErrRoomExists
	}

	g.rooms[id] = room.New(id)
	return id, nil
}

func (g *Registry) Lookup(roomID string) (*room.Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rm, ok := g.rooms[roomID]
	return rm, ok
}

// Join allocates a participant in the given room and binds it to conn.
func (g *Registry) Join(roomID string, conn room.Conn) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		return "", ErrRoomNotFound
	}

	p := &room.Participant{ID: uuid.NewString(), Conn: conn}
	rm.AddParticipant(p)
	g.index[p.ID] = roomID
	return p.ID, nil
}

// Leave removes a participant from its room and drops the index entry.
// Unknown ids are a no-op: disconnect cleanup races are expected.
func (g *Registry) Leave(participantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	roomID, ok := g.index[participantID]
	if !ok {
		return
	}
	delete(g.index, participantID)
	if rm, ok := g.rooms[roomID]; ok {
		rm.RemoveParticipant(participantID)
	}
}

// RoomOf resolves a participant to its room.
func (g *Registry) RoomOf(participantID string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roomID, ok := g.index[participantID]
	return roomID, ok
}

// RemoveRoom retires a room and scrubs every index entry pointing at
// it. Live connections learn about it when their next send fails; the
// registry only guarantees no stale participant→room mapping remains.
func (g *Registry) RemoveRoom(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		return
	}
	delete(g.rooms, roomID)
	for pid, rid := range g.index {
		if rid == roomID {
			delete(g.index, pid)
		}
	}
	for _, p := range rm.Participants() {
		p.Conn.Close()
	}
}

func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (g *Registry) ParticipantCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.index)
}

// ActiveRooms reports the participant count per live room.
func (g *Registry) ActiveRooms() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int, len(g.rooms))
	for id, rm := range g.rooms {
		out[id] = rm.ParticipantCount()
	}
	return out
}

// Short ids in the style of session access codes.
func newRoomID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}
