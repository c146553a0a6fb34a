package room

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidDuration rejects non-positive timer durations.
var ErrInvalidDuration = errors.New("timer duration must be positive")

// Conn is the outbound half of one participant's live connection.
// Send must never block: implementations enqueue and report false once
// the connection can no longer accept messages. Close tears the
// connection down.
type Conn interface {
	Send(data []byte) bool
	Close()
}

// Participant is one joined user's identity within a room, bound to
// exactly one live connection.
type Participant struct {
	ID   string
	Conn Conn
}

// A collaborative session: one shared document, one shared whiteboard,
// one countdown timer, and the currently joined participants.
type Room struct {
	ID string

	mu           sync.RWMutex
	participants map[string]*Participant
	document     string
	whiteboard   string
	endTime      time.Time // zero until the timer is started
}

// Snapshot is an atomic read of a room's shared state, taken for a
// newly joined participant.
type Snapshot struct {
	DocumentText     string
	WhiteboardBuffer string
	TimerEndTime     time.Time
	TimerSet         bool
}

// Creates a new room with the given ID
func New(id string) *Room {
	return &Room{
		ID:           id,
		participants: make(map[string]*Participant),
	}
}

func (r *Room) AddParticipant(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

// RemoveParticipant is idempotent: removing an absent id is a no-op,
// because disconnect cleanup can run twice.
func (r *Room) RemoveParticipant(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
}

func (r *Room) HasParticipant(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.participants[id]
	return ok
}

func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Returns a copy of the participant set for fan-out. Membership can
// change after this returns; sends to departed participants are
// harmless because Conn.Send fails closed.
func (r *Room) Participants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// Wholesale replace, last write wins.
func (r *Room) SetDocumentText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.document = text
}

func (r *Room) DocumentText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.document
}

// The buffer is an opaque serialized drawing; the room never inspects it.
func (r *Room) SetWhiteboardBuffer(buf string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.whiteboard = buf
}

func (r *Room) WhiteboardBuffer() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.whiteboard
}

// StartTimer fixes the room expiry at now+d. The first successful call
// wins: every later call returns the existing end time unchanged.
func (r *Room) StartTimer(d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, ErrInvalidDuration
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.endTime.IsZero() {
		return r.endTime, nil
	}
	r.endTime = time.Now().Add(d)
	return r.endTime, nil
}

// AdoptEndTime seeds the timer from a persisted session record. It only
// applies when the timer is still unset, so it can never override a
// first-set-wins expiry.
func (r *Room) AdoptEndTime(end time.Time) {
	if end.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endTime.IsZero() {
		r.endTime = end
	}
}

func (r *Room) TimerEndTime() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endTime, !r.endTime.IsZero()
}

// Snapshot reads all three shared pieces under one lock so a joiner
// never observes a torn state.
func (r *Room) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		DocumentText:     r.document,
		WhiteboardBuffer: r.whiteboard,
		TimerEndTime:     r.endTime,
		TimerSet:         !r.endTime.IsZero(),
	}
}
