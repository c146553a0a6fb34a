package ws

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the closed set of inbound message kinds. Dispatch switches
// over it exhaustively; anything the decoder does not recognize maps
// to KindUnknown and is dropped without touching the connection.
type Kind int

const (
	KindUnknown Kind = iota
	KindJoin
	KindDocumentEdit
	KindWhiteboardEdit
	KindStartTimer
	KindGetTimer
	KindExpireSession
)

const (
	typeDocumentUpdate   = "txt_update"
	typeWhiteboardBuffer = "wb_buffer"
	typeStartTimer       = "start_timer"
	typeGetTimer         = "get_timer"
	typeExpireSession    = "expire_session"
	typeTimerUpdate      = "timer_update"
	typeGlobalTime       = "global_time"
)

// envelope carries every field any inbound message can use. Join
// requests arrive as a bare {"join": roomId}; everything else is
// tagged with "type".
type envelope struct {
	Join     string   `json:"join,omitempty"`
	Type     string   `json:"type,omitempty"`
	Data     string   `json:"data,omitempty"`
	Room     string   `json:"room,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
	ID       string   `json:"id,omitempty"`
}

// Message is one decoded inbound protocol message.
type Message struct {
	Kind     Kind
	Room     string        // join target, or explicit room override
	Data     string        // document text or whiteboard buffer
	Duration time.Duration // start_timer only
}

// Decode parses one inbound frame. A frame that is not valid JSON is an
// error the caller logs and drops; a well-formed frame with an
// unrecognized type decodes to KindUnknown. defaultTimer applies when a
// start_timer request carries no duration field.
func Decode(raw []byte, defaultTimer time.Duration) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}

	if env.Join != "" {
		return Message{Kind: KindJoin, Room: env.Join}, nil
	}

	switch env.Type {
	case typeDocumentUpdate:
		return Message{Kind: KindDocumentEdit, Data: env.Data}, nil
	case typeWhiteboardBuffer:
		return Message{Kind: KindWhiteboardEdit, Data: env.Data}, nil
	case typeStartTimer:
		d := defaultTimer
		if env.Duration != nil {
			d = time.Duration(*env.Duration * float64(time.Second))
		}
		return Message{Kind: KindStartTimer, Room: env.Room, Duration: d}, nil
	case typeGetTimer:
		return Message{Kind: KindGetTimer}, nil
	case typeExpireSession:
		return Message{Kind: KindExpireSession, Room: env.Room}, nil
	default:
		return Message{Kind: KindUnknown}, nil
	}
}

// Outbound frames. These shapes cannot fail to marshal.

func encodeJoinAck(participantID string) []byte {
	b, _ := json.Marshal(map[string]string{"join": participantID})
	return b
}

func encodeExit() []byte {
	b, _ := json.Marshal(map[string]int{"exit": 1})
	return b
}

func encodeDocumentUpdate(text string) []byte {
	b, _ := json.Marshal(map[string]string{"type": typeDocumentUpdate, "data": text})
	return b
}

func encodeWhiteboardUpdate(buf string) []byte {
	b, _ := json.Marshal(map[string]string{"type": typeWhiteboardBuffer, "data": buf})
	return b
}

// Timestamps go out as RFC3339 strings: clients hand them straight to
// a Date constructor, which misreads a bare epoch number.
func encodeTimerUpdate(end time.Time) []byte {
	b, _ := json.Marshal(map[string]string{"type": typeTimerUpdate, "end_time": end.UTC().Format(time.RFC3339)})
	return b
}

func encodeGlobalTime(now time.Time) []byte {
	b, _ := json.Marshal(map[string]string{"type": typeGlobalTime, "timestamp": now.UTC().Format(time.RFC3339)})
	return b
}
