package ws

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeJoin(t *testing.T) {
	msg, err := Decode([]byte(`{"join":"r1"}`), time.Minute)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Kind != KindJoin || msg.Room != "r1" {
		t.Errorf("Got %+v", msg)
	}
}

func TestDecodeEdits(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"txt_update","data":"hello"}`), time.Minute)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Kind != KindDocumentEdit || msg.Data != "hello" {
		t.Errorf("Got %+v", msg)
	}

	msg, err = Decode([]byte(`{"type":"wb_buffer","data":"strokes","id":"p1"}`), time.Minute)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Kind != KindWhiteboardEdit || msg.Data != "strokes" {
		t.Errorf("Got %+v", msg)
	}
}

func TestDecodeStartTimer(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"start_timer","room":"r1","duration":60}`), 15*time.Minute)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Kind != KindStartTimer || msg.Room != "r1" {
		t.Errorf("Got %+v", msg)
	}
	if msg.Duration != 60*time.Second {
		t.Errorf("Duration = %v, want 60s", msg.Duration)
	}

	// Missing duration falls back to the configured default.
	msg, err = Decode([]byte(`{"type":"start_timer"}`), 15*time.Minute)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Duration != 15*time.Minute {
		t.Errorf("Duration = %v, want default 15m", msg.Duration)
	}

	// An explicit bad duration is preserved for the room to reject.
	msg, _ = Decode([]byte(`{"type":"start_timer","duration":-1}`), 15*time.Minute)
	if msg.Duration >= 0 {
		t.Errorf("Duration = %v, want negative", msg.Duration)
	}
}

func TestDecodeGetTimerAndExpire(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"get_timer"}`), time.Minute)
	if err != nil || msg.Kind != KindGetTimer {
		t.Errorf("Got %+v, %v", msg, err)
	}

	msg, err = Decode([]byte(`{"type":"expire_session","room":"r1"}`), time.Minute)
	if err != nil || msg.Kind != KindExpireSession || msg.Room != "r1" {
		t.Errorf("Got %+v, %v", msg, err)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"dance_party","data":"x"}`), time.Minute)
	if err != nil {
		t.Fatalf("Unknown kinds are not decode errors: %v", err)
	}
	if msg.Kind != KindUnknown {
		t.Errorf("Got %+v", msg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{not json`), time.Minute); err == nil {
		t.Error("Malformed payload should be an error")
	}
	if _, err := Decode(nil, time.Minute); err == nil {
		t.Error("Empty payload should be an error")
	}
}

func TestEncodeFrames(t *testing.T) {
	var frame map[string]any

	if err := json.Unmarshal(encodeJoinAck("p1"), &frame); err != nil {
		t.Fatal(err)
	}
	if frame["join"] != "p1" {
		t.Errorf("Join ack = %v", frame)
	}

	if err := json.Unmarshal(encodeExit(), &frame); err != nil {
		t.Fatal(err)
	}
	if frame["exit"] != float64(1) {
		t.Errorf("Exit = %v", frame)
	}

	end := time.Now().Add(time.Minute)
	if err := json.Unmarshal(encodeTimerUpdate(end), &frame); err != nil {
		t.Fatal(err)
	}
	if frame["type"] != "timer_update" {
		t.Errorf("Timer update = %v", frame)
	}
	if got := frame["end_time"].(string); got != end.UTC().Format(time.RFC3339) {
		t.Errorf("end_time = %q, want RFC3339 %q", got, end.UTC().Format(time.RFC3339))
	}

	if err := json.Unmarshal(encodeGlobalTime(end), &frame); err != nil {
		t.Fatal(err)
	}
	if frame["type"] != "global_time" {
		t.Errorf("Global time = %v", frame)
	}
	if got := frame["timestamp"].(string); got != end.UTC().Format(time.RFC3339) {
		t.Errorf("timestamp = %q, want RFC3339 %q", got, end.UTC().Format(time.RFC3339))
	}
}

// Timer frames must parse with a plain date constructor on the client
// side, so they carry a date string rather than an epoch number.
func TestTimerUpdateParsesAsDate(t *testing.T) {
	end := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	var frame map[string]any
	if err := json.Unmarshal(encodeTimerUpdate(end), &frame); err != nil {
		t.Fatal(err)
	}

	raw, ok := frame["end_time"].(string)
	if !ok {
		t.Fatalf("end_time must be a string, got %T", frame["end_time"])
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("end_time %q is not RFC3339: %v", raw, err)
	}
	if !parsed.Equal(end) {
		t.Errorf("end_time round-trips to %v, want %v", parsed, end)
	}
}
