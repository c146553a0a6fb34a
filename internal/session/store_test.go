package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "huddle-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

func TestCreateDefaults(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	sess, err := store.Create("", "", "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if len(sess.ID) != 8 {
		t.Errorf("Expected generated 8-char id, got %q", sess.ID)
	}
	if sess.Title != "Session" {
		t.Errorf("Expected default title, got %q", sess.Title)
	}
	if len(sess.AccessCode) != 8 {
		t.Errorf("Expected 8-char access code, got %q", sess.AccessCode)
	}
	if !sess.IsActive {
		t.Error("A session starting now should be active")
	}

	got := sess.EndTime.Sub(sess.StartTime)
	if got < DefaultDuration-time.Second || got > DefaultDuration+time.Second {
		t.Errorf("Default duration = %v, want ~%v", got, DefaultDuration)
	}
}

func TestGetMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	sess, err := store.Get("nope")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sess != nil {
		t.Error("Missing session should be nil, not an error")
	}
}

func TestEndTimeRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := store.Create("s1", "Pairing", "", time.Now(), time.Time{}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	end := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := store.SetEndTime("s1", end); err != nil {
		t.Fatalf("SetEndTime failed: %v", err)
	}

	got, ok, err := store.EndTime("s1")
	if err != nil || !ok {
		t.Fatalf("EndTime failed: %v (ok=%v)", err, ok)
	}
	if !got.Equal(end) {
		t.Errorf("EndTime = %v, want %v", got, end)
	}

	if _, ok, err := store.EndTime("missing"); err != nil || ok {
		t.Errorf("Missing session should report not-found, got ok=%v err=%v", ok, err)
	}
}

func TestExistsAndJoinable(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if ok, err := store.ExistsAndJoinable("nope"); err != nil || ok {
		t.Errorf("Unknown session should not be joinable, got ok=%v err=%v", ok, err)
	}

	if _, err := store.Create("live", "", "", time.Now(), time.Time{}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ok, err := store.ExistsAndJoinable("live"); err != nil || !ok {
		t.Errorf("Running session should be joinable, got ok=%v err=%v", ok, err)
	}

	// Expired session: ends in the past.
	past := time.Now().Add(-time.Hour)
	if _, err := store.Create("done", "", "", past, past.Add(time.Minute)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ok, _ := store.ExistsAndJoinable("done"); ok {
		t.Error("Expired session must not be joinable")
	}

	if err := store.MarkInactive("live"); err != nil {
		t.Fatalf("MarkInactive failed: %v", err)
	}
	if ok, _ := store.ExistsAndJoinable("live"); ok {
		t.Error("Inactive session must not be joinable")
	}
}

func TestListAndDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		start := time.Now().Add(time.Duration(i) * time.Hour)
		if _, err := store.Create("", "Session", "", start, time.Time{}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	sessions, err := store.List(3, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("Expected 3 sessions with limit, got %d", len(sessions))
	}

	// Newest start time first.
	if sessions[0].StartTime.Before(sessions[1].StartTime) {
		t.Error("List should order by start time descending")
	}

	if err := store.Delete(sessions[0].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	sess, _ := store.Get(sessions[0].ID)
	if sess != nil {
		t.Error("Deleted session should be gone")
	}

	// Deleting twice is fine.
	if err := store.Delete(sessions[0].ID); err != nil {
		t.Errorf("Second delete should be a no-op, got %v", err)
	}
}

func TestStats(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	store.Create("a", "", "", time.Now(), time.Time{})
	store.Create("b", "", "", time.Now().Add(time.Hour), time.Time{})

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["session_count"] != 2 {
		t.Errorf("session_count = %v", stats["session_count"])
	}
	if stats["active_session_count"] != 1 {
		t.Errorf("active_session_count = %v", stats["active_session_count"])
	}
}
