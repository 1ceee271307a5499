package convlog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "turns.db"), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		skip := ""
		if i == 1 {
			skip = "quota_exceeded"
		}
		err := store.Record(ctx, Entry{
			SessionID:       "session_a",
			UserText:        fmt.Sprintf("question %d", i),
			DisplayText:     fmt.Sprintf("<p>answer %d</p>", i),
			SpeechText:      fmt.Sprintf("answer %d", i),
			VoiceID:         "EXAVITQu4vr4xnSDxMaL",
			VoiceName:       "Rachel",
			TTSEnabled:      true,
			AudioGenerated:  i != 1,
			SkipReason:      skip,
			AttachmentCount: i,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}
	if err := store.Record(ctx, Entry{SessionID: "session_b", UserText: "other", CreatedAt: base}); err != nil {
		t.Fatalf("Failed to record: %v", err)
	}

	entries, err := store.ListSession(ctx, "session_a", 0)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].UserText != "question 0" || entries[2].UserText != "question 2" {
		t.Errorf("Expected oldest first, got %q .. %q", entries[0].UserText, entries[2].UserText)
	}
	if entries[1].AudioGenerated || entries[1].SkipReason != "quota_exceeded" {
		t.Errorf("Expected second turn skipped for quota, got %+v", entries[1])
	}
	if !entries[2].TTSEnabled || entries[2].AttachmentCount != 2 || entries[2].ID == "" {
		t.Errorf("Unexpected third entry: %+v", entries[2])
	}
	if !entries[0].CreatedAt.Equal(base) {
		t.Errorf("Expected created_at %v, got %v", base, entries[0].CreatedAt)
	}

	latest, err := store.ListSession(ctx, "session_a", 2)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(latest) != 2 || latest[0].UserText != "question 1" {
		t.Errorf("Expected the two most recent turns, got %+v", latest)
	}
}

func TestStore_Sessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Record(ctx, Entry{SessionID: "old", CreatedAt: base})
	store.Record(ctx, Entry{SessionID: "new", CreatedAt: base.Add(time.Hour)})
	store.Record(ctx, Entry{SessionID: "new", CreatedAt: base.Add(2 * time.Hour)})

	sessions, err := store.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "new" || sessions[0].Turns != 2 {
		t.Errorf("Expected most recent session first with 2 turns, got %+v", sessions[0])
	}
	if !sessions[0].LastActivity.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Unexpected last activity: %v", sessions[0].LastActivity)
	}
}

func TestStore_RecordRequiresSession(t *testing.T) {
	store := openTestStore(t)
	if err := store.Record(context.Background(), Entry{UserText: "hi"}); err == nil {
		t.Error("Expected error for entry without session")
	}
}

func TestStore_Ping(t *testing.T) {
	store := openTestStore(t)
	ok, err := store.Ping(context.Background())
	if !ok || err != nil {
		t.Errorf("Expected healthy store, got %v, %v", ok, err)
	}

	store.Close()
	if ok, _ := store.Ping(context.Background()); ok {
		t.Error("Expected closed store to fail ping")
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("UNIQUE constraint failed"), false},
	}
	for _, tt := range tests {
		if got := isBusy(tt.err); got != tt.expected {
			t.Errorf("Expected %v for %v, got %v", tt.expected, tt.err, got)
		}
	}
}
