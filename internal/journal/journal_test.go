package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manpreetbhatti/canvasroom/internal/db"
)

func setupTestDB(t *testing.T) (*db.Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "canvasroom-journal-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	database, err := db.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	return database, func() {
		database.Close()
		os.RemoveAll(tmpDir)
	}
}

func TestRecorderWritesSession(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	rec := New(database, 0)
	rec.Start()

	rec.Record(Activity{Kind: RoomOpened, RoomID: "r1", Members: 1})
	rec.Record(Activity{Kind: StrokeCommitted, RoomID: "r1"})
	rec.Record(Activity{Kind: StrokeCommitted, RoomID: "r1"})
	rec.Record(Activity{Kind: Undone, RoomID: "r1"})
	rec.Record(Activity{Kind: Redone, RoomID: "r1"})
	rec.Record(Activity{Kind: Cleared, RoomID: "r1"})
	rec.Record(Activity{Kind: MembersChanged, RoomID: "r1", Members: 3})
	rec.Record(Activity{Kind: MembersChanged, RoomID: "r1", Members: 2})
	rec.Record(Activity{Kind: RoomClosed, RoomID: "r1"})

	rec.Stop()

	sessions, err := database.ListSessions("r1", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}

	s := sessions[0]
	if s.Commits != 2 || s.Undos != 1 || s.Redos != 1 || s.Clears != 1 {
		t.Errorf("Unexpected counters: %+v", s)
	}
	if s.PeakMembers != 3 {
		t.Errorf("Expected peak members 3, got %d", s.PeakMembers)
	}
	if s.ClosedAt == nil {
		t.Error("Session should be closed")
	}
}

func TestRecorderClosesOpenSessionsOnStop(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	rec := New(database, 0)
	rec.Start()
	rec.Record(Activity{Kind: RoomOpened, RoomID: "still-open"})
	rec.Stop()

	sessions, _ := database.ListSessions("still-open", 10, 0)
	if len(sessions) != 1 || sessions[0].ClosedAt == nil {
		t.Errorf("Open session should be closed on stop: %+v", sessions)
	}
}

func TestRecorderClosesDanglingOnStart(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	id, _ := database.OpenSession("crashed", time.Now().Add(-time.Hour))

	rec := New(database, 0)
	rec.Start()
	rec.Stop()

	s, _ := database.GetSession(id)
	if s == nil || s.ClosedAt == nil {
		t.Error("Dangling session should be closed on start")
	}
}

func TestRecorderIgnoresUnknownRoom(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	rec := New(database, 0)
	rec.Start()
	rec.Record(Activity{Kind: StrokeCommitted, RoomID: "never-opened"})
	rec.Stop()

	count, _ := database.GetSessionCount("never-opened")
	if count != 0 {
		t.Errorf("Expected no sessions, got %d", count)
	}
}

func TestRecordNeverBlocks(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	// Not started: nothing drains the queue.
	rec := New(database, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			rec.Record(Activity{Kind: StrokeCommitted, RoomID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	if rec.Dropped() != 9 {
		t.Errorf("Expected 9 dropped records, got %d", rec.Dropped())
	}
}

func TestKindString(t *testing.T) {
	if RoomOpened.String() != "room_opened" || Kind(99).String() != "unknown" {
		t.Error("Unexpected kind names")
	}
}
