package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("group-%d recorded", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"group-2", "group-3", "group-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestAppendFlattensMultilineMessages(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "logs", "session.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Error("tool failed:\n  exit status 2\n")
	book.Warn("group %d has %d members", 3, 2)
	lines, total := book.Tail(10)
	if total != 2 {
		t.Fatalf("expected 2 entries, got %d: %q", total, lines)
	}
	if !strings.Contains(lines[0], "ERROR tool failed: exit status 2") {
		t.Fatalf("unexpected error entry %q", lines[0])
	}
	if !strings.Contains(lines[1], "WARN  group 3 has 2 members") {
		t.Fatalf("unexpected warn entry %q", lines[1])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil logbook tail = %v, %d", lines, total)
	}
	if book.Path() != "" {
		t.Fatalf("nil logbook path should be empty")
	}
}

func TestRecentParsesLevels(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "session.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	book.now = func() time.Time { return at }
	book.Info("Loaded %d file(s)", 3)
	book.Warn("Group %d: point counts differ", 2)
	book.Error("Group %d: builder exited", 1)

	entries, total := book.Recent(2)
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	want := []Entry{
		{Time: at, Level: LevelWarn, Message: "Group 2: point counts differ"},
		{Time: at, Level: LevelError, Message: "Group 1: builder exited"},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if got := entries[1].String(); got != "09:30:00 ERROR Group 1: builder exited" {
		t.Fatalf("String() = %q", got)
	}
	if got := ParseEntry("free text"); got.Level != LevelInfo || got.Message != "free text" {
		t.Fatalf("unexpected fallback entry %+v", got)
	}
}
