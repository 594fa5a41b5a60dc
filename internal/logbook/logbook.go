// Package logbook keeps the user-facing journal of a classification session:
// ingestion warnings, reassignments, per-group pipeline outcomes and exports.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook persists session progress to a simple text file.
type Logbook struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s\n",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		strings.Join(strings.Fields(message), " "),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Entry is one parsed logbook line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// String renders the entry without its date, for narrow panels.
func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s %s", e.Time.Format("15:04:05"), string(e.Level), e.Message)
}

// ParseEntry splits a line written by Append. Lines that do not carry a
// timestamp and level come back as INFO messages.
func ParseEntry(line string) Entry {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) == 2 {
		if ts, err := time.Parse(time.RFC3339, fields[0]); err == nil {
			rest := strings.TrimLeft(fields[1], " ")
			level, msg, _ := strings.Cut(rest, " ")
			switch Level(level) {
			case LevelInfo, LevelWarn, LevelError:
				return Entry{Time: ts, Level: Level(level), Message: strings.TrimLeft(msg, " ")}
			}
		}
	}
	return Entry{Level: LevelInfo, Message: line}
}

// Recent returns up to n of the latest entries, parsed, plus the total count.
func (l *Logbook) Recent(n int) ([]Entry, int) {
	lines, total := l.Tail(n)
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, ParseEntry(line))
	}
	return entries, total
}

// Tail returns up to maxLines of the most recent entries along with the total
// number of entries recorded so far.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
