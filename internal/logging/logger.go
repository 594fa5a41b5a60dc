package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/diagindex/internal/config"
)

// FileName is the diagnostics log inside .diagindex/logs.
const FileName = "diagindex.log"

// sink is the file shared by a logger and its scoped children.
type sink struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// Logger appends timestamped diagnostic lines to .diagindex/logs/diagindex.log.
// External tool output lands here so failures can be inspected after the
// session ends.
type Logger struct {
	out   *sink
	scope string
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir string) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.ProjectDirName, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{out: &sink{file: f, now: time.Now}}, nil
}

// Scope returns a logger that tags every line with scope, e.g. "group 2".
// Scopes nest: "pipeline" then "group 2" gives "pipeline/group 2".
func (l *Logger) Scope(scope string) *Logger {
	if l == nil {
		return nil
	}
	if l.scope != "" {
		scope = l.scope + "/" + scope
	}
	return &Logger{out: l.out, scope: scope}
}

// Close releases the file handle. Scoped children share it.
func (l *Logger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.file == nil {
		return nil
	}
	err := l.out.file.Close()
	l.out.file = nil
	return err
}

// Printf writes a single timestamped line. Multi-line messages are indented
// so each entry stays greppable by timestamp.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}
	l.write(fmt.Sprintf(format, args...))
}

// Output records captured process output under label. Empty output is
// dropped.
func (l *Logger) Output(label string, out []byte) {
	if l == nil || l.out == nil {
		return
	}
	out = bytes.TrimRight(out, "\r\n")
	if len(bytes.TrimSpace(out)) == 0 {
		return
	}
	l.write(label + " output:\n" + string(out))
}

func (l *Logger) write(message string) {
	message = strings.TrimRight(message, "\n")
	message = strings.ReplaceAll(message, "\n", "\n    ")
	if l.scope != "" {
		message = "[" + l.scope + "] " + message
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.file == nil {
		return
	}
	fmt.Fprintf(l.out.file, "[%s] %s\n", l.out.now().Format(time.RFC3339), message)
}
