// Package logger provides the leveled file logger used across ghosttab.
// The log file is line-counted and trimmed in place so a long editing
// session cannot grow it without bound.
package logger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MaxLogLines is the line count that triggers trimming the log file.
const MaxLogLines = 5000

// Level represents the logging level.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level tag written into each log line.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes leveled, timestamped lines to a file and trims the file once
// it passes MaxLogLines.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	lineCount int
	level     Level
}

// globalPtr holds the process-wide logger; atomic so hot paths can check the
// level without locking.
var globalPtr atomic.Pointer[Logger]

// fallback is used before Init, so early failures still land on stderr.
var fallback = &Logger{file: os.Stderr, level: LevelInfo}

// Init creates the global logger writing to file at the given level.
func Init(file *os.File, level Level) *Logger {
	l := &Logger{file: file, level: level}
	l.countExistingLines()
	globalPtr.Store(l)
	return l
}

func active() *Logger {
	if l := globalPtr.Load(); l != nil {
		return l
	}
	return fallback
}

// Package-level logging functions using the global logger.
func Debug(format string, v ...any) { active().log(LevelDebug, format, v...) }
func Info(format string, v ...any)  { active().log(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { active().log(LevelWarn, format, v...) }
func Error(format string, v ...any) { active().log(LevelError, format, v...) }

// Fatal logs at ERROR and exits with code 1.
func Fatal(format string, v ...any) {
	active().log(LevelError, format, v...)
	os.Exit(1)
}

// noop is reused so disabled Trace calls don't allocate.
var noop = func() {}

// Trace returns a function that logs the elapsed time when called.
// Usage: defer logger.Trace("catalog.SelectBest")()
func Trace(name string) func() {
	l := active()
	if !l.enabled(LevelTrace) {
		return noop
	}
	start := time.Now()
	return func() {
		l.log(LevelTrace, "%s: %v", name, time.Since(start))
	}
}

func (l *Logger) enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) log(level Level, format string, v ...any) {
	if !l.enabled(level) {
		return
	}
	line := fmt.Sprintf("%s [%s] %s\n",
		time.Now().Format("2006/01/02 15:04:05"), level, fmt.Sprintf(format, v...))
	l.write([]byte(line))
}

func (l *Logger) write(p []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(p); err != nil {
		return
	}
	l.lineCount += bytes.Count(p, []byte{'\n'})
	if l.lineCount > MaxLogLines {
		l.trim()
	}
}

// countExistingLines seeds lineCount from a log file reopened in append mode.
func (l *Logger) countExistingLines() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	scanner := bufio.NewScanner(l.file)
	count := 0
	for scanner.Scan() {
		count++
	}
	l.lineCount = count
	l.file.Seek(0, io.SeekEnd)
}

// trim rewrites the file keeping only the newest MaxLogLines/2 lines.
func (l *Logger) trim() {
	keep := MaxLogLines / 2

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(l.file)
	if err != nil {
		return
	}

	lines := bytes.Split(data, []byte{'\n'})
	// Split leaves a trailing empty element when data ends with a newline.
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
		lines = lines[:n-1]
	}
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}

	kept := bytes.Join(lines, []byte{'\n'})
	if len(kept) > 0 {
		kept = append(kept, '\n')
	}

	l.file.Truncate(0)
	l.file.Seek(0, io.SeekStart)
	l.file.Write(kept)
	l.lineCount = len(lines)
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}
