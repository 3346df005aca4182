package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of LogLevel.
func (l LogLevel) String() string {
	switch l {
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

// LogFormat selects how a DefaultLogger renders lines.
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// ParseLogFormat maps "json" to FormatJSON and everything else to text.
func ParseLogFormat(s string) LogFormat {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatText
}

// Logger is the interface for logging. Messages are printf formats.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// sink is the writer shared by a logger and everything derived from it.
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

// DefaultLogger writes leveled lines to a writer. Loggers derived with
// WithField share the writer and its lock.
type DefaultLogger struct {
	sink   *sink
	level  LogLevel
	format LogFormat
	fields map[string]interface{}
	keys   []string // sorted field names
	now    func() time.Time
}

// NewDefaultLogger creates a text logger.
func NewDefaultLogger(level LogLevel, output io.Writer) *DefaultLogger {
	return NewLogger(level, FormatText, output)
}

// NewLogger creates a logger rendering lines in format.
func NewLogger(level LogLevel, format LogFormat, output io.Writer) *DefaultLogger {
	return &DefaultLogger{
		sink:   &sink{out: output},
		level:  level,
		format: format,
		fields: map[string]interface{}{},
		now:    time.Now,
	}
}

// NewFileLogger creates a text logger appending to logPath.
func NewFileLogger(level LogLevel, logPath string) (*DefaultLogger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewDefaultLogger(level, file), nil
}

// SetFormat changes how lines are rendered.
func (l *DefaultLogger) SetFormat(format LogFormat) {
	l.format = format
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }
func (l *DefaultLogger) Info(msg string, args ...interface{})  { l.log(LevelInfo, msg, args...) }
func (l *DefaultLogger) Warn(msg string, args ...interface{})  { l.log(LevelWarn, msg, args...) }
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

// WithField returns a logger adding key=value to every line.
func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger adding fields to every line.
func (l *DefaultLogger) WithFields(fields map[string]interface{}) Logger {
	child := *l
	child.fields = make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	child.keys = make([]string, 0, len(child.fields))
	for k := range child.fields {
		child.keys = append(child.keys, k)
	}
	slices.Sort(child.keys)
	return &child
}

func (l *DefaultLogger) log(level LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	ts := l.now()

	var line []byte
	if l.format == FormatJSON {
		line = l.renderJSON(ts, level, msg)
	} else {
		line = l.renderText(ts, level, msg)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = l.sink.out.Write(line)
}

func (l *DefaultLogger) renderText(ts time.Time, level LogLevel, msg string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s]", ts.Format("2006-01-02 15:04:05.000"), level)
	for _, k := range l.keys {
		fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
	}
	sb.WriteByte(' ')
	sb.WriteString(msg)
	sb.WriteByte('\n')
	return []byte(sb.String())
}

func (l *DefaultLogger) renderJSON(ts time.Time, level LogLevel, msg string) []byte {
	rec := make(map[string]interface{}, len(l.fields)+3)
	for k, v := range l.fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		rec[k] = v
	}
	rec["time"] = ts.Format(time.RFC3339Nano)
	rec["level"] = strings.ToLower(level.String())
	rec["msg"] = msg
	b, err := json.Marshal(rec)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"level": "error", "msg": "unencodable log fields: " + err.Error()})
	}
	return append(b, '\n')
}

// ParseLogLevel parses a level name, defaulting to info.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var globalLogger Logger = NewDefaultLogger(LevelInfo, os.Stdout)

// SetGlobalLogger sets the global logger.
func SetGlobalLogger(logger Logger) {
	globalLogger = logger
}

// GetGlobalLogger returns the global logger.
func GetGlobalLogger() Logger {
	return globalLogger
}

// NullLogger discards everything.
type NullLogger struct{}

func (l *NullLogger) Debug(msg string, args ...interface{})          {}
func (l *NullLogger) Info(msg string, args ...interface{})           {}
func (l *NullLogger) Warn(msg string, args ...interface{})           {}
func (l *NullLogger) Error(msg string, args ...interface{})          {}
func (l *NullLogger) WithField(key string, value interface{}) Logger { return l }
func (l *NullLogger) WithFields(fields map[string]interface{}) Logger {
	return l
}
