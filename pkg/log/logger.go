// Leveled logging for the AD/DA host driver.
//
// Provides per-component loggers with prefixes, structured fields,
// text and JSON output, and optional file rotation.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level. Unknown strings map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Format specifies the output format for log messages.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Fields is a map of structured logging fields.
type Fields map[string]interface{}

// Logger writes leveled, optionally structured log messages.
type Logger struct {
	mu         sync.Mutex
	prefix     string
	writer     io.Writer
	level      Level
	timeFormat string
	colorize   bool
	format     Format
}

var (
	defaultLogger *Logger

	ansiColors = map[Level]string{
		DEBUG: "\x1b[36m",
		INFO:  "\x1b[32m",
		WARN:  "\x1b[33m",
		ERROR: "\x1b[31m",
	}
	ansiReset = "\x1b[0m"
)

// New creates a new logger with the given component prefix.
func New(prefix string) *Logger {
	return &Logger{
		prefix:     prefix,
		writer:     os.Stderr,
		level:      INFO,
		timeFormat: "2006-01-02 15:04:05.000",
		colorize:   os.Getenv("NO_COLOR") == "",
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetWriter sets the output writer.
func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// SetColorize enables or disables ANSI colors in text output.
func (l *Logger) SetColorize(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colorize = enable
}

// SetFormat sets the output format.
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
}

// WithPrefix returns a new logger sharing this logger's settings under
// a different component prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		prefix:     prefix,
		writer:     l.writer,
		level:      l.level,
		timeFormat: l.timeFormat,
		colorize:   l.colorize,
		format:     l.format,
	}
}

func (l *Logger) formatText(level Level, msg string, fields Fields) string {
	var sb strings.Builder
	sb.WriteString(time.Now().Format(l.timeFormat))
	sb.WriteString(" [")
	fmt.Fprintf(&sb, "%-5s", level.String())
	sb.WriteString("] ")
	if l.colorize {
		sb.WriteString(ansiColors[level])
	}
	sb.WriteString(l.prefix)
	if l.colorize {
		sb.WriteString(ansiReset)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)
	if len(fields) > 0 {
		sb.WriteString(" {")
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, fields[k])
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	return sb.String()
}

type jsonEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) formatJSON(level Level, msg string, fields Fields) string {
	entry := jsonEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     level.String(),
		Logger:    l.prefix,
		Message:   msg,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal log entry: %v"}`+"\n", err)
	}
	return string(data) + "\n"
}

func (l *Logger) log(level Level, msg string, args []interface{}, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	var out string
	if l.format == FormatJSON {
		out = l.formatJSON(level, msg, fields)
	} else {
		out = l.formatText(level, msg, fields)
	}
	fmt.Fprint(l.writer, out)
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string, args ...interface{}) { l.log(DEBUG, msg, args, nil) }

// Info logs a message at INFO level.
func (l *Logger) Info(msg string, args ...interface{}) { l.log(INFO, msg, args, nil) }

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string, args ...interface{}) { l.log(WARN, msg, args, nil) }

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string, args ...interface{}) { l.log(ERROR, msg, args, nil) }

// WithFields logs a message with structured fields attached.
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

// WithField logs a message with a single structured field attached.
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithError attaches the error as a structured field.
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", err.Error())
}

// Entry carries structured fields to a log call.
type Entry struct {
	logger *Logger
	fields Fields
}

// WithField adds a field to the entry.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	fields := make(Fields, len(e.fields)+1)
	for k, v := range e.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Entry{logger: e.logger, fields: fields}
}

// Debug logs at DEBUG level with the entry's fields.
func (e *Entry) Debug(msg string, args ...interface{}) { e.logger.log(DEBUG, msg, args, e.fields) }

// Info logs at INFO level with the entry's fields.
func (e *Entry) Info(msg string, args ...interface{}) { e.logger.log(INFO, msg, args, e.fields) }

// Warn logs at WARN level with the entry's fields.
func (e *Entry) Warn(msg string, args ...interface{}) { e.logger.log(WARN, msg, args, e.fields) }

// Error logs at ERROR level with the entry's fields.
func (e *Entry) Error(msg string, args ...interface{}) { e.logger.log(ERROR, msg, args, e.fields) }

// SetDefaultLogger replaces the global default logger.
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// GetLogger returns a component logger derived from the default logger.
func GetLogger(prefix string) *Logger {
	if defaultLogger == nil {
		defaultLogger = New("adda")
	}
	return defaultLogger.WithPrefix(prefix)
}

// ConfigureFromEnv applies environment-based configuration:
//   - ADDA_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - ADDA_LOG_FORMAT: text, json
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if s := os.Getenv("ADDA_LOG_LEVEL"); s != "" {
		l.SetLevel(ParseLevel(s))
	}
	switch strings.ToLower(os.Getenv("ADDA_LOG_FORMAT")) {
	case "json":
		l.SetFormat(FormatJSON)
	case "text":
		l.SetFormat(FormatText)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}

func init() {
	defaultLogger = New("adda")
	ConfigureFromEnv(defaultLogger)
}
