package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	ERROR LogLevel = iota
	WARN
	INFO
	DEBUG
	TRACE
)

var levelNames = map[LogLevel]string{
	ERROR: "ERROR",
	WARN:  "WARN",
	INFO:  "INFO",
	DEBUG: "DEBUG",
	TRACE: "TRACE",
}

// DefaultFileName is the active log file inside the log directory.
const DefaultFileName = "inventory.log"

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Context   map[string]interface{}
}

// RotationPolicy defines when and how to rotate log files
type RotationPolicy struct {
	Enabled    bool
	MaxSizeMB  int
	MaxAgeDays int
	MaxFiles   int
}

// Logger provides structured logging with levels
type Logger struct {
	mu             sync.RWMutex
	level          LogLevel
	logDir         string
	fileName       string
	currentFile    *os.File
	buffer         []LogEntry
	maxBufferSize  int
	console        io.Writer
	rotationPolicy RotationPolicy
	rateLimiters   map[string]time.Time
}

// New creates a Logger writing to logDir/inventory.log and to stdout.
// An empty logDir disables file output.
func New(level LogLevel, logDir string, maxBufferSize int) *Logger {
	if maxBufferSize <= 0 {
		maxBufferSize = 1
	}
	return &Logger{
		level:         level,
		logDir:        logDir,
		fileName:      DefaultFileName,
		buffer:        make([]LogEntry, 0, maxBufferSize),
		maxBufferSize: maxBufferSize,
		console:       os.Stdout,
		rateLimiters:  make(map[string]time.Time),
		rotationPolicy: RotationPolicy{
			Enabled:    true,
			MaxSizeMB:  50,
			MaxAgeDays: 14,
			MaxFiles:   10,
		},
	}
}

// SetConsole redirects console output; nil disables it.
func (l *Logger) SetConsole(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = w
}

// SetConsoleOutput enables or disables console output
func (l *Logger) SetConsoleOutput(enabled bool) {
	if enabled {
		l.SetConsole(os.Stdout)
		return
	}
	l.SetConsole(nil)
}

// SetLevel changes the current log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetRotationPolicy configures log rotation
func (l *Logger) SetRotationPolicy(policy RotationPolicy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotationPolicy = policy
}

// Error logs an error level message
func (l *Logger) Error(msg string, context ...interface{}) {
	l.log(ERROR, msg, context...)
}

// Warn logs a warning level message
func (l *Logger) Warn(msg string, context ...interface{}) {
	l.log(WARN, msg, context...)
}

// WarnRateLimited logs a warning at most once per interval for the given key.
func (l *Logger) WarnRateLimited(key string, interval time.Duration, msg string, context ...interface{}) {
	l.mu.Lock()
	now := time.Now()
	if last, ok := l.rateLimiters[key]; ok && now.Sub(last) < interval {
		l.mu.Unlock()
		return
	}
	l.rateLimiters[key] = now
	l.mu.Unlock()

	l.log(WARN, msg, context...)
}

// Info logs an info level message
func (l *Logger) Info(msg string, context ...interface{}) {
	l.log(INFO, msg, context...)
}

// Debug logs a debug level message
func (l *Logger) Debug(msg string, context ...interface{}) {
	l.log(DEBUG, msg, context...)
}

// Trace logs a trace level message
func (l *Logger) Trace(msg string, context ...interface{}) {
	l.log(TRACE, msg, context...)
}

func (l *Logger) log(level LogLevel, msg string, context ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Context:   contextMap(context),
	}

	if len(l.buffer) >= l.maxBufferSize {
		l.buffer = l.buffer[1:]
	}
	l.buffer = append(l.buffer, entry)

	line := FormatEntry(entry)
	if l.console != nil {
		fmt.Fprintln(l.console, line)
	}
	l.writeToFile(line)
}

// contextMap pairs up key/value varargs. Non-string keys are dropped.
func contextMap(kv []interface{}) map[string]interface{} {
	ctx := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			ctx[key] = kv[i+1]
		}
	}
	return ctx
}

// fallbackOut receives lines logged before a Logger is configured.
var fallbackOut io.Writer = os.Stderr

// Emit logs through l, or writes a component-tagged line to stderr when l
// is nil. The stderr path drops levels below INFO.
func Emit(l *Logger, component string, level LogLevel, msg string, kv ...interface{}) {
	if l != nil {
		l.log(level, msg, kv...)
		return
	}
	if level > INFO {
		return
	}
	entry := LogEntry{Timestamp: time.Now(), Level: level, Message: msg, Context: contextMap(kv)}
	if component != "" {
		entry.Message = "[" + component + "] " + msg
	}
	fmt.Fprintln(fallbackOut, FormatEntry(entry))
}

func (l *Logger) writeToFile(line string) {
	if l.logDir == "" {
		return
	}
	if l.currentFile == nil {
		if err := os.MkdirAll(l.logDir, 0755); err != nil {
			return
		}
		f, err := os.OpenFile(filepath.Join(l.logDir, l.fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		l.currentFile = f
	}

	l.currentFile.WriteString(line + "\n")

	if l.shouldRotate() {
		l.rotate()
	}
}

// FormatEntry renders an entry as a single line. Context keys are sorted so
// that output is stable.
func FormatEntry(entry LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format("2006-01-02T15:04:05-07:00"))
	b.WriteString(" [")
	b.WriteString(levelNames[entry.Level])
	b.WriteString("] ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Context))
	for k := range entry.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Context[k])
	}
	return b.String()
}

func (l *Logger) shouldRotate() bool {
	if !l.rotationPolicy.Enabled || l.currentFile == nil || l.rotationPolicy.MaxSizeMB <= 0 {
		return false
	}
	stat, err := l.currentFile.Stat()
	if err != nil {
		return false
	}
	return stat.Size() >= int64(l.rotationPolicy.MaxSizeMB)*1024*1024
}

// rotate renames the active file with a timestamp suffix and prunes old backups.
func (l *Logger) rotate() {
	if l.currentFile != nil {
		l.currentFile.Close()
		l.currentFile = nil

		base := strings.TrimSuffix(l.fileName, filepath.Ext(l.fileName))
		backup := filepath.Join(l.logDir, fmt.Sprintf("%s_%s.log", base, time.Now().Format("20060102_150405")))
		os.Rename(filepath.Join(l.logDir, l.fileName), backup)
	}
	l.cleanOldFiles()
}

func (l *Logger) cleanOldFiles() {
	base := strings.TrimSuffix(l.fileName, filepath.Ext(l.fileName))
	files, err := filepath.Glob(filepath.Join(l.logDir, base+"_*.log"))
	if err != nil {
		return
	}
	sort.Strings(files)

	if l.rotationPolicy.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -l.rotationPolicy.MaxAgeDays)
		kept := files[:0]
		for _, file := range files {
			if stat, err := os.Stat(file); err == nil && stat.ModTime().Before(cutoff) {
				os.Remove(file)
				continue
			}
			kept = append(kept, file)
		}
		files = kept
	}

	if l.rotationPolicy.MaxFiles > 0 && len(files) > l.rotationPolicy.MaxFiles {
		for _, file := range files[:len(files)-l.rotationPolicy.MaxFiles] {
			os.Remove(file)
		}
	}
}

// GetBuffer returns a copy of the in-memory log buffer
func (l *Logger) GetBuffer() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	buffer := make([]LogEntry, len(l.buffer))
	copy(buffer, l.buffer)
	return buffer
}

// GetBufferFiltered returns buffered entries at minLevel or more severe.
func (l *Logger) GetBufferFiltered(minLevel LogLevel) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	filtered := []LogEntry{}
	for _, entry := range l.buffer {
		if entry.Level <= minLevel {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Close closes the current log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		return err
	}
	return nil
}

// ParseLevel converts a level name (any case) to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return ERROR
	case "WARN", "WARNING":
		return WARN
	case "DEBUG":
		return DEBUG
	case "TRACE":
		return TRACE
	default:
		return INFO
	}
}

// LevelToString converts a LogLevel to a string
func LevelToString(level LogLevel) string {
	return levelNames[level]
}
