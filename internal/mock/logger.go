package mock

import (
	"fmt"
	"strings"
	"sync"

	"drop_engine/internal/core"
)

// Logger implements core.ILogger and captures entries for assertion.
type Logger struct {
	mu      sync.Mutex
	Entries []string
}

// NewLogger creates a capturing logger.
func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) log(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, fmt.Sprintf("%s %s %v", level, msg, fields))
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.log("DEBUG", msg, fields) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.log("INFO", msg, fields) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.log("WARN", msg, fields) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.log("ERROR", msg, fields) }
func (l *Logger) Fatal(msg string, fields ...interface{}) { l.log("FATAL", msg, fields) }

func (l *Logger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *Logger) WithFields(fields map[string]interface{}) core.ILogger { return l }

// Contains reports whether any captured entry contains the substring.
func (l *Logger) Contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.Entries {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}
