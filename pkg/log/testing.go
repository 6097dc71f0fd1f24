package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/rs/zerolog"
)

// TestLogger is a Logger that captures JSON records in memory so tests can
// assert on what was logged. It uses the same field encoding as production.
type TestLogger struct {
	Logger
	buffer *bytes.Buffer
}

// NewTestLogger creates a TestLogger with the given minimum level.
//
//	logger, buffer := log.NewTestLogger(log.LevelDebug)
//	logger.Info("test message", "key", "value")
//	output := buffer.String()
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	buffer := &bytes.Buffer{}
	zl := zerolog.New(buffer).Level(toZerologLevel(level))
	return &TestLogger{Logger: &zeroLogger{zl: zl}, buffer: buffer}, buffer
}

// GetLogEntries decodes every captured record.
func (t *TestLogger) GetLogEntries() []map[string]interface{} {
	var entries []map[string]interface{}
	scanner := bufio.NewScanner(bytes.NewReader(t.buffer.Bytes()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

// ContainsMessage reports whether any record has the given message.
func (t *TestLogger) ContainsMessage(msg string) bool {
	for _, entry := range t.GetLogEntries() {
		if entry[zerolog.MessageFieldName] == msg {
			return true
		}
	}
	return false
}

// ContainsField reports whether any record has key == value. JSON numbers
// decode as float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	for _, entry := range t.GetLogEntries() {
		if v, ok := entry[key]; ok && reflect.DeepEqual(v, value) {
			return true
		}
	}
	return false
}

// EntriesAt returns the records logged at the given level.
func (t *TestLogger) EntriesAt(level Level) []map[string]interface{} {
	want := toZerologLevel(level).String()
	var out []map[string]interface{}
	for _, entry := range t.GetLogEntries() {
		if entry[zerolog.LevelFieldName] == want {
			out = append(out, entry)
		}
	}
	return out
}

// Reset clears captured output.
func (t *TestLogger) Reset() {
	t.buffer.Reset()
}
