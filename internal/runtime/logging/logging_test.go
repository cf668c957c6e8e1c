package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
)

func slogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, jsoncodec.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestSlogServiceLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogServiceLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	processor := log.With(LogFields{"processor_id": "a1b2"})
	processor.Info("Registered processor", LogFields{"attempt": 2})
	processor.Debug("Ignoring message", nil)
	processor.Error("Handler failed", errors.New("boom"), LogFields{"call_id": "c-1"})

	lines := slogLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "Registered processor", lines[0]["msg"])
	assert.Equal(t, "a1b2", lines[0]["processor_id"])
	assert.EqualValues(t, 2, lines[0]["attempt"])

	assert.Equal(t, "DEBUG", lines[1]["level"])
	assert.Equal(t, "a1b2", lines[1]["processor_id"])

	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.Equal(t, "c-1", lines[2]["call_id"])
	assert.Contains(t, buf.String(), "boom")
}

func TestSlogServiceLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogServiceLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	log.Debug("Ping received", nil)
	log.Trace("Pong sent", nil)
	assert.Empty(t, buf.String())
}

func TestConstructorsRejectNil(t *testing.T) {
	assert.Panics(t, func() { NewSlogServiceLogger(nil) })
	assert.Panics(t, func() { NewWatermillServiceLogger(nil) })
	assert.Panics(t, func() { NewWatermillAdapter(nil) })
	assert.Panics(t, func() { NewEntryServiceLogger[*fakeEntry](nil) })
}

func TestEntryServiceLogger(t *testing.T) {
	entry := &fakeEntry{out: &[]entryLine{}}
	log := NewEntryServiceLogger(entry).With(LogFields{"stream": "event-handlers"})

	log.Info("Connected", LogFields{"attempt": 1})
	log.Trace("Keepalive", nil)
	log.Error("Disconnected", errors.New("stream reset"), nil)
	log.Error("Closed", nil, nil)

	lines := *entry.out
	require.Len(t, lines, 4)
	assert.Equal(t, entryLine{level: "info", msg: "Connected", fields: LogFields{"stream": "event-handlers", "attempt": 1}}, lines[0])
	assert.Equal(t, "trace", lines[1].level)
	assert.EqualError(t, lines[2].err, "stream reset")
	assert.Equal(t, "event-handlers", lines[2].fields["stream"])
	assert.NoError(t, lines[3].err)

	assert.Same(t, log, log.With(nil), "empty fields return the same logger")
}

func TestWatermillAdapterForwardsToServiceLogger(t *testing.T) {
	rec := &recordingLogger{}
	adapter := NewWatermillAdapter(rec).With(watermill.LogFields{"topic": "runtime.events"})

	adapter.Info("Subscribed", watermill.LogFields{"consumer_group": "g"})
	adapter.Debug("Ack", nil)
	adapter.Trace("Poll", nil)
	adapter.Error("Publish failed", errors.New("broker down"), nil)

	require.Len(t, rec.lines, 4)
	assert.Equal(t, "info", rec.lines[0].level)
	assert.Equal(t, LogFields{"consumer_group": "g"}, rec.lines[0].fields)
	assert.Equal(t, LogFields{"topic": "runtime.events"}, rec.lines[0].base)
	assert.Nil(t, rec.lines[1].fields)
	assert.Equal(t, "trace", rec.lines[2].level)
	assert.EqualError(t, rec.lines[3].err, "broker down")
}

func TestOrNop(t *testing.T) {
	rec := &recordingLogger{}
	assert.Same(t, ServiceLogger(rec), OrNop(rec))

	nop := OrNop(nil)
	require.NotNil(t, nop)
	assert.NotPanics(t, func() {
		nop.With(LogFields{"k": "v"}).Error("dropped", errors.New("x"), nil)
	})
}

type entryLine struct {
	level  string
	msg    string
	err    error
	fields LogFields
}

// fakeEntry is an immutable logrus-like entry; every With* call copies it.
type fakeEntry struct {
	out    *[]entryLine
	err    error
	fields LogFields
}

func (f *fakeEntry) write(level string, args []any) {
	msg := ""
	if len(args) > 0 {
		msg, _ = args[0].(string)
	}
	*f.out = append(*f.out, entryLine{level: level, msg: msg, err: f.err, fields: f.fields})
}

func (f *fakeEntry) Error(args ...any) { f.write("error", args) }
func (f *fakeEntry) Info(args ...any)  { f.write("info", args) }
func (f *fakeEntry) Debug(args ...any) { f.write("debug", args) }
func (f *fakeEntry) Trace(args ...any) { f.write("trace", args) }

func (f *fakeEntry) WithError(err error) *fakeEntry {
	next := *f
	next.err = err
	return &next
}

func (f *fakeEntry) WithField(key string, value any) *fakeEntry {
	next := *f
	next.fields = make(LogFields, len(f.fields)+1)
	for k, v := range f.fields {
		next.fields[k] = v
	}
	next.fields[key] = value
	return &next
}

type recordedLine struct {
	level  string
	msg    string
	err    error
	base   LogFields
	fields LogFields
}

type recordingLogger struct {
	base  LogFields
	lines []recordedLine
	root  *recordingLogger
}

func (r *recordingLogger) sink() *recordingLogger {
	if r.root != nil {
		return r.root
	}
	return r
}

func (r *recordingLogger) add(level, msg string, err error, fields LogFields) {
	s := r.sink()
	s.lines = append(s.lines, recordedLine{level: level, msg: msg, err: err, base: r.base, fields: fields})
}

func (r *recordingLogger) With(fields LogFields) ServiceLogger {
	return &recordingLogger{base: fields, root: r.sink()}
}

func (r *recordingLogger) Debug(msg string, fields LogFields) { r.add("debug", msg, nil, fields) }
func (r *recordingLogger) Info(msg string, fields LogFields)  { r.add("info", msg, nil, fields) }
func (r *recordingLogger) Trace(msg string, fields LogFields) { r.add("trace", msg, nil, fields) }

func (r *recordingLogger) Error(msg string, err error, fields LogFields) {
	r.add("error", msg, err, fields)
}
