package avro

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

const personSchema = `{"type":"record","name":"Person","namespace":"org.example","fields":[
	{"name":"name","type":"string"},
	{"name":"employee_id","type":"string"}]}`

// testLogger routes debug-level log output to t.Log.
func testLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	c.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

// recordingHandler keeps every record it sees so tests can assert on events.
type recordingHandler struct {
	records *[]slog.Record
}

func newRecordingLogger() (*slog.Logger, *[]slog.Record) {
	var recs []slog.Record
	return slog.New(recordingHandler{records: &recs}), &recs
}

func (h recordingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h recordingHandler) Handle(_ context.Context, r slog.Record) error {
	*h.records = append(*h.records, r.Clone())
	return nil
}

func (h recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h recordingHandler) WithGroup(string) slog.Handler      { return h }

func messages(recs []slog.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Message
	}
	return out
}

func mustParse(t testing.TB, text string) *Schema {
	t.Helper()
	s, err := ParseSchema(text)
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return s
}
