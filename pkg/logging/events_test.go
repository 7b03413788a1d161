package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCompletionEvent_BasicFields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(false)

	NewCompletionEvent(log, "test_event", "seal", 500*time.Millisecond).
		Str("key", "value").
		Int("chunks", 42).
		Log("test message")

	output := buf.String()
	for _, want := range []string{
		`"event":"test_event"`,
		`"phase":"seal"`,
		`"duration_ms":500`,
		`"key":"value"`,
		`"chunks":42`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s, got: %s", want, output)
		}
	}
	if strings.Contains(output, "duration_h") {
		t.Errorf("unexpected human field with pretty mode off: %s", output)
	}
}

func TestCompletionEvent_FieldOrder(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	PhaseComplete(zerolog.New(&buf), "decode", time.Second).
		Int("b", 2).
		Int("a", 1).
		Log("done")

	output := buf.String()
	if strings.Index(output, `"b":2`) > strings.Index(output, `"a":1`) {
		t.Errorf("fields not in insertion order: %s", output)
	}
	if !strings.Contains(output, `"event":"phase_completed"`) {
		t.Errorf("expected phase_completed event, got: %s", output)
	}
}

func TestCompletionEvent_BytesAndCounts(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(true)
	defer SetPrettyMode(false)

	NewCompletionEvent(zerolog.New(&buf), "test_event", "seal", time.Second).
		Bytes("size", 1073741824).
		CountUint64("records", 1500000).
		Throughput(1048576).
		Log("test message")

	output := buf.String()
	for _, want := range []string{
		`"size":1073741824`,
		`"size_h":"1.00 GiB"`,
		`"records":1500000`,
		`"records_h":"1.50M"`,
		`"throughput_h":"1.00 MiB/s"`,
		`"duration_h":"1.00s"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s, got: %s", want, output)
		}
	}
}

func TestCompletionEvent_ZeroDurationThroughput(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	NewCompletionEvent(zerolog.New(&buf), "e", "p", 0).Throughput(100).Log("m")
	if strings.Contains(buf.String(), "throughput_bps") {
		t.Errorf("throughput logged for zero duration: %s", buf.String())
	}
}

func TestCompletionEvent_LogDebug(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ChunkComplete(zerolog.New(&buf).Level(zerolog.DebugLevel), "seal", time.Millisecond).
		Int("records", 3).
		LogDebug("chunk encoded")

	output := buf.String()
	if !strings.Contains(output, `"level":"debug"`) {
		t.Errorf("expected debug level, got: %s", output)
	}
	if !strings.Contains(output, `"event":"chunk_completed"`) {
		t.Errorf("expected chunk_completed event, got: %s", output)
	}
}

func TestCompletionEvent_LogDebugSuppressed(t *testing.T) {
	var buf bytes.Buffer
	ChunkComplete(zerolog.New(&buf).Level(zerolog.InfoLevel), "seal", time.Millisecond).
		Int("records", 3).
		LogDebug("chunk encoded")
	if buf.Len() != 0 {
		t.Errorf("debug event logged at info level: %s", buf.String())
	}
}

func TestCompletionEvent_ProgressFromTracker(t *testing.T) {
	var buf bytes.Buffer
	SetPrettyMode(false)

	pt := NewProgressTracker("seal", 4)
	pt.RecordCompletion(10 * time.Millisecond)

	ChunkComplete(zerolog.New(&buf), "seal", time.Millisecond).
		ProgressFromTracker(pt).
		Log("chunk")

	output := buf.String()
	for _, want := range []string{`"completed":1`, `"total":4`, `"progress_pct":25`, `"eta_ms":30`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s, got: %s", want, output)
		}
	}
}
