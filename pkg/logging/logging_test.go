package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_DoesNotPanic(t *testing.T) {
	for _, tc := range []struct{ debug, human bool }{
		{false, false}, {true, false}, {false, true}, {true, true},
	} {
		Init(tc.debug, tc.human)
		L().Info().Msg("test info")
		L().Debug().Msg("test debug")
	}
	Init(false, false)
}

func TestInitWriter_PrettyMode(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, false, true)
	if !IsPrettyMode() {
		t.Error("human output should enable pretty mode")
	}
	L().Info().Msg("hello")
	if strings.Contains(buf.String(), `"message"`) {
		t.Errorf("expected console output, got JSON: %s", buf.String())
	}

	buf.Reset()
	InitWriter(&buf, false, false)
	if IsPrettyMode() {
		t.Error("JSON output should disable pretty mode")
	}
	L().Info().Msg("hello")
	if !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Errorf("expected JSON output, got: %s", buf.String())
	}
	Init(false, false)
}

func TestInitWriter_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, false, false)
	L().Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line logged at info level: %s", buf.String())
	}

	InitWriter(&buf, true, false)
	L().Debug().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug line missing at debug level: %s", buf.String())
	}
	Init(false, false)
}

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	log := WithPhase("encode")
	log.Info().Msg("test message")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"encode"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
	Init(false, false)
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).With().Str("custom", "field").Logger())

	L().Info().Msg("test")

	if !bytes.Contains(buf.Bytes(), []byte(`"custom":"field"`)) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
	Init(false, false)
}
