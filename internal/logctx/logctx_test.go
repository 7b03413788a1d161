package logctx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContext_NilContext(t *testing.T) {
	// nil context must not panic
	logger := FromContext(nil)

	var buf bytes.Buffer
	out := logger.Output(&buf)
	out.Info().Msg("test")
	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestFromContext_ContextWithoutLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := FromContext(context.Background()).Output(&buf)
	logger.Info().Msg("test")
	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestWithLogger_AndFromContext(t *testing.T) {
	var buf bytes.Buffer
	customLogger := zerolog.New(&buf).With().Str("custom", "field").Logger()

	ctx := WithLogger(context.Background(), customLogger)
	logger := FromContext(ctx)
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), `"custom":"field"`) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}

func TestWithLogger_NilContext(t *testing.T) {
	var buf bytes.Buffer

	// nil context must not panic
	ctx := WithLogger(nil, zerolog.New(&buf))
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	logger := FromContext(ctx)
	logger.Info().Msg("test")
	if buf.Len() == 0 {
		t.Error("expected logger to produce output")
	}
}

func TestWithStrAndInt(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithStr(ctx, "command", "encode")
	ctx = WithInt(ctx, "chunk_index", 7)

	logger := FromContext(ctx)
	logger.Info().Msg("test")

	output := buf.String()
	if !strings.Contains(output, `"command":"encode"`) {
		t.Errorf("expected command field, got: %s", output)
	}
	if !strings.Contains(output, `"chunk_index":7`) {
		t.Errorf("expected chunk_index field, got: %s", output)
	}
}

func TestChainedContexts_DoNotLeak(t *testing.T) {
	var buf bytes.Buffer
	parent := WithLogger(context.Background(), zerolog.New(&buf))
	_ = WithInt(parent, "chunk_index", 1)

	logger := FromContext(parent)
	logger.Info().Msg("parent")
	if strings.Contains(buf.String(), "chunk_index") {
		t.Errorf("child field leaked into parent logger: %s", buf.String())
	}
}

func TestSetDefaultLogger(t *testing.T) {
	prev := DefaultLogger()
	defer SetDefaultLogger(prev)

	var buf bytes.Buffer
	SetDefaultLogger(zerolog.New(&buf).With().Str("default", "yes").Logger())

	logger := FromContext(context.Background())
	logger.Info().Msg("test")
	if !strings.Contains(buf.String(), `"default":"yes"`) {
		t.Errorf("expected default logger output, got: %s", buf.String())
	}
}

func TestSetDefaultLogger_Concurrent(t *testing.T) {
	prev := DefaultLogger()
	defer SetDefaultLogger(prev)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetDefaultLogger(zerolog.Nop().With().Int("i", i).Logger())
		}()
		go func() {
			defer wg.Done()
			_ = FromContext(context.Background())
		}()
	}
	wg.Wait()
}
