package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestRunNoArgs(t *testing.T) {
	err := Run(nil)
	if err == nil {
		t.Fatal("expected error with no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("expected usage message, got: %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"unknown"})
	if err == nil {
		t.Fatal("expected error with unknown command")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected 'unknown command' error, got: %v", err)
	}
}

func TestEncodeMissingOut(t *testing.T) {
	err := Run([]string{"encode", "in.jsonl"})
	if err == nil {
		t.Fatal("expected error with missing --out")
	}
	if !strings.Contains(err.Error(), "--out") {
		t.Errorf("expected '--out' error, got: %v", err)
	}
}

func TestEncodeBothOutputs(t *testing.T) {
	err := Run([]string{"encode", "--out", "x.rai", "--s3-out", "s3://b/x.rai", "in.jsonl"})
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("expected mutually exclusive error, got: %v", err)
	}
}

func TestEncodeMissingInputs(t *testing.T) {
	err := Run([]string{"encode", "--out", "x.rai"})
	if err == nil {
		t.Fatal("expected error with no inputs")
	}
	if !strings.Contains(err.Error(), "input") {
		t.Errorf("expected input error, got: %v", err)
	}
}

func TestEncodeBadFormat(t *testing.T) {
	err := Run([]string{"encode", "--out", "x.rai", "--format", "xml", "in.xml"})
	if err == nil || !strings.Contains(err.Error(), "--format") {
		t.Errorf("expected '--format' error, got: %v", err)
	}
}

func TestEncodeBadChunkBytes(t *testing.T) {
	err := Run([]string{"encode", "--out", "x.rai", "--chunk-bytes", "lots", "in.jsonl"})
	if err == nil || !strings.Contains(err.Error(), "--chunk-bytes") {
		t.Errorf("expected '--chunk-bytes' error, got: %v", err)
	}
}

func TestDecodeMissingPath(t *testing.T) {
	err := Run([]string{"decode"})
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Errorf("expected argument error, got: %v", err)
	}
}

func TestInspectMissingPath(t *testing.T) {
	err := Run([]string{"inspect", "a", "b"})
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Errorf("expected argument error, got: %v", err)
	}
}

func TestDetermineWorkersCLI(t *testing.T) {
	t.Setenv(WorkersEnv, "2")
	n, err := determineWorkers(6)
	if err != nil {
		t.Fatalf("determineWorkers error: %v", err)
	}
	if n != 6 {
		t.Errorf("workers = %d, want 6", n)
	}
}

func TestDetermineWorkersEnv(t *testing.T) {
	t.Setenv(WorkersEnv, "3")
	n, err := determineWorkers(0)
	if err != nil {
		t.Fatalf("determineWorkers error: %v", err)
	}
	if n != 3 {
		t.Errorf("workers = %d, want 3", n)
	}
}

func TestDetermineWorkersDefault(t *testing.T) {
	t.Setenv(WorkersEnv, "")
	n, err := determineWorkers(0)
	if err != nil {
		t.Fatalf("determineWorkers error: %v", err)
	}
	if n != 0 {
		t.Errorf("workers = %d, want 0 (library default)", n)
	}
}

func TestDetermineWorkersInvalid(t *testing.T) {
	if _, err := determineWorkers(-1); err == nil || !strings.Contains(err.Error(), "--workers") {
		t.Errorf("expected '--workers' error, got: %v", err)
	}

	t.Setenv(WorkersEnv, "many")
	if _, err := determineWorkers(0); err == nil || !strings.Contains(err.Error(), WorkersEnv) {
		t.Errorf("expected '%s' error, got: %v", WorkersEnv, err)
	}
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	jsonl := writeInput(t, dir, "a.jsonl", "{\"id\":1,\"name\":\"ann\"}\n{\"id\":2,\"tags\":[\"x\",null]}\n")
	jsonDoc := writeInput(t, dir, "b.json", `[{"id":3,"name":null},7]`)
	csvFile := writeInput(t, dir, "c.csv", "id,name\n4,dee\n")
	out := filepath.Join(dir, "out", "records.rai")

	err := Run([]string{"encode", "--out", out, "--chunk-records", "2", "--workers", "2", jsonl, jsonDoc, csvFile})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var stdout bytes.Buffer
	if err := RunContext(context.Background(), []string{"decode", out}, &stdout); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := strings.Join([]string{
		`{"id":1,"name":"ann"}`,
		`{"id":2,"tags":["x",null]}`,
		`{"id":3,"name":null}`,
		`7`,
		`{"id":"4","name":"dee"}`,
	}, "\n") + "\n"
	if stdout.String() != want {
		t.Errorf("decode output:\n%s\nwant:\n%s", stdout.String(), want)
	}

	stdout.Reset()
	if err := RunContext(context.Background(), []string{"decode", "--fields", "name", "--chunk", "1", out}, &stdout); err != nil {
		t.Fatalf("decode --fields failed: %v", err)
	}
	// scalar records are kept whole
	if got := stdout.String(); got != "{\"name\":null}\n7\n" {
		t.Errorf("projected chunk 1 = %q", got)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "in.jsonl", "{\"a\":1}\n{\"a\":2,\"b\":\"x\"}\n3\n")
	out := filepath.Join(dir, "in.rai")
	if err := Run([]string{"encode", "--out", out, "--chunk-records", "2", in}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var stdout bytes.Buffer
	if err := RunContext(context.Background(), []string{"inspect", "--layouts", out}, &stdout); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	report := stdout.String()
	for _, want := range []string{"records", "chunks", "a: uint8", "b: string", "<item> uint8", "groups"} {
		if !strings.Contains(report, want) {
			t.Errorf("inspect output missing %q:\n%s", want, report)
		}
	}
}

func TestEncodeEmptyInput(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "empty.jsonl", "")
	out := filepath.Join(dir, "empty.rai")

	if err := Run([]string{"encode", "--out", out, in}); err == nil {
		t.Fatal("expected error for empty input without --allow-empty")
	}
	if err := Run([]string{"encode", "--out", out, "--allow-empty", in}); err != nil {
		t.Fatalf("encode --allow-empty failed: %v", err)
	}
	var stdout bytes.Buffer
	if err := RunContext(context.Background(), []string{"decode", out}, &stdout); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no output, got %q", stdout.String())
	}
}

// memStore is an in-memory objectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) FetchObject(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such object %s/%s", bucket, key)
	}
	return data, nil
}

func (m *memStore) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func useMemStore(t *testing.T) *memStore {
	t.Helper()
	store := &memStore{objects: make(map[string][]byte)}
	prev := newObjectStore
	newObjectStore = func(context.Context) (objectStore, error) { return store, nil }
	t.Cleanup(func() { newObjectStore = prev })
	return store
}

func TestEncodeDecodeS3(t *testing.T) {
	store := useMemStore(t)
	store.objects["in/part-0.jsonl"] = []byte("{\"k\":\"a\"}\n")
	store.objects["in/part-1.json"] = []byte(`[{"k":"b"},{"k":"c"}]`)

	local := writeInput(t, t.TempDir(), "local.jsonl", "{\"k\":\"z\"}\n")
	err := Run([]string{"encode", "--s3-out", "s3://out/data.rai",
		"s3://in/part-0.jsonl", local, "s3://in/part-1.json"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, ok := store.objects["out/data.rai"]; !ok {
		t.Fatal("container was not uploaded")
	}

	var stdout bytes.Buffer
	if err := RunContext(context.Background(), []string{"decode", "s3://out/data.rai"}, &stdout); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := "{\"k\":\"a\"}\n{\"k\":\"z\"}\n{\"k\":\"b\"}\n{\"k\":\"c\"}\n"
	if stdout.String() != want {
		t.Errorf("decode output = %q, want %q", stdout.String(), want)
	}
}

func TestDecodeS3Missing(t *testing.T) {
	useMemStore(t)
	err := RunContext(context.Background(), []string{"decode", "s3://out/missing.rai"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "download container") {
		t.Errorf("expected download error, got: %v", err)
	}
}
