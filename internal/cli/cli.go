// Package cli implements the command-line interface for raibin.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eunmann/raibinary/internal/logctx"
	"github.com/eunmann/raibinary/pkg/humanfmt"
	"github.com/eunmann/raibinary/pkg/ingest"
	"github.com/eunmann/raibinary/pkg/logging"
	"github.com/eunmann/raibinary/pkg/memdiag"
	"github.com/eunmann/raibinary/pkg/raibin"
	"github.com/eunmann/raibinary/pkg/s3fetch"
	"github.com/eunmann/raibinary/pkg/value"
)

// WorkersEnv overrides the default worker count when --workers is not given.
const WorkersEnv = "RAIBIN_WORKERS"

// objectStore is the subset of *s3fetch.Client the commands use.
type objectStore interface {
	s3fetch.ObjectFetcher
	PutObject(ctx context.Context, bucket, key string, data []byte) error
}

// newObjectStore is replaced in tests.
var newObjectStore = func(ctx context.Context) (objectStore, error) {
	return s3fetch.NewClient(ctx, s3fetch.DefaultClientConfig())
}

const usage = `usage: raibin <command> [options]
commands:
  encode   encode JSON, CSV or Parquet inputs into a container
  decode   write the records of a container as JSON Lines
  inspect  describe the sections and chunks of a container`

// Run executes the CLI with the given arguments, writing command output to
// stdout.
func Run(args []string) error {
	return RunContext(context.Background(), args, os.Stdout)
}

// RunContext is Run with an explicit context and output writer.
func RunContext(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "encode":
		return runEncode(ctx, args[1:])
	case "decode":
		return runDecode(ctx, args[1:], stdout)
	case "inspect":
		return runInspect(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

type logFlags struct {
	debug *bool
	human *bool
}

func addLogFlags(fs *flag.FlagSet) logFlags {
	return logFlags{
		debug: fs.Bool("debug", false, "enable debug logging"),
		human: fs.Bool("human", false, "human-readable log output"),
	}
}

// init configures logging and returns a context carrying the command's logger.
func (f logFlags) init(ctx context.Context, phase string) context.Context {
	logging.Init(*f.debug, *f.human)
	return logctx.WithLogger(ctx, logging.WithPhase(phase))
}

// determineWorkers resolves the worker count. Priority: --workers flag,
// then RAIBIN_WORKERS, then 0 for the library default.
func determineWorkers(flagVal int) (int, error) {
	if flagVal < 0 {
		return 0, fmt.Errorf("invalid --workers value %d", flagVal)
	}
	if flagVal > 0 {
		return flagVal, nil
	}
	env := os.Getenv(WorkersEnv)
	if env == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(env)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s value %q", WorkersEnv, env)
	}
	return n, nil
}

func runEncode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	format := fs.String("format", "auto", "input format: auto, jsonl, json, csv, parquet")
	out := fs.String("out", "", "output container path")
	s3Out := fs.String("s3-out", "", "output container S3 URI (s3://bucket/key)")
	chunkRecords := fs.Int("chunk-records", 0, "max records per chunk (default 65536)")
	chunkBytes := fs.String("chunk-bytes", "", "max estimated bytes per chunk, e.g. 4MiB")
	workers := fs.Int("workers", 0, "chunks encoded in parallel (env: "+WorkersEnv+")")
	maxDepth := fs.Int("max-depth", 0, "max nesting depth (default 64)")
	allowEmpty := fs.Bool("allow-empty", false, "write a container even when no records are read")
	lf := addLogFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out == "" && *s3Out == "" {
		return errors.New("--out or --s3-out is required")
	}
	if *out != "" && *s3Out != "" {
		return errors.New("--out and --s3-out are mutually exclusive")
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		return errors.New("at least one input file is required")
	}

	f, err := ingest.ParseFormat(*format)
	if err != nil {
		return fmt.Errorf("--format: %w", err)
	}
	n, err := determineWorkers(*workers)
	if err != nil {
		return err
	}
	opts := raibin.WriterOptions{
		MaxChunkRecords: *chunkRecords,
		Workers:         n,
		MaxDepth:        *maxDepth,
		AllowEmpty:      *allowEmpty,
	}
	if *chunkBytes != "" {
		size, err := humanfmt.ParseBytes(*chunkBytes)
		if err != nil {
			return fmt.Errorf("--chunk-bytes: %w", err)
		}
		if size > int64(^uint(0)>>1) {
			return fmt.Errorf("--chunk-bytes %s too large", *chunkBytes)
		}
		opts.MaxChunkBytes = int(size)
	}

	ctx = lf.init(ctx, "encode")
	log := logctx.FromContext(ctx)
	start := time.Now()
	mem := memdiag.NewTracker(memdiag.DefaultConfig(), log)
	mem.Start()
	defer mem.Stop()

	var store objectStore
	if *s3Out != "" || anyS3(inputs) {
		if store, err = newObjectStore(ctx); err != nil {
			return fmt.Errorf("create S3 client: %w", err)
		}
	}

	w := raibin.NewWriter(opts)
	mem.SetPhase("read")
	if err := addInputs(ctx, w, store, inputs, f); err != nil {
		return err
	}

	mem.SetPhase("seal")
	data, err := w.Seal(ctx)
	if err != nil {
		return fmt.Errorf("seal container: %w", err)
	}

	mem.SetPhase("write")
	dest := *out
	if *s3Out != "" {
		dest = *s3Out
		bucket, key, err := s3fetch.ParseObject(*s3Out)
		if err != nil {
			return fmt.Errorf("--s3-out: %w", err)
		}
		if err := store.PutObject(ctx, bucket, key, data); err != nil {
			return fmt.Errorf("upload container: %w", err)
		}
	} else if err := raibin.WriteFile(*out, data); err != nil {
		return fmt.Errorf("write container: %w", err)
	}

	logging.PhaseComplete(log, "encode", time.Since(start)).
		Int("inputs", len(inputs)).
		CountUint64("records", w.RecordCount()).
		Bytes("bytes", int64(len(data))).
		Bytes("peak_heap", int64(mem.PeakHeap())).
		Str("output", dest).
		Log("encode complete")
	return nil
}

func anyS3(inputs []string) bool {
	for _, in := range inputs {
		if s3fetch.IsS3URI(in) {
			return true
		}
	}
	return false
}

// addInputs copies every input into w in argument order. S3 inputs are
// downloaded up front in parallel; "-" reads standard input.
func addInputs(ctx context.Context, w *raibin.Writer, store objectStore, inputs []string, f ingest.Format) error {
	var remote []string
	for _, in := range inputs {
		if s3fetch.IsS3URI(in) {
			remote = append(remote, in)
		}
	}
	var fetched [][]byte
	if len(remote) > 0 {
		var err error
		if fetched, err = s3fetch.FetchAll(ctx, store, remote, 0); err != nil {
			return err
		}
	}

	next := 0
	for _, in := range inputs {
		var src ingest.Source
		var err error
		switch {
		case s3fetch.IsS3URI(in):
			src, err = ingest.FromBytes(fetched[next], in, f)
			fetched[next] = nil
			next++
		case in == "-":
			sf := f
			if sf == ingest.FormatAuto {
				sf = ingest.FormatJSONL
			}
			src, err = ingest.NewSource(os.Stdin, sf)
		default:
			src, err = ingest.OpenFile(in, f)
		}
		if err != nil {
			return fmt.Errorf("open input %s: %w", in, err)
		}

		_, err = ingest.Copy(logctx.WithStr(ctx, "input", in), w, src)
		cerr := src.Close()
		if err != nil {
			return fmt.Errorf("read input %s: %w", in, err)
		}
		if cerr != nil {
			return fmt.Errorf("close input %s: %w", in, cerr)
		}
	}
	return nil
}

// openContainer opens a local container file or downloads one from S3.
// The returned Reader must be closed.
func openContainer(ctx context.Context, loc string, opts raibin.ReaderOptions) (*raibin.Reader, int64, error) {
	if !s3fetch.IsS3URI(loc) {
		info, err := os.Stat(loc)
		if err != nil {
			return nil, 0, fmt.Errorf("stat container: %w", err)
		}
		r, err := raibin.OpenFile(loc, opts)
		if err != nil {
			return nil, 0, err
		}
		return r, info.Size(), nil
	}

	bucket, key, err := s3fetch.ParseObject(loc)
	if err != nil {
		return nil, 0, err
	}
	store, err := newObjectStore(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("create S3 client: %w", err)
	}
	data, err := store.FetchObject(ctx, bucket, key)
	if err != nil {
		return nil, 0, fmt.Errorf("download container: %w", err)
	}
	r, err := raibin.OpenWithOptions(data, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", loc, err)
	}
	return r, int64(len(data)), nil
}

func runDecode(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	workers := fs.Int("workers", 0, "chunks decoded in parallel (env: "+WorkersEnv+")")
	fields := fs.String("fields", "", "comma-separated top-level fields to keep")
	chunk := fs.Int("chunk", -1, "decode only this chunk")
	lf := addLogFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("decode requires exactly one container path or S3 URI")
	}
	n, err := determineWorkers(*workers)
	if err != nil {
		return err
	}

	ctx = lf.init(ctx, "decode")
	mem := memdiag.NewTracker(memdiag.DefaultConfig(), logctx.FromContext(ctx))
	mem.Start()
	defer mem.Stop()

	r, _, err := openContainer(ctx, fs.Arg(0), raibin.ReaderOptions{Workers: n})
	if err != nil {
		return err
	}
	defer r.Close()
	mem.SetPhase("decode")

	var selected []string
	if *fields != "" {
		for _, f := range strings.Split(*fields, ",") {
			selected = append(selected, strings.TrimSpace(f))
		}
	}

	var records []value.Value
	switch {
	case *chunk >= 0 && selected != nil:
		records, err = r.ReadChunkFields(*chunk, selected)
	case *chunk >= 0:
		records, err = r.ReadChunk(*chunk)
	case selected != nil:
		records, err = r.ReadAllFields(ctx, selected)
	default:
		records, err = r.ReadAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	mem.SetPhase("write")
	bw := bufio.NewWriter(stdout)
	var line []byte
	for i, rec := range records {
		if line, err = value.AppendJSON(line[:0], rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func runInspect(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	showChunks := fs.Bool("chunks", true, "list every chunk")
	showLayouts := fs.Bool("layouts", false, "list layout definitions")
	lf := addLogFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("inspect requires exactly one container path or S3 URI")
	}

	ctx = lf.init(ctx, "inspect")
	start := time.Now()
	r, size, err := openContainer(ctx, fs.Arg(0), raibin.ReaderOptions{})
	if err != nil {
		return err
	}
	defer r.Close()

	stats := r.Stats()
	h := r.Header()
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "container\t%s\n", fs.Arg(0))
	fmt.Fprintf(tw, "version\t%#x\n", h.Version)
	fmt.Fprintf(tw, "size\t%s\n", humanfmt.Bytes(size))
	fmt.Fprintf(tw, "records\t%s\n", humanfmt.Count(int64(h.RecordCount)))
	fmt.Fprintf(tw, "chunks\t%s\n", humanfmt.Count(int64(len(stats))))
	fmt.Fprintf(tw, "keys\t%s\n", humanfmt.Count(int64(r.Keys().Len())))
	fmt.Fprintf(tw, "layouts\t%s\n", humanfmt.Count(int64(r.Layouts().Len())))

	var chunkBytes int64
	for _, s := range stats {
		chunkBytes += int64(s.Size)
	}
	fmt.Fprintf(tw, "chunk data\t%s\t%s\n", humanfmt.Bytes(chunkBytes), humanfmt.Percent(chunkBytes, size))

	if *showLayouts {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "layout\tfields")
		for i, def := range r.Layouts().Definitions() {
			fmt.Fprintf(tw, "%d\t%s\n", i, describeLayout(r.Keys(), def))
		}
	}

	if *showChunks && len(stats) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "chunk\toffset\tsize\trecords\tgroups")
		for _, s := range stats {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\n",
				s.Index, s.Offset, humanfmt.Bytes(int64(s.Size)), humanfmt.Count(int64(s.Records)), s.Groups)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	logging.PhaseComplete(logctx.FromContext(ctx), "inspect", time.Since(start)).
		Int("chunks", len(stats)).
		Bytes("bytes", size).
		LogDebug("inspect complete")
	return nil
}

func describeLayout(keys *raibin.KeyDictionary, def raibin.LayoutDefinition) string {
	if def.IsScalar() {
		return "<item> " + def.Fields[0].Type.String()
	}
	if len(def.Fields) == 0 {
		return "{}"
	}
	parts := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		name, err := keys.Resolve(f.KeyID)
		if err != nil {
			name = fmt.Sprintf("#%d", f.KeyID)
		}
		parts[i] = name + ": " + f.Type.String()
	}
	return strings.Join(parts, ", ")
}
