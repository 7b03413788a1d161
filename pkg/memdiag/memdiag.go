// Package memdiag logs heap usage while containers are encoded and decoded.
//
// Enable periodic debug logging with RAIBIN_MEM_DEBUG=1.
// Enable a pprof server with RAIBIN_MEM_PPROF=1 (listens on PprofAddr).
package memdiag

import (
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/eunmann/raibinary/pkg/humanfmt"
)

// Environment switches read by DefaultConfig.
const (
	DebugEnv = "RAIBIN_MEM_DEBUG"
	PprofEnv = "RAIBIN_MEM_PPROF"
)

// PprofAddr is where the pprof server listens.
const PprofAddr = "localhost:6060"

// Config holds configuration for memory diagnostics.
type Config struct {
	// Enabled controls whether memory diagnostics are active.
	Enabled bool

	// PprofEnabled controls whether the pprof server is started.
	PprofEnabled bool

	// LogInterval is the interval for periodic memory logging.
	LogInterval time.Duration
}

// DefaultConfig returns the default configuration, reading from environment.
func DefaultConfig() Config {
	return Config{
		Enabled:      os.Getenv(DebugEnv) == "1",
		PprofEnabled: os.Getenv(PprofEnv) == "1",
		LogInterval:  5 * time.Second,
	}
}

// Stats is a snapshot of runtime memory counters.
type Stats struct {
	HeapAlloc  uint64
	HeapSys    uint64
	HeapInuse  uint64
	StackInuse uint64
	Sys        uint64
	NumGC      uint32
}

// Read reads current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		HeapInuse:  m.HeapInuse,
		StackInuse: m.StackInuse,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// Tracker logs memory usage periodically and at phase changes. A disabled
// tracker still records peak heap at each SetPhase and LogNow.
type Tracker struct {
	config  Config
	log     zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool

	mu       sync.Mutex
	phase    string
	peakHeap uint64
}

// NewTracker creates a tracker that logs to log.
func NewTracker(config Config, log zerolog.Logger) *Tracker {
	if config.LogInterval <= 0 {
		config.LogInterval = 5 * time.Second
	}
	return &Tracker{
		config: config,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		phase:  "init",
	}
}

// Start begins periodic memory logging if enabled.
func (t *Tracker) Start() {
	if !t.config.Enabled {
		return
	}
	if !t.started.CompareAndSwap(false, true) {
		return
	}

	t.log.Info().Msg("memory diagnostics enabled")
	if t.config.PprofEnabled {
		go func() {
			t.log.Info().Str("addr", PprofAddr).Msg("starting pprof server")
			if err := http.ListenAndServe(PprofAddr, nil); err != nil {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}
	go t.logLoop()
}

// Stop stops periodic logging and logs a final snapshot.
func (t *Tracker) Stop() {
	if !t.started.CompareAndSwap(true, false) {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

// SetPhase sets the phase reported with every snapshot.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.LogNow("phase_change")
}

// LogNow samples memory and, when enabled, logs the snapshot.
func (t *Tracker) LogNow(reason string) {
	stats := Read()

	t.mu.Lock()
	phase := t.phase
	t.peakHeap = max(t.peakHeap, stats.HeapAlloc)
	peak := t.peakHeap
	t.mu.Unlock()

	if !t.config.Enabled {
		return
	}
	t.log.Debug().
		Str("reason", reason).
		Str("mem_phase", phase).
		Str("heap_alloc", humanfmt.Bytes(int64(stats.HeapAlloc))).
		Str("heap_inuse", humanfmt.Bytes(int64(stats.HeapInuse))).
		Str("stack_inuse", humanfmt.Bytes(int64(stats.StackInuse))).
		Str("sys_total", humanfmt.Bytes(int64(stats.Sys))).
		Str("peak_heap", humanfmt.Bytes(int64(peak))).
		Uint32("num_gc", stats.NumGC).
		Msg("memory stats")
}

// PeakHeap returns the peak heap allocation seen.
func (t *Tracker) PeakHeap() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

func (t *Tracker) logLoop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.config.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.LogNow("shutdown")
			return
		case <-ticker.C:
			t.LogNow("periodic")
		}
	}
}
