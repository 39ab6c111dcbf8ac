package gourdianfanout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Pipeline is the ingest entry point: a Router over six sinks (one per
// severity plus the catch-all), each writing its own rotating file stream.
//
// A Pipeline is created once at startup with New and passed to every
// producer. All methods are safe for concurrent use.
type Pipeline struct {
	genMu    sync.RWMutex // guards gen, retiring and retired
	gen      *generation
	retiring *generation // draining during Replace
	retired  [streamCount]SinkStats

	lifecycleMu sync.Mutex // serializes Replace and Close
	closed      atomic.Bool

	minLevel      atomic.Int32
	overrideFloor atomic.Int32 // lowest per-source minimum
	suppressed    atomic.Uint64
}

// generation is one complete set of sinks sharing a config and directory lock.
type generation struct {
	cfg       Config
	router    *Router
	sinks     [streamCount]*Sink
	lock      *dirLock
	overrides levelOverrides
}

// New validates cfg, prepares the log directory, takes exclusive ownership
// of it and starts the six sinks.
//
// Errors:
//   - *ConfigError (wrapping ErrInvalidConfig): invalid values, a directory
//     that cannot be created, or one that is not writable
//   - ErrDirectoryInUse: another pipeline owns the directory
//
// Example:
//
//	p, err := gourdianfanout.New(gourdianfanout.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer p.Close(context.Background())
//
//	p.Info("service started")
func New(cfg Config) (*Pipeline, error) {
	cfg, err := cfg.resolved()
	if err != nil {
		return nil, err
	}
	if err := prepareDirectory(cfg.LogsDir); err != nil {
		return nil, err
	}
	lock, err := acquireDir(cfg.LogsDir)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{gen: newGeneration(cfg, lock, false)}
	p.minLevel.Store(int32(cfg.MinLevel))
	p.overrideFloor.Store(p.gen.overrides.floor())
	return p, nil
}

// NewDefault creates a pipeline from DefaultConfig with LOG_* environment
// overrides applied.
func NewDefault() (*Pipeline, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return New(cfg)
}

// prepareDirectory creates dir and proves it is writable.
func prepareDirectory(dir string) error {
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return &ConfigError{Field: "log_directory", Err: fmt.Errorf("%s is not a directory", dir)}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &ConfigError{Field: "log_directory", Err: fmt.Errorf("failed to create log directory: %w", err)}
	}
	tmp, err := os.CreateTemp(dir, ".writecheck-*")
	if err != nil {
		return &ConfigError{Field: "log_directory", Err: fmt.Errorf("log directory not writable: %w", err)}
	}
	name := tmp.Name()
	tmp.Close()
	if err := os.Remove(name); err != nil {
		return &ConfigError{Field: "log_directory", Err: fmt.Errorf("log directory not writable: %w", err)}
	}
	return nil
}

func newGeneration(cfg Config, lock *dirLock, parked bool) *generation {
	diag := newDiagnostics(cfg.DiagnosticRate, cfg.DiagnosticBurst, cfg.ErrorHandler)
	formatter := newFormatter(cfg.LogFormat, cfg.TimestampFormat)

	g := &generation{cfg: cfg, lock: lock, overrides: newLevelOverrides(cfg.LevelOverrides)}
	for _, stream := range Streams() {
		w := newRotatingWriter(cfg.LogsDir, stream, WriterConfig{
			MaxBytes:    cfg.MaxBytes,
			RetainCount: cfg.RetainCount,
			Formatter:   formatter,
			Clock:       cfg.Clock,
		}, diag)
		g.sinks[stream] = newSink(stream, w, sinkOptions{
			bufferSize:   cfg.BufferSize,
			policy:       cfg.Overflow,
			blockTimeout: cfg.BlockTimeout,
			parked:       parked,
		}, diag)
	}
	g.router = newRouter(g.sinks)
	return g
}

func (g *generation) release() {
	for _, s := range g.sinks {
		s.Release()
	}
}

// close stops every sink, letting them drain in parallel for at most the
// configured grace period or until ctx is done.
func (g *generation) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownGrace)
	defer cancel()

	for _, s := range g.sinks {
		s.closeQueue()
		s.Release()
	}
	var errs []error
	for _, s := range g.sinks {
		if err := s.wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s stream: drain: %w", s.stream, err))
		}
	}
	return errors.Join(errs...)
}

func (g *generation) waitDone() {
	for _, s := range g.sinks {
		<-s.Done()
	}
}

func (p *Pipeline) current() *generation {
	p.genMu.RLock()
	defer p.genMu.RUnlock()
	return p.gen
}

// Submit records an event. It never blocks on I/O, never panics and never
// reports errors to the caller; events below the minimum severity are
// suppressed and counted.
func (p *Pipeline) Submit(level Level, message string, fields map[string]any) {
	if p == nil {
		return
	}
	p.SubmitEvent(NewEvent(level, message, fields))
}

// SubmitEvent routes a prepared event to its sinks. An event whose source
// field matches Config.LevelOverrides is held to that override instead of
// the pipeline minimum severity.
func (p *Pipeline) SubmitEvent(e Event) {
	if p == nil {
		return
	}
	defer func() {
		// Logging must never fail the operation that logged.
		_ = recover()
	}()

	if !p.Enabled(e.Level) {
		p.suppressed.Add(1)
		return
	}

	// The read lock keeps a concurrent Replace from closing the sinks
	// between loading the generation and enqueueing.
	p.genMu.RLock()
	defer p.genMu.RUnlock()

	floor := Level(p.minLevel.Load())
	if len(p.gen.overrides) > 0 {
		if lvl, ok := p.gen.overrides.lookup(eventSource(e.Fields)); ok {
			floor = lvl
		}
	}
	if e.Level < floor {
		p.suppressed.Add(1)
		return
	}
	p.gen.router.Dispatch(e)
}

// Enabled reports whether events at level can pass the minimum severity,
// either the pipeline's or that of some per-source override.
func (p *Pipeline) Enabled(level Level) bool {
	if p == nil {
		return false
	}
	floor := min(p.minLevel.Load(), p.overrideFloor.Load())
	return int32(level) >= floor
}

// SetMinLevel changes the minimum severity at runtime.
func (p *Pipeline) SetMinLevel(level Level) {
	p.minLevel.Store(int32(level))
}

// MinLevel returns the current minimum severity.
func (p *Pipeline) MinLevel() Level {
	return Level(p.minLevel.Load())
}

// Config returns the resolved configuration of the active sinks.
func (p *Pipeline) Config() Config {
	return p.current().cfg
}

// Dir returns the log directory of the active sinks.
func (p *Pipeline) Dir() string {
	return p.current().cfg.LogsDir
}

// Replace atomically swaps the whole pipeline for one built from cfg.
// Events submitted after Replace begins go to the new sinks; the old sinks
// drain first, and only then do the new sinks start writing, so the two
// generations never write files concurrently.
//
// The returned error reports a drain that exceeded the grace period; the
// replacement itself has happened. Config errors leave the pipeline untouched.
func (p *Pipeline) Replace(ctx context.Context, cfg Config) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	cfg, err := cfg.resolved()
	if err != nil {
		return err
	}

	old := p.current()
	sameDir := old.lock.owns(cfg.LogsDir)

	lock := old.lock
	if !sameDir {
		if err := prepareDirectory(cfg.LogsDir); err != nil {
			return err
		}
		if lock, err = acquireDir(cfg.LogsDir); err != nil {
			return err
		}
	}

	next := newGeneration(cfg, lock, true)

	p.genMu.Lock()
	p.gen = next
	p.retiring = old
	p.minLevel.Store(int32(cfg.MinLevel))
	p.overrideFloor.Store(next.overrides.floor())
	p.genMu.Unlock()

	drainErr := old.close(ctx)
	// Stragglers past the grace period discard what is left; they still
	// finish their current write before the new generation starts.
	old.waitDone()

	// The old counters are final now; fold them in so totals never go back.
	p.genMu.Lock()
	for i, s := range old.sinks {
		p.retired[i] = addCounters(p.retired[i], s.Stats())
	}
	p.retiring = nil
	p.genMu.Unlock()
	if !sameDir {
		old.lock.release()
	}
	next.release()

	return drainErr
}

// Close stops accepting events and drains the queued ones, waiting at most
// the configured shutdown grace period or until ctx is done. Events left
// when the wait ends are discarded and counted. Close is idempotent.
func (p *Pipeline) Close(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	gen := p.current()
	err := gen.close(ctx)
	if err == nil {
		gen.lock.release()
		return nil
	}
	// Keep the directory owned until the last in-flight write is done.
	go func() {
		gen.waitDone()
		gen.lock.release()
	}()
	return err
}

// IsClosed reports whether Close has been called.
func (p *Pipeline) IsClosed() bool {
	return p.closed.Load()
}

// Flush waits until every event accepted so far has been written, failed or
// dropped, or until ctx is done.
func (p *Pipeline) Flush(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	gen := p.current()

	var targets [streamCount]uint64
	for i, s := range gen.sinks {
		targets[i] = s.accepted.Load()
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		pending := false
		for i, s := range gen.sinks {
			if s.processed() < targets[i] {
				pending = true
				break
			}
		}
		if !pending {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	Streams    []SinkStats // in Streams() order
	Suppressed uint64      // below the minimum severity
}

// Stream returns the stats of one stream.
func (s Stats) Stream(stream Stream) SinkStats {
	for _, st := range s.Streams {
		if st.Stream == stream {
			return st
		}
	}
	return SinkStats{Stream: stream}
}

// Stats returns counters accumulated over the pipeline's lifetime,
// including sinks retired by Replace. Queue gauges describe the active sinks.
func (p *Pipeline) Stats() Stats {
	p.genMu.RLock()
	defer p.genMu.RUnlock()

	stats := Stats{
		Streams:    make([]SinkStats, 0, streamCount),
		Suppressed: p.suppressed.Load(),
	}
	for i, s := range p.gen.sinks {
		st := addCounters(s.Stats(), p.retired[i])
		if p.retiring != nil {
			st = addCounters(st, p.retiring.sinks[i].Stats())
		}
		stats.Streams = append(stats.Streams, st)
	}
	return stats
}

// addCounters adds the counters of b to a, keeping a's stream and gauges.
func addCounters(a, b SinkStats) SinkStats {
	a.Accepted += b.Accepted
	a.Written += b.Written
	a.DroppedOverflow += b.DroppedOverflow
	a.DroppedClosed += b.DroppedClosed
	a.DroppedShutdown += b.DroppedShutdown
	a.WriteFailures += b.WriteFailures
	a.Rotations += b.Rotations
	return a
}
