package gourdianfanout

import (
	"bufio"
	"context"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock is a settable clock shared by writers under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var testDay = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

// testConfig returns a config rooted at a fresh temp directory with
// diagnostics silenced. Workers may outlive a test after a grace timeout, so
// the handler must not touch t.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.LogsDir = t.TempDir()
	cfg.DiagnosticRate = 1000
	cfg.ErrorHandler = func(error) {}
	return cfg
}

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

// readStream returns every line of a stream, oldest segment first.
func readStream(t *testing.T, dir string, stream Stream) []string {
	t.Helper()
	segments, err := ListSegments(dir, stream)
	require.NoError(t, err)
	slices.Reverse(segments)

	var lines []string
	for _, seg := range segments {
		f, err := os.Open(seg.Path)
		require.NoError(t, err)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		require.NoError(t, scanner.Err())
		f.Close()
	}
	return lines
}

// recordingWriter is an in-memory eventWriter.
type recordingWriter struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{} // when non-nil, each Write waits for a receive
	failOn string        // message that makes Write fail
	panics string        // message that makes Write panic
	closed bool
}

func (w *recordingWriter) Write(e Event) (int, error) {
	if w.block != nil {
		<-w.block
	}
	if w.panics != "" && e.Message == w.panics {
		panic("writer exploded")
	}
	if w.failOn != "" && e.Message == w.failOn {
		return 0, &WriteError{Op: "write", Err: os.ErrPermission}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
	return len(e.Message), nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) Rotations() uint64 { return 0 }

func (w *recordingWriter) messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.events))
	for i, e := range w.events {
		out[i] = e.Message
	}
	return out
}

// errorCollector gathers diagnostics.
type errorCollector struct {
	mu   sync.Mutex
	errs []error
}

func (c *errorCollector) handle(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errorCollector) all() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.errs)
}

// closeSink drains s without a deadline and returns its Done channel.
func closeSink(t *testing.T, s *Sink) <-chan struct{} {
	t.Helper()
	require.NoError(t, s.Close(context.Background()))
	return s.Done()
}

// parkStream swaps the sink of stream for a parked one over w, so events
// queue up without being written until the pipeline drains it.
func parkStream(t *testing.T, p *Pipeline, stream Stream, w eventWriter, bufferSize int, handler func(error)) {
	t.Helper()
	p.genMu.Lock()
	parked := newSink(stream, w, sinkOptions{bufferSize: bufferSize, parked: true}, newDiagnostics(0, 1, handler))
	original := p.gen.sinks[stream]
	p.gen.sinks[stream] = parked
	p.gen.router = newRouter(p.gen.sinks)
	p.genMu.Unlock()
	require.NoError(t, original.Close(context.Background()))
}
