package gourdianfanout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OverflowPolicy decides what happens when a sink queue is full.
type OverflowPolicy int

const (
	// DropNewest discards the incoming event. Producers never wait.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the oldest queued event to make room. Producers never wait.
	DropOldest
	// BlockWithTimeout lets the producer wait up to Config.BlockTimeout for
	// room, then discards the incoming event.
	BlockWithTimeout
)

// ParseOverflowPolicy accepts "drop-newest", "drop-oldest" and "block"
// (case-insensitive, '_' and '-' interchangeable).
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", "drop-newest", "drop":
		return DropNewest, nil
	case "drop-oldest":
		return DropOldest, nil
	case "block", "block-with-timeout":
		return BlockWithTimeout, nil
	default:
		return DropNewest, fmt.Errorf("invalid overflow policy: %s", s)
	}
}

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	case BlockWithTimeout:
		return "block"
	default:
		return "unknown"
	}
}

// dropReportInterval bounds how long an overflow can go unreported while a
// sink is idle.
const dropReportInterval = time.Second

// evictAttempts bounds the DropOldest retry loop under producer contention.
const evictAttempts = 4

type eventWriter interface {
	Write(e Event) (int, error)
	Close() error
	Rotations() uint64
}

// SinkStats is a point-in-time snapshot of one sink's counters.
type SinkStats struct {
	Stream          Stream
	Accepted        uint64 // enqueued events
	Written         uint64 // events persisted
	DroppedOverflow uint64 // rejected or evicted because the queue was full
	DroppedClosed   uint64 // submitted after close
	DroppedShutdown uint64 // discarded once the shutdown grace period expired
	WriteFailures   uint64 // events lost to open or write errors
	Rotations       uint64
	QueueLength     int
	QueueCapacity   int
}

// Sink owns one stream: a bounded queue drained in FIFO order by a single
// worker goroutine into the stream's writer.
type Sink struct {
	stream       Stream
	queue        chan Event
	writer       eventWriter
	policy       OverflowPolicy
	blockTimeout time.Duration
	diag         *diagnostics

	mu     sync.RWMutex // guards closed and closing the queue
	closed bool

	gate     chan struct{}
	released sync.Once
	done     chan struct{}
	discard  atomic.Bool

	accepted  atomic.Uint64
	written   atomic.Uint64
	rejected  atomic.Uint64
	evicted   atomic.Uint64
	afterStop atomic.Uint64
	discarded atomic.Uint64
	failures  atomic.Uint64

	reportedDrops    uint64 // worker only
	reportedDiscards uint64 // worker only
}

type sinkOptions struct {
	bufferSize   int
	policy       OverflowPolicy
	blockTimeout time.Duration
	// parked sinks accept events but do not write until Release.
	parked bool
}

func newSink(stream Stream, w eventWriter, opts sinkOptions, diag *diagnostics) *Sink {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}
	s := &Sink{
		stream:       stream,
		queue:        make(chan Event, opts.bufferSize),
		writer:       w,
		policy:       opts.policy,
		blockTimeout: opts.blockTimeout,
		diag:         diag,
		gate:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if !opts.parked {
		s.Release()
	}
	go s.run()
	return s
}

// Stream returns the stream this sink owns.
func (s *Sink) Stream() Stream { return s.stream }

// Submit enqueues e and reports whether it was accepted. It never waits on
// I/O; only BlockWithTimeout may wait, and at most for the configured timeout.
// Rejected events are counted, never returned as errors.
func (s *Sink) Submit(e Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.afterStop.Add(1)
		return false
	}

	select {
	case s.queue <- e:
		s.accepted.Add(1)
		return true
	default:
	}

	switch s.policy {
	case DropOldest:
		for range evictAttempts {
			select {
			case <-s.queue:
				s.evicted.Add(1)
			default:
			}
			select {
			case s.queue <- e:
				s.accepted.Add(1)
				return true
			default:
			}
		}
	case BlockWithTimeout:
		if s.blockTimeout > 0 {
			timer := time.NewTimer(s.blockTimeout)
			defer timer.Stop()
			select {
			case s.queue <- e:
				s.accepted.Add(1)
				return true
			case <-timer.C:
			}
		}
	}

	s.rejected.Add(1)
	return false
}

// Release lets a parked sink's worker start writing. It is a no-op for
// running sinks.
func (s *Sink) Release() {
	s.released.Do(func() { close(s.gate) })
}

func (s *Sink) run() {
	defer close(s.done)
	defer s.closeWriter()

	<-s.gate

	ticker := time.NewTicker(dropReportInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.queue:
			if !ok {
				s.reportDrops()
				return
			}
			if s.discard.Load() {
				s.discarded.Add(1)
				continue
			}
			s.write(e)
		case <-ticker.C:
			s.reportDrops()
		}
	}
}

func (s *Sink) write(e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			s.diag.report(fmt.Errorf("%s stream: writer panicked: %v", s.stream, r))
		}
	}()

	if _, err := s.writer.Write(e); err != nil {
		s.failures.Add(1)
		s.diag.report(err)
		return
	}
	s.written.Add(1)
}

// reportDrops surfaces overflow drops and shutdown discards from the worker
// so producers never pay for diagnostics.
func (s *Sink) reportDrops() {
	if total := s.rejected.Load() + s.evicted.Load(); total > s.reportedDrops {
		n := total - s.reportedDrops
		s.reportedDrops = total
		s.diag.report(fmt.Errorf("%s stream: %w: %d events dropped (%d total)", s.stream, ErrQueueOverflow, n, total))
	}
	if total := s.discarded.Load(); total > s.reportedDiscards {
		n := total - s.reportedDiscards
		s.reportedDiscards = total
		s.diag.report(fmt.Errorf("%s stream: %w: %d events", s.stream, ErrShutdownDiscard, n))
	}
}

func (s *Sink) closeWriter() {
	if err := s.writer.Close(); err != nil {
		s.diag.report(fmt.Errorf("%s stream: %w", s.stream, err))
	}
}

// closeQueue stops accepting events. Queued events are still drained.
func (s *Sink) closeQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

// wait blocks until the worker has drained the queue or ctx is done. On
// expiry, the remaining events are discarded without interrupting a write in
// progress, and ctx's error is returned.
func (s *Sink) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.discard.Store(true)
		return ctx.Err()
	}
}

// Close stops accepting events, drains the queue and closes the writer,
// waiting at most until ctx is done.
func (s *Sink) Close(ctx context.Context) error {
	s.closeQueue()
	s.Release()
	return s.wait(ctx)
}

// Done is closed once the worker has exited and the writer is closed.
func (s *Sink) Done() <-chan struct{} { return s.done }

// processed counts accepted events that have left the queue for good.
func (s *Sink) processed() uint64 {
	return s.written.Load() + s.failures.Load() + s.evicted.Load() + s.discarded.Load()
}

// Stats returns a snapshot of the sink counters.
func (s *Sink) Stats() SinkStats {
	return SinkStats{
		Stream:          s.stream,
		Accepted:        s.accepted.Load(),
		Written:         s.written.Load(),
		DroppedOverflow: s.rejected.Load() + s.evicted.Load(),
		DroppedClosed:   s.afterStop.Load(),
		DroppedShutdown: s.discarded.Load(),
		WriteFailures:   s.failures.Load(),
		Rotations:       s.writer.Rotations(),
		QueueLength:     len(s.queue),
		QueueCapacity:   cap(s.queue),
	}
}
