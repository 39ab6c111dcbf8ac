package gourdianfanout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	segmentDateLayout = "20060102"
	segmentExt        = ".log"
)

// Segment describes one physical log file of a stream.
//
// Segment files are named <stream>-<date>[-<sequence>].log where date uses
// the 20060102 layout and sequence 0 carries no suffix:
//
//	info-20261014.log
//	info-20261014-1.log
//	info-20261014-2.log
type Segment struct {
	Path     string
	Stream   Stream
	Date     string
	Sequence int
	Size     int64
}

// SegmentName returns the file name of a segment.
func SegmentName(stream Stream, date string, sequence int) string {
	if sequence == 0 {
		return stream.String() + "-" + date + segmentExt
	}
	return stream.String() + "-" + date + "-" + strconv.Itoa(sequence) + segmentExt
}

// ParseSegmentName parses a base file name following the segment naming
// contract. Path and Size of the result are left empty.
func ParseSegmentName(name string) (Segment, bool) {
	base, ok := strings.CutSuffix(name, segmentExt)
	if !ok {
		return Segment{}, false
	}
	parts := strings.Split(base, "-")
	if len(parts) != 2 && len(parts) != 3 {
		return Segment{}, false
	}

	stream, err := ParseStream(parts[0])
	if err != nil {
		return Segment{}, false
	}
	if len(parts[1]) != len(segmentDateLayout) {
		return Segment{}, false
	}
	if _, err := time.Parse(segmentDateLayout, parts[1]); err != nil {
		return Segment{}, false
	}

	seg := Segment{Stream: stream, Date: parts[1]}
	if len(parts) == 3 {
		seq, err := strconv.Atoi(parts[2])
		// Only the canonical form is recognised: no sign, no leading zeros, no explicit 0.
		if err != nil || seq <= 0 || strconv.Itoa(seq) != parts[2] {
			return Segment{}, false
		}
		seg.Sequence = seq
	}
	return seg, true
}

// ListSegments returns the segments of stream found in dir, most recent
// first (date descending, then sequence descending). A missing directory
// yields no segments.
func ListSegments(dir string, stream Stream) ([]Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var segments []Segment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		seg, ok := ParseSegmentName(entry.Name())
		if !ok || seg.Stream != stream {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		seg.Path = filepath.Join(dir, entry.Name())
		seg.Size = info.Size()
		segments = append(segments, seg)
	}

	slices.SortFunc(segments, func(a, b Segment) int {
		if c := strings.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return b.Sequence - a.Sequence
	})
	return segments, nil
}

// WriterConfig configures a RotatingWriter.
type WriterConfig struct {
	MaxBytes     int64
	RetainCount  int
	Formatter    Formatter
	Clock        func() time.Time
	ErrorHandler func(error)
}

// RotatingWriter appends serialized events to the segments of one stream,
// rolling over on date change and on size, and pruning old segments.
//
// A RotatingWriter is not safe for concurrent use. Inside a pipeline it is
// owned by exactly one sink worker.
type RotatingWriter struct {
	dir       string
	stream    Stream
	maxBytes  int64
	retain    int
	formatter Formatter
	now       func() time.Time
	diag      *diagnostics

	file   *os.File
	active Segment
	closed bool

	rotations atomic.Uint64
}

// NewRotatingWriter creates a writer for stream rooted at dir. No file is
// opened until the first write.
//
// Retention failures are passed to cfg.ErrorHandler (or stderr); they never
// fail a write.
func NewRotatingWriter(dir string, stream Stream, cfg WriterConfig) *RotatingWriter {
	return newRotatingWriter(dir, stream, cfg, newDiagnostics(0, 1, cfg.ErrorHandler))
}

func newRotatingWriter(dir string, stream Stream, cfg WriterConfig, diag *diagnostics) *RotatingWriter {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.RetainCount <= 0 {
		cfg.RetainCount = defaultRetainCount
	}
	if cfg.Formatter == nil {
		cfg.Formatter = PlainFormatter{TimestampFormat: defaultTimestampFormat}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &RotatingWriter{
		dir:       dir,
		stream:    stream,
		maxBytes:  cfg.MaxBytes,
		retain:    cfg.RetainCount,
		formatter: cfg.Formatter,
		now:       cfg.Clock,
		diag:      diag,
	}
}

// Write serializes e and appends it to the active segment, opening or
// rolling over segments as needed. It returns the number of bytes written.
func (w *RotatingWriter) Write(e Event) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}

	buf := getBuffer()
	defer putBuffer(buf)
	w.formatter.Format(buf, e)

	return w.writeEntry(buf.Bytes())
}

func (w *RotatingWriter) writeEntry(data []byte) (int, error) {
	today := w.now().Format(segmentDateLayout)

	if w.file == nil || w.active.Date != today {
		if err := w.openForDate(today); err != nil {
			return 0, err
		}
	}

	if w.active.Size > 0 && w.active.Size+int64(len(data)) > w.maxBytes {
		if err := w.rollover(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(data)
	w.active.Size += int64(n)
	if err != nil {
		return n, &WriteError{Stream: w.stream, Op: "write", Path: w.active.Path, Err: err}
	}
	return n, nil
}

// openForDate opens the newest segment of date, continuing a partly filled
// segment left by an earlier run, or sequence 0 when date has none.
func (w *RotatingWriter) openForDate(date string) error {
	rolled := w.file != nil
	w.closeFile()

	seq := 0
	existing, err := w.highestSequence(date)
	if err != nil {
		return &WriteError{Stream: w.stream, Op: "open", Path: w.dir, Err: err}
	}
	if existing >= 0 {
		seq = existing
	}

	if err := w.open(date, seq); err != nil {
		return err
	}
	if rolled {
		w.rotations.Add(1)
	}
	return nil
}

// rollover closes the full active segment and opens the next sequence of the
// same date.
func (w *RotatingWriter) rollover() error {
	date := w.active.Date
	seq := w.active.Sequence + 1
	if existing, err := w.highestSequence(date); err == nil && existing >= seq {
		seq = existing + 1
	}

	w.closeFile()
	if err := w.open(date, seq); err != nil {
		return err
	}
	w.rotations.Add(1)
	return nil
}

func (w *RotatingWriter) open(date string, seq int) error {
	path := filepath.Join(w.dir, SegmentName(w.stream, date, seq))

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return &WriteError{Stream: w.stream, Op: "open", Path: path, Err: err}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &WriteError{Stream: w.stream, Op: "open", Path: path, Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return &WriteError{Stream: w.stream, Op: "open", Path: path, Err: err}
	}

	w.file = file
	w.active = Segment{
		Path:     path,
		Stream:   w.stream,
		Date:     date,
		Sequence: seq,
		Size:     info.Size(),
	}

	w.enforceRetention()
	return nil
}

// highestSequence returns the largest sequence on disk for date, or -1.
func (w *RotatingWriter) highestSequence(date string) (int, error) {
	segments, err := ListSegments(w.dir, w.stream)
	if err != nil {
		return -1, err
	}
	for _, seg := range segments {
		if seg.Date == date {
			// Sorted by recency, so the first match is the highest.
			return seg.Sequence, nil
		}
	}
	return -1, nil
}

// enforceRetention deletes the oldest segments until at most retain remain,
// counting the active segment, which is never deleted.
func (w *RotatingWriter) enforceRetention() {
	segments, err := ListSegments(w.dir, w.stream)
	if err != nil {
		w.diag.report(&WriteError{Stream: w.stream, Op: "retention", Path: w.dir, Err: err})
		return
	}

	others := slices.DeleteFunc(segments, func(s Segment) bool { return s.Path == w.active.Path })
	keep := w.retain - 1
	if len(others) <= keep {
		return
	}
	for _, seg := range others[keep:] {
		if err := os.Remove(seg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.diag.report(&WriteError{Stream: w.stream, Op: "retention", Path: seg.Path, Err: err})
		}
	}
}

func (w *RotatingWriter) closeFile() {
	if w.file == nil {
		return
	}
	if err := w.file.Close(); err != nil {
		w.diag.report(&WriteError{Stream: w.stream, Op: "close", Path: w.active.Path, Err: err})
	}
	w.file = nil
}

// Active returns the active segment. ok is false before the first
// successful open or after Close.
func (w *RotatingWriter) Active() (seg Segment, ok bool) {
	if w.file == nil {
		return Segment{}, false
	}
	return w.active, true
}

// Rotations returns the number of date and size rollovers performed. It is
// safe to call from any goroutine.
func (w *RotatingWriter) Rotations() uint64 {
	return w.rotations.Load()
}

// Close syncs and closes the active segment. Writes after Close fail with ErrClosed.
func (w *RotatingWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}

	var errs []error
	if err := w.file.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, err)
	}
	w.file = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close %s: %w", w.active.Path, err)
	}
	return nil
}
