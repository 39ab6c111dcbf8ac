package gourdianfanout

import "fmt"

// Stream identifies one destination log stream. Each stream is owned by
// exactly one sink and maps to one family of segment files.
type Stream int

const (
	StreamDebug Stream = iota
	StreamInfo
	StreamWarning
	StreamError
	StreamFatal
	// StreamAll is the catch-all stream that receives every event.
	StreamAll

	streamCount = int(StreamAll) + 1
)

// streamNames are part of the file naming contract; changing one renames the
// files operators look for.
var streamNames = [streamCount]string{
	StreamDebug:   "debug",
	StreamInfo:    "info",
	StreamWarning: "warning",
	StreamError:   "error",
	StreamFatal:   "fatal",
	StreamAll:     "all",
}

// exactStream holds the exact-severity destination of every level. Its
// length is the level count, so adding a level without a stream fails to compile.
var exactStream = [levelCount]Stream{
	DEBUG: StreamDebug,
	INFO:  StreamInfo,
	WARN:  StreamWarning,
	ERROR: StreamError,
	FATAL: StreamFatal,
}

// Streams returns every stream, exact-severity streams first.
func Streams() []Stream {
	return []Stream{StreamDebug, StreamInfo, StreamWarning, StreamError, StreamFatal, StreamAll}
}

// String returns the stream name used in segment file names.
func (s Stream) String() string {
	if s < 0 || int(s) >= streamCount {
		return fmt.Sprintf("stream(%d)", int(s))
	}
	return streamNames[s]
}

// ParseStream resolves a stream by its file name component.
func ParseStream(name string) (Stream, error) {
	for i, n := range streamNames {
		if n == name {
			return Stream(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stream: %q", name)
}

// Route returns the streams an event is delivered to: its exact-severity
// stream followed by StreamAll. It never filters. An event with an undefined
// level has no exact stream and goes to StreamAll only.
func Route(e Event) []Stream {
	if !e.Level.Valid() {
		return []Stream{StreamAll}
	}
	return []Stream{exactStream[e.Level], StreamAll}
}

// Router dispatches events to the sinks selected by Route.
type Router struct {
	sinks [streamCount]*Sink
}

// newRouter builds a router over a complete set of sinks indexed by stream.
func newRouter(sinks [streamCount]*Sink) *Router {
	return &Router{sinks: sinks}
}

// Dispatch submits e to each routed sink. It never blocks beyond the sinks'
// own enqueue policy.
func (r *Router) Dispatch(e Event) {
	for _, s := range Route(e) {
		if sink := r.sinks[s]; sink != nil {
			sink.Submit(e)
		}
	}
}

// Sink returns the sink that owns stream s.
func (r *Router) Sink(s Stream) *Sink {
	if s < 0 || int(s) >= streamCount {
		return nil
	}
	return r.sinks[s]
}
