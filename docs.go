// Package gourdianfanout persists leveled log events through independent,
// rotating file streams without blocking the goroutine that logged.
//
// Overview:
// Every event is routed to the stream of its exact severity and to the
// catch-all "all" stream. Each stream is owned by one sink: a bounded queue
// drained in order by a single background goroutine into a rotating writer.
// A slow or failing stream never holds up producers or the other streams.
//
// Key Features:
// - Six streams: debug, info, warning, error, fatal and all
// - Non-blocking ingest with drop-newest, drop-oldest or bounded-block overflow
// - Daily and size-based rollover with per-stream retention
// - Plain text and JSON line formats
// - Exclusive ownership of the log directory
// - Atomic replacement of the whole pipeline at runtime
// - Rate-limited internal diagnostics
// - log/slog handler, net/http access log and Prometheus collector
//
// Getting Started:
//
//	p, err := gourdianfanout.New(gourdianfanout.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close(context.Background())
//
//	p.Info("Application starting")
//	p.ErrorfWithFields(map[string]any{"order": id}, "payment failed: %v", err)
//
// The Pipeline is an explicit value: create it once at startup and pass it
// to the code that logs. There is no package-level logger.
//
// File Layout:
//
// Segments are named <stream>-<date>[-<sequence>].log. The first segment of a
// day has no sequence suffix:
//
//	logs/info-20261014.log
//	logs/info-20261014-1.log
//	logs/all-20261014.log
//	logs/error-20261013.log
//
// A new segment is opened when the date changes or when the next event would
// push the active segment past MaxBytes. After each open, the oldest segments
// of the stream are removed so at most RetainCount remain.
//
// Configuration:
//
// Configuration can be built in code, loaded from YAML, TOML or JSON files
// with LoadConfigFile, and overridden with LOG_* environment variables:
//
//	log_directory: /var/log/myapp
//	max_segment_size_bytes: 10485760
//	retained_segment_count: 2
//	minimum_severity: info
//	overflow_policy: drop-oldest
//	format: json
//
// Environment Overrides:
// - LOG_DIR, LOG_MAX_BYTES, LOG_RETAIN, LOG_LEVEL
// - LOG_BUFFER, LOG_OVERFLOW, LOG_FORMAT, LOG_SHUTDOWN_GRACE, LOG_CALLER
//
// Failure Handling:
//
// Logging never fails the caller. Overflow drops, write failures and
// retention failures are counted (see Pipeline.Stats) and reported to
// Config.ErrorHandler, or to stderr, at most DiagnosticRate times per second.
// FATAL events are recorded like any other; the process is not terminated.
//
// Shutdown:
//
// Close stops intake and drains the queues in parallel for up to
// ShutdownGrace. Events still queued after that are discarded and counted.
//
//	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
//	defer cancel()
//	if err := p.Close(ctx); err != nil {
//	    fmt.Fprintf(os.Stderr, "log drain incomplete: %v\n", err)
//	}
package gourdianfanout
