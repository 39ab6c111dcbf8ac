package gourdianfanout

import (
	"net/http"
	"strings"
	"time"
)

// AccessLogOption configures AccessLog.
type AccessLogOption func(*accessLogConfig)

type accessLogConfig struct {
	message       string
	excludePaths  map[string]bool
	slowThreshold time.Duration
}

// WithAccessLogMessage sets the event message. Defaults to "access".
func WithAccessLogMessage(msg string) AccessLogOption {
	return func(c *accessLogConfig) { c.message = msg }
}

// WithExcludePaths skips logging for the exact request paths given.
func WithExcludePaths(paths ...string) AccessLogOption {
	return func(c *accessLogConfig) {
		for _, p := range paths {
			c.excludePaths[p] = true
		}
	}
}

// WithSlowThreshold logs successful requests slower than d at WARN and marks
// them slow.
func WithSlowThreshold(d time.Duration) AccessLogOption {
	return func(c *accessLogConfig) { c.slowThreshold = d }
}

// AccessLog returns net/http middleware that records one event per request
// with method, path, status, bytes and duration. 5xx responses are logged at
// ERROR, 4xx at WARN and everything else at INFO.
//
// Example:
//
//	mux := http.NewServeMux()
//	handler := gourdianfanout.AccessLog(p, gourdianfanout.WithExcludePaths("/health"))(mux)
//	http.ListenAndServe(":8080", handler)
func AccessLog(p *Pipeline, opts ...AccessLogOption) func(http.Handler) http.Handler {
	cfg := &accessLogConfig{
		message:      "access",
		excludePaths: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.excludePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rw, r)
			duration := time.Since(start)

			status := rw.StatusCode()
			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       rw.size,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": clientAddr(r),
			}
			if ua := r.UserAgent(); ua != "" {
				fields["user_agent"] = ua
			}
			isSlow := cfg.slowThreshold > 0 && duration >= cfg.slowThreshold
			if isSlow {
				fields["slow"] = true
			}

			level := INFO
			switch {
			case status >= 500:
				level = ERROR
			case status >= 400, isSlow:
				level = WARN
			}
			p.Submit(level, cfg.message, fields)
		})
	}
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

var _ http.Flusher = (*statusRecorder)(nil)

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *statusRecorder) StatusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
