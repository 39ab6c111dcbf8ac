package gourdianfanout

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

var (
	defaultDiagnosticRate  = 1.0
	defaultDiagnosticBurst = 5
)

// diagnostics reports internal pipeline failures without ever feeding them
// back into the pipeline itself. Reports are rate limited; the number of
// reports suppressed since the last delivered one is appended to the next.
type diagnostics struct {
	limiter    *rate.Limiter
	handler    func(error)
	fallback   io.Writer
	mu         sync.Mutex
	suppressed atomic.Uint64
}

func newDiagnostics(perSecond float64, burst int, handler func(error)) *diagnostics {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &diagnostics{
		limiter:  rate.NewLimiter(limit, burst),
		handler:  handler,
		fallback: os.Stderr,
	}
}

// SuppressedDiagnostics is attached to a delivered diagnostic when earlier
// reports were held back by the rate limiter.
type SuppressedDiagnostics struct {
	Err        error
	Suppressed uint64
}

func (e *SuppressedDiagnostics) Error() string {
	return fmt.Sprintf("%v (%d similar reports suppressed)", e.Err, e.Suppressed)
}

func (e *SuppressedDiagnostics) Unwrap() error { return e.Err }

func (d *diagnostics) report(err error) {
	if d == nil || err == nil {
		return
	}
	if !d.limiter.Allow() {
		d.suppressed.Add(1)
		return
	}
	if n := d.suppressed.Swap(0); n > 0 {
		err = &SuppressedDiagnostics{Err: err, Suppressed: n}
	}
	d.deliver(err)
}

func (d *diagnostics) deliver(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handler != nil {
		// A panicking handler must not take a sink worker down with it.
		defer func() {
			if r := recover(); r != nil && d.fallback != nil {
				fmt.Fprintf(d.fallback, "GOURDIANFANOUT ERROR: error handler panicked: %v (while reporting: %v)\n", r, err)
			}
		}()
		d.handler(err)
		return
	}
	if d.fallback != nil {
		fmt.Fprintf(d.fallback, "GOURDIANFANOUT ERROR: %v\n", err)
	}
}
