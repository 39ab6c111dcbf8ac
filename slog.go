package gourdianfanout

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Field names for trace correlation.
const (
	fieldTraceID = "trace_id"
	fieldSpanID  = "span_id"
)

// SlogOptions configures the handler returned by NewSlogHandler.
type SlogOptions struct {
	// Level is the minimum slog level handled. The pipeline minimum severity
	// applies in addition. Defaults to slog.LevelDebug.
	Level slog.Leveler
	// DisableTrace turns off trace_id and span_id extraction.
	DisableTrace bool
}

// slogHandler bridges log/slog into a Pipeline. Attributes become event
// fields; groups are flattened into dotted keys, and the group path is the
// event source (see Config.LevelOverrides) unless a top-level "source" attr
// is present.
type slogHandler struct {
	p      *Pipeline
	opts   SlogOptions
	fields map[string]any
	prefix string
}

// NewSlogHandler returns a slog.Handler that submits every record to p.
//
// Example:
//
//	logger := slog.New(gourdianfanout.NewSlogHandler(p, nil))
//	logger.InfoContext(ctx, "order placed", "order_id", id)
func NewSlogHandler(p *Pipeline, opts *SlogOptions) slog.Handler {
	h := &slogHandler{p: p}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelDebug
	}
	return h
}

// LevelFromSlog maps a slog level to a severity. Levels above Error are
// FATAL once they reach slog.LevelError+4.
func LevelFromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARN
	case l < slog.LevelError+4:
		return ERROR
	default:
		return FATAL
	}
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level() && h.p.Enabled(LevelFromSlog(level))
}

func (h *slogHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, len(h.fields)+r.NumAttrs()+2)
	maps.Copy(fields, h.fields)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(fields, h.prefix, a)
		return true
	})
	// A grouped logger names its source unless a top-level source attr does.
	if _, ok := fields[SourceField]; !ok && h.prefix != "" {
		fields[SourceField] = strings.TrimSuffix(h.prefix, ".")
	}

	if !h.opts.DisableTrace && ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields[fieldTraceID] = sc.TraceID().String()
			fields[fieldSpanID] = sc.SpanID().String()
		}
	}

	e := Event{
		Time:    r.Time,
		Level:   LevelFromSlog(r.Level),
		Message: r.Message,
		Fields:  fields,
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if len(e.Fields) == 0 {
		e.Fields = nil
	}
	h.p.SubmitEvent(e)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	fields := maps.Clone(h.fields)
	if fields == nil {
		fields = make(map[string]any, len(attrs))
	}
	for _, a := range attrs {
		addAttr(fields, h.prefix, a)
	}
	return &slogHandler{p: h.p, opts: h.opts, fields: fields, prefix: h.prefix}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{p: h.p, opts: h.opts, fields: h.fields, prefix: h.prefix + name + "."}
}

// addAttr flattens a into fields under prefix.
func addAttr(fields map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(fields, groupPrefix, ga)
		}
		return
	}

	v := a.Value.Any()
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	fields[prefix+a.Key] = v
}
