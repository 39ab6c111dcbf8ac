package gourdianfanout

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func benchmarkPipeline(b *testing.B, mutate func(*Config)) *Pipeline {
	b.Helper()
	cfg := DefaultConfig()
	cfg.LogsDir = b.TempDir()
	cfg.ErrorHandler = func(error) {}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func BenchmarkSubmit(b *testing.B) {
	p := benchmarkPipeline(b, nil)
	b.ReportAllocs()
	for b.Loop() {
		p.Info("benchmark message")
	}
}

func BenchmarkSubmitParallel(b *testing.B) {
	p := benchmarkPipeline(b, nil)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			p.Info("benchmark message")
		}
	})
}

func BenchmarkSubmitWithFields(b *testing.B) {
	p := benchmarkPipeline(b, nil)
	fields := map[string]any{"user": "alice", "attempt": 3, "path": "/api/v1"}
	b.ReportAllocs()
	for b.Loop() {
		p.InfoWithFields(fields, "benchmark message")
	}
}

func BenchmarkSubmitSuppressed(b *testing.B) {
	p := benchmarkPipeline(b, func(c *Config) { c.MinLevel = ERROR })
	b.ReportAllocs()
	for b.Loop() {
		p.Debug("never written")
	}
}

func BenchmarkSubmitWithCaller(b *testing.B) {
	p := benchmarkPipeline(b, func(c *Config) { c.EnableCaller = true })
	b.ReportAllocs()
	for b.Loop() {
		p.Info("benchmark message")
	}
}

func BenchmarkFormatters(b *testing.B) {
	e := Event{
		Time:    time.Now(),
		Level:   WARN,
		Message: "benchmark message",
		Fields:  map[string]any{"user": "alice", "attempt": 3},
	}
	formatters := map[string]Formatter{
		"plain": PlainFormatter{TimestampFormat: defaultTimestampFormat},
		"json":  JSONFormatter{TimestampFormat: defaultTimestampFormat},
	}
	for name, f := range formatters {
		b.Run(name, func(b *testing.B) {
			var buf bytes.Buffer
			b.ReportAllocs()
			for b.Loop() {
				buf.Reset()
				f.Format(&buf, e)
			}
		})
	}
}
