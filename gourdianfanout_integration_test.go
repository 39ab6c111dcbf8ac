package gourdianfanout

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationRolloverOnFifthEvent(t *testing.T) {
	cfg := testConfig(t)
	clock := newTestClock(testDay)
	cfg.Clock = clock.Now
	cfg.RetainCount = 10

	// Every event serializes to the same size, so four fill a segment.
	msg := "fixed size event"
	var buf bytes.Buffer
	PlainFormatter{TimestampFormat: defaultTimestampFormat}.Format(&buf, Event{Time: time.Now(), Level: INFO, Message: msg})
	cfg.MaxBytes = int64(4 * buf.Len())

	p := newTestPipeline(t, cfg)
	for range 5 {
		p.Info(msg)
	}
	require.NoError(t, p.Close(context.Background()))

	segments, err := ListSegments(cfg.LogsDir, StreamInfo)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "info-20261014-1.log", segments[0].Path[len(cfg.LogsDir)+1:])
	assert.Equal(t, int64(buf.Len()), segments[0].Size)
	assert.Equal(t, cfg.MaxBytes, segments[1].Size)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Stream(StreamInfo).Rotations)
	assert.Equal(t, uint64(1), stats.Stream(StreamAll).Rotations)
}

func TestIntegrationOrderPreserved(t *testing.T) {
	cfg := testConfig(t)
	const n = 500

	cfg.BufferSize = 2 * n
	cfg.MaxBytes = 2048
	cfg.RetainCount = 1000
	p := newTestPipeline(t, cfg)

	for i := range n {
		p.Errorf("event %d", i)
	}
	require.NoError(t, p.Close(context.Background()))

	for _, stream := range []Stream{StreamError, StreamAll} {
		lines := readStream(t, cfg.LogsDir, stream)
		require.Len(t, lines, n, stream.String())
		for i, line := range lines {
			assert.True(t, strings.HasSuffix(line, fmt.Sprintf("event %d", i)), "%s line %d: %s", stream, i, line)
		}
	}
}

func TestIntegrationConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 250

	cfg := testConfig(t)
	cfg.BufferSize = producers * perProducer * 2
	cfg.MaxBytes = 16 * 1024
	cfg.RetainCount = 10000
	p := newTestPipeline(t, cfg)

	var wg sync.WaitGroup
	for g := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				if i%2 == 0 {
					p.Infof("producer=%d seq=%d", g, i)
				} else {
					p.Warnf("producer=%d seq=%d", g, i)
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, p.Close(context.Background()))

	re := regexp.MustCompile(`producer=(\d+) seq=(\d+)$`)
	all := readStream(t, cfg.LogsDir, StreamAll)
	require.Len(t, all, producers*perProducer)

	// Per-producer order survives the fan-in.
	last := make(map[int]int)
	seen := make(map[string]bool)
	for _, line := range all {
		m := re.FindStringSubmatch(line)
		require.NotNil(t, m, line)
		g, _ := strconv.Atoi(m[1])
		seq, _ := strconv.Atoi(m[2])
		if prev, ok := last[g]; ok {
			assert.Greater(t, seq, prev, "producer %d out of order", g)
		}
		last[g] = seq
		key := m[0]
		assert.False(t, seen[key], "duplicate %s", key)
		seen[key] = true
	}

	assert.Len(t, readStream(t, cfg.LogsDir, StreamInfo), producers*perProducer/2)
	assert.Len(t, readStream(t, cfg.LogsDir, StreamWarning), producers*perProducer/2)

	stats := p.Stats()
	for _, s := range stats.Streams {
		assert.Zero(t, s.DroppedOverflow, s.Stream.String())
	}
}

func TestIntegrationRetentionUnderLoad(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxBytes = 512
	cfg.RetainCount = 3
	cfg.BufferSize = 1000
	p := newTestPipeline(t, cfg)

	for i := range 400 {
		p.Debugf("rotating event number %04d", i)
	}
	require.NoError(t, p.Close(context.Background()))

	for _, stream := range []Stream{StreamDebug, StreamAll} {
		segments, err := ListSegments(cfg.LogsDir, stream)
		require.NoError(t, err)
		assert.Len(t, segments, 3, stream.String())
		for _, seg := range segments {
			assert.LessOrEqual(t, seg.Size, cfg.MaxBytes)
		}
	}

	lines := readStream(t, cfg.LogsDir, StreamDebug)
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "0399"))
}

func TestIntegrationDateRolloverAcrossStreams(t *testing.T) {
	cfg := testConfig(t)
	clock := newTestClock(testDay)
	cfg.Clock = clock.Now
	p := newTestPipeline(t, cfg)

	p.Info("day one")
	require.NoError(t, p.Flush(context.Background()))

	clock.Set(testDay.Add(24 * time.Hour))
	p.Info("day two")
	require.NoError(t, p.Close(context.Background()))

	segments, err := ListSegments(cfg.LogsDir, StreamInfo)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "20261015", segments[0].Date)
	assert.Equal(t, "20261014", segments[1].Date)
}

func TestIntegrationErrorHandlerReceivesOverflow(t *testing.T) {
	collector := &errorCollector{}
	cfg := testConfig(t)
	cfg.BufferSize = 1
	cfg.ErrorHandler = collector.handle
	p := newTestPipeline(t, cfg)

	// Park the info sink so its queue stays full.
	parkStream(t, p, StreamInfo, &recordingWriter{}, 1, collector.handle)

	for range 4 {
		p.Info("overflowing")
	}
	assert.Equal(t, uint64(3), p.Stats().Stream(StreamInfo).DroppedOverflow)

	require.NoError(t, p.Close(context.Background()))
	var found bool
	for _, err := range collector.all() {
		if strings.Contains(err.Error(), "info stream") && strings.Contains(err.Error(), ErrQueueOverflow.Error()) {
			found = true
		}
	}
	assert.True(t, found, "overflow diagnostic not reported")
}
