package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range bytes.Split(b.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var r map[string]any
		require.NoError(t, json.Unmarshal(line, &r))
		out = append(out, r)
	}
	return out
}

func TestAggregatorSummarisesCountsAndBytes(t *testing.T) {
	var out syncBuffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&out, nil)), 60)
	agg.Start()

	agg.RecordBytes(CompBridge, "output_chunk", 100, slog.String("stream", "stdout"))
	agg.RecordBytes(CompBridge, "output_chunk", 28, slog.String("stream", "stdout"))
	agg.Record(CompBridge, "directive")

	agg.Stop()

	records := out.records(t)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "event_summary", r["msg"])
		switch r["event"] {
		case "output_chunk":
			assert.EqualValues(t, 2, r["count"])
			assert.EqualValues(t, 128, r["bytes"])
			assert.Equal(t, "stdout", r["stream"])
		case "directive":
			assert.EqualValues(t, 1, r["count"])
			assert.NotContains(t, r, "bytes")
		default:
			t.Fatalf("unexpected event %v", r["event"])
		}
	}
}

func TestAggregatorFlushesOnInterval(t *testing.T) {
	var out syncBuffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&out, nil)), 1)
	agg.Start()
	defer agg.Stop()

	agg.Record(CompProc, "aux_exit")

	require.Eventually(t, func() bool {
		return len(out.records(t)) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestAggregatorNilLogger(t *testing.T) {
	agg := NewAggregator(nil, 1)
	agg.Start()
	agg.Record(CompBridge, "ignored")
	agg.Stop()
	agg.Stop()
}
