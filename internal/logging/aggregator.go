package logging

import (
	"log/slog"
	"sync"
	"time"
)

type tally struct {
	count int64
	bytes int64
	last  []slog.Attr
}

type tallyKey struct{ component, event string }

// Aggregator folds high-frequency events (one per relayed output chunk,
// say) into a single event_summary record per component and event each
// interval.
type Aggregator struct {
	log    *slog.Logger
	window time.Duration

	mu     sync.Mutex
	counts map[tallyKey]*tally

	quit    chan struct{}
	stopped sync.Once
	loop    sync.WaitGroup
}

// NewAggregator flushes every intervalSecs seconds (30 when not positive).
// A nil logger drops everything recorded.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		log:    logger,
		window: time.Duration(intervalSecs) * time.Second,
		counts: map[tallyKey]*tally{},
		quit:   make(chan struct{}),
	}
}

// Start launches the periodic flush.
func (a *Aggregator) Start() {
	a.loop.Add(1)
	go func() {
		defer a.loop.Done()
		t := time.NewTicker(a.window)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				a.flush()
			case <-a.quit:
				return
			}
		}
	}()
}

// Stop ends the flush loop and writes whatever is still pending.
// Calling it twice is harmless.
func (a *Aggregator) Stop() {
	a.stopped.Do(func() { close(a.quit) })
	a.loop.Wait()
	a.flush()
}

// Record counts one occurrence of event.
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.RecordBytes(component, event, 0, fields...)
}

// RecordBytes counts one occurrence carrying n payload bytes. Fields from
// the latest call replace earlier ones.
func (a *Aggregator) RecordBytes(component, event string, n int, fields ...slog.Attr) {
	k := tallyKey{component, event}

	a.mu.Lock()
	defer a.mu.Unlock()
	t := a.counts[k]
	if t == nil {
		t = &tally{}
		a.counts[k] = t
	}
	t.count++
	t.bytes += int64(n)
	if len(fields) > 0 {
		t.last = fields
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	pending := a.counts
	if len(pending) > 0 {
		a.counts = map[tallyKey]*tally{}
	}
	a.mu.Unlock()

	if a.log == nil || len(pending) == 0 {
		return
	}
	secs := int(a.window / time.Second)
	for k, t := range pending {
		args := make([]any, 0, 5+len(t.last))
		args = append(args,
			slog.String("component", k.component),
			slog.String("event", k.event),
			slog.Int64("count", t.count),
			slog.Int("window_seconds", secs),
		)
		if t.bytes > 0 {
			args = append(args, slog.Int64("bytes", t.bytes))
		}
		for _, f := range t.last {
			args = append(args, f)
		}
		a.log.Info("event_summary", args...)
	}
}
