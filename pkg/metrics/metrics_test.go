package metrics

import (
	"testing"
	"time"
)

func TestEmitNilObserverSafe(t *testing.T) {
	Emit(nil, EventSessionStart, "s1", 1, nil)
}

func TestEmitTagsStream(t *testing.T) {
	mem := NewMemoryObserver()
	Emit(mem, EventUtteranceFinal, "stream-7", 3, map[string]any{"bytes": 640})

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if ev.Name != EventUtteranceFinal || ev.Value != 3 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Tags["stream_id"] != "stream-7" {
		t.Fatalf("stream tag missing: %v", ev.Tags)
	}
	if ev.Fields["bytes"] != 640 {
		t.Fatalf("fields lost: %v", ev.Fields)
	}
}

func TestAsyncObserverDelivers(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 16)
	defer async.Close()

	for i := 0; i < 10; i++ {
		async.RecordEvent(MetricsEvent{Name: EventFrameReceived})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mem.Count(EventFrameReceived) == 10 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected 10 events, got %d", mem.Count(EventFrameReceived))
}

func TestAsyncObserverDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	slow := observerFunc(func(MetricsEvent) { <-block })
	async := NewAsyncObserver(slow, 1)
	defer func() {
		close(block)
		async.Close()
	}()

	for i := 0; i < 50; i++ {
		async.RecordEvent(MetricsEvent{Name: EventFrameReceived})
	}
	if async.Dropped() == 0 {
		t.Fatalf("expected drops with a stalled sink")
	}
}

func TestAsyncObserverCloseIdempotent(t *testing.T) {
	async := NewAsyncObserver(NewMemoryObserver(), 4)
	async.Close()
	async.Close()
	async.RecordEvent(MetricsEvent{Name: EventSessionEnd})
}

func TestSamplingObserverRate(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.1)
	for i := 0; i < 1000; i++ {
		s.RecordEvent(MetricsEvent{Name: EventFrameReceived})
	}
	got := mem.Count(EventFrameReceived)
	if got != 100 {
		t.Fatalf("expected 100 sampled events, got %d", got)
	}
}

func TestSamplingObserverZeroRateDropsAll(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0)
	for i := 0; i < 100; i++ {
		s.RecordEvent(MetricsEvent{Name: EventFrameReceived})
	}
	if got := mem.Count(EventFrameReceived); got != 0 {
		t.Fatalf("zero rate forwarded %d events", got)
	}
}

func TestSampleFramesPassesOtherEventsThrough(t *testing.T) {
	mem := NewMemoryObserver()
	obs := SampleFrames(mem, 0.01)

	for i := 0; i < 10; i++ {
		obs.RecordEvent(MetricsEvent{Name: EventFrameReceived})
		obs.RecordEvent(MetricsEvent{Name: EventUtteranceFinal})
	}
	if got := mem.Count(EventUtteranceFinal); got != 10 {
		t.Fatalf("non-frame events sampled away: %d", got)
	}
	if got := mem.Count(EventFrameReceived); got >= 10 {
		t.Fatalf("frame events not sampled: %d", got)
	}
}

type observerFunc func(MetricsEvent)

func (f observerFunc) RecordEvent(ev MetricsEvent) { f(ev) }
