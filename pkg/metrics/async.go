package metrics

import (
	"math"
	"sync"
	"sync/atomic"
)

// AsyncObserver decouples event recording from the connection read loop so a
// slow sink never stalls audio ingress. Events are dropped, not queued
// unboundedly, when the buffer is full.
type AsyncObserver struct {
	inner   Observer
	ch      chan MetricsEvent
	dropped int64
	closed  atomic.Bool
	once    sync.Once
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		inner: inner,
		ch:    make(chan MetricsEvent, buffer),
	}
	go a.loop()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil || a.closed.Load() {
		return
	}
	select {
	case a.ch <- ev:
	default:
		atomic.AddInt64(&a.dropped, 1)
	}
}

func (a *AsyncObserver) Dropped() int64 {
	return atomic.LoadInt64(&a.dropped)
}

func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.ch)
	})
}

func (a *AsyncObserver) loop() {
	for ev := range a.ch {
		a.inner.RecordEvent(ev)
	}
}

// SamplingObserver forwards roughly rate*N of N events. Used for per-frame
// events which are far too frequent to record one by one.
type SamplingObserver struct {
	inner       Observer
	rate        float64
	sampleEvery uint64
	counter     uint64
}

func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	if rate > 1 {
		rate = 1
	}
	if rate < 0 {
		rate = 0
	}
	var every uint64
	switch rate {
	case 0:
		every = 0
	case 1:
		every = 1
	default:
		every = uint64(math.Round(1.0 / rate))
		if every == 0 {
			every = 1
		}
	}
	return &SamplingObserver{inner: inner, rate: rate, sampleEvery: every}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if s.rate == 0 {
		return
	}
	if s.sampleEvery <= 1 {
		s.inner.RecordEvent(ev)
		return
	}
	n := atomic.AddUint64(&s.counter, 1)
	if n%s.sampleEvery == 0 {
		s.inner.RecordEvent(ev)
	}
}

// SampleFrames samples only per-frame events at the given rate and passes
// everything else through untouched.
func SampleFrames(inner Observer, rate float64) Observer {
	return frameSampler{inner: inner, sampler: NewSamplingObserver(inner, rate)}
}

type frameSampler struct {
	inner   Observer
	sampler *SamplingObserver
}

func (f frameSampler) RecordEvent(ev MetricsEvent) {
	if ev.Name == EventFrameReceived {
		f.sampler.RecordEvent(ev)
		return
	}
	f.inner.RecordEvent(ev)
}
