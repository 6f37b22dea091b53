// Package metrics records orchestrator outcomes and latencies.
package metrics

import "time"

// Recorder is implemented by the prometheus backend and by NoopRecorder.
// Labels are "phase" and "outcome".
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
