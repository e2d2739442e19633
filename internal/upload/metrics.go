package upload

import "sync/atomic"

type MetricsSnapshot struct {
	Attempts  uint64
	Successes uint64
	Failures  uint64
	Retries   uint64
	Oversize  uint64
	BytesSent uint64
}

type Metrics struct {
	attempts  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
	retries   atomic.Uint64
	oversize  atomic.Uint64
	bytesSent atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Attempts:  m.attempts.Load(),
		Successes: m.successes.Load(),
		Failures:  m.failures.Load(),
		Retries:   m.retries.Load(),
		Oversize:  m.oversize.Load(),
		BytesSent: m.bytesSent.Load(),
	}
}
