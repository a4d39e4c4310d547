package provider

import (
	"sync"
	"time"
)

// StrategyMetrics accumulates per-strategy counters and a rolling
// average response time. All updates go through record/recordHealthCheck so
// callers never touch the fields directly, keeping the struct safe for
// concurrent use from ProviderContext.
type StrategyMetrics struct {
	mu sync.Mutex

	TotalOperations      int64
	SuccessfulOperations int64
	FailedOperations     int64
	AverageResponseMs    float64
	LastUsedTime         time.Time
	HealthCheckCount     int64
	LastHealthCheck      time.Time
}

// Snapshot is a point-in-time, safe-to-share copy of StrategyMetrics
// plus the derived SuccessRate.
type Snapshot struct {
	TotalOperations      int64
	SuccessfulOperations int64
	FailedOperations     int64
	AverageResponseMs    float64
	LastUsedTime         time.Time
	HealthCheckCount     int64
	LastHealthCheck      time.Time
	SuccessRate          float64
}

func (m *StrategyMetrics) record(success bool, elapsed time.Duration, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalOperations++
	if success {
		m.SuccessfulOperations++
	} else {
		m.FailedOperations++
	}
	ms := float64(elapsed.Microseconds()) / 1000.0
	m.AverageResponseMs += (ms - m.AverageResponseMs) / float64(m.TotalOperations)
	m.LastUsedTime = at
}

func (m *StrategyMetrics) recordHealthCheck(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HealthCheckCount++
	m.LastHealthCheck = at
}

func (m *StrategyMetrics) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	successRate := 0.0
	if m.TotalOperations > 0 {
		successRate = 100.0 * float64(m.SuccessfulOperations) / float64(m.TotalOperations)
	}
	return Snapshot{
		TotalOperations:      m.TotalOperations,
		SuccessfulOperations: m.SuccessfulOperations,
		FailedOperations:     m.FailedOperations,
		AverageResponseMs:    m.AverageResponseMs,
		LastUsedTime:         m.LastUsedTime,
		HealthCheckCount:     m.HealthCheckCount,
		LastHealthCheck:      m.LastHealthCheck,
		SuccessRate:          successRate,
	}
}
