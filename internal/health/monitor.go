// Package health tracks the remote provider's recent behavior per operation.
// Declines are normal payment outcomes; only transport failures count against
// the provider.
package health

import (
	"sync"
	"time"

	"github.com/orcaya/payplace-go/internal/config"
)

// Status represents the observed health of a provider operation.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailing  Status = "failing"
)

// Outcome classifies a single provider call.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeDeclined       Outcome = "declined"
	OutcomeTransportError Outcome = "transport_error"
)

// OperationHealth contains the current health information for one provider
// operation (open, preauthorization, capture, reversal, refund).
type OperationHealth struct {
	Operation     string    `json:"operation"`
	ReachedRate   float64   `json:"reached_rate"`
	Status        Status    `json:"status"`
	TotalRecent   int       `json:"total_recent"`
	OKCount       int       `json:"ok_count"`
	DeclinedCount int       `json:"declined_count"`
	ErrorCount    int       `json:"error_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

type sample struct {
	outcome   Outcome
	timestamp time.Time
}

// Monitor tracks provider outcomes using a sliding window per operation.
type Monitor struct {
	mu             sync.RWMutex
	windows        map[string][]sample
	windowSize     int
	windowDuration time.Duration
}

// NewMonitor creates a monitor with the default window configuration.
func NewMonitor() *Monitor {
	return NewMonitorWithConfig(config.HealthWindowSize,
		time.Duration(config.HealthWindowDurationMinutes)*time.Minute)
}

// NewMonitorWithConfig creates a monitor with custom window settings for
// testing.
func NewMonitorWithConfig(windowSize int, windowDuration time.Duration) *Monitor {
	return &Monitor{
		windows:        make(map[string][]sample),
		windowSize:     windowSize,
		windowDuration: windowDuration,
	}
}

// RecordOutcome records a provider call outcome for an operation.
func (m *Monitor) RecordOutcome(operation string, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windows[operation] = append(m.windows[operation], sample{
		outcome:   outcome,
		timestamp: time.Now(),
	})
	m.pruneWindow(operation)
}

// GetHealth returns the current health information for an operation.
func (m *Monitor) GetHealth(operation string) OperationHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	window := m.activeWindow(operation)
	if len(window) == 0 {
		return OperationHealth{
			Operation:   operation,
			ReachedRate: 1.0, // no data defaults to healthy
			Status:      StatusHealthy,
			LastUpdated: time.Now(),
		}
	}

	var ok, declined, errs int
	for _, s := range window {
		switch s.outcome {
		case OutcomeOK:
			ok++
		case OutcomeDeclined:
			declined++
		default:
			errs++
		}
	}

	total := len(window)
	// Declines still reached the provider, so they count as contact.
	rate := float64(ok+declined) / float64(total)

	status := StatusHealthy
	if rate < config.FailingThreshold {
		status = StatusFailing
	} else if rate < config.DegradedThreshold {
		status = StatusDegraded
	}

	return OperationHealth{
		Operation:     operation,
		ReachedRate:   rate,
		Status:        status,
		TotalRecent:   total,
		OKCount:       ok,
		DeclinedCount: declined,
		ErrorCount:    errs,
		LastUpdated:   time.Now(),
	}
}

// GetAllHealth returns health information for all tracked operations.
func (m *Monitor) GetAllHealth() []OperationHealth {
	m.mu.RLock()
	operations := make([]string, 0, len(m.windows))
	for name := range m.windows {
		operations = append(operations, name)
	}
	m.mu.RUnlock()

	healths := make([]OperationHealth, 0, len(operations))
	for _, name := range operations {
		healths = append(healths, m.GetHealth(name))
	}
	return healths
}

// activeWindow returns samples within the time window, already under read
// lock.
func (m *Monitor) activeWindow(operation string) []sample {
	window := m.windows[operation]
	if len(window) == 0 {
		return nil
	}

	cutoff := time.Now().Add(-m.windowDuration)
	active := make([]sample, 0, len(window))
	for _, s := range window {
		if s.timestamp.After(cutoff) {
			active = append(active, s)
		}
	}

	if len(active) > m.windowSize {
		active = active[len(active)-m.windowSize:]
	}
	return active
}

// pruneWindow removes expired samples, called under write lock.
func (m *Monitor) pruneWindow(operation string) {
	cutoff := time.Now().Add(-m.windowDuration)
	window := m.windows[operation]

	pruned := make([]sample, 0, len(window))
	for _, s := range window {
		if s.timestamp.After(cutoff) {
			pruned = append(pruned, s)
		}
	}
	if len(pruned) > m.windowSize {
		pruned = pruned[len(pruned)-m.windowSize:]
	}
	m.windows[operation] = pruned
}
