// Package health provides API health monitoring and status reporting over
// HTTP and the standard gRPC health protocol.
package health

import (
	"time"

	"github.com/vietddude/oanda/internal/infra/oanda/transport"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

var severity = map[SystemStatus]int{
	StatusHealthy:  0,
	StatusDegraded: 1,
	StatusCritical: 2,
}

// worst returns the more severe of a and b.
func worst(a, b SystemStatus) SystemStatus {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// ComponentHealth is the status of one checked component.
type ComponentHealth struct {
	Status  SystemStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// LimiterHealth mirrors the token bucket counters.
type LimiterHealth struct {
	Capacity   float64       `json:"capacity"`
	Tokens     float64       `json:"tokens"`
	RefillRate float64       `json:"refill_rate"`
	Acquired   uint64        `json:"acquired"`
	Waited     uint64        `json:"waited"`
	TotalWait  time.Duration `json:"total_wait"`
}

// SyncHealth reports the candle syncer.
type SyncHealth struct {
	ComponentHealth
	LastSync time.Time `json:"last_sync,omitempty"`
}

// Report contains the full health report.
type Report struct {
	Status    SystemStatus            `json:"status"`
	CheckedAt time.Time               `json:"checked_at"`
	API       ComponentHealth         `json:"api"`
	Transport *transport.HealthStatus `json:"transport,omitempty"`
	Limiter   LimiterHealth           `json:"rate_limiter"`
	Sync      *SyncHealth             `json:"sync,omitempty"`
}
