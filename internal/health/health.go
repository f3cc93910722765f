// Package health provides system health monitoring and status reporting.
package health

import (
	"github.com/vietddude/resilience/internal/cache"
	"github.com/vietddude/resilience/internal/infra/remote"
	"github.com/vietddude/resilience/internal/resilience/breaker"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// StoreHealth contains the reachability of a local store.
type StoreHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                `json:"system_status"`
	Breakers     map[string]breaker.Snapshot `json:"breakers"`
	Caches       map[string]cache.Stats      `json:"caches"`
	Stores       map[string]StoreHealth      `json:"stores"`
	Sources      map[string]remote.Stats     `json:"sources"`
}

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
