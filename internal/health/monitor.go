package health

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/cache"
	"github.com/vietddude/resilience/internal/infra/remote"
	"github.com/vietddude/resilience/internal/infra/storage"
	"github.com/vietddude/resilience/internal/resilience/breaker"
)

// checkInterval bounds how often stores are pinged.
const checkInterval = 10 * time.Second

// BreakerSource exposes a breaker's state.
type BreakerSource interface {
	Name() string
	Snapshot() breaker.Snapshot
}

// CacheSource exposes cache counters.
type CacheSource interface {
	Name() string
	Stats() cache.Stats
}

// RemoteSource exposes remote request counters.
type RemoteSource interface {
	Name() string
	Stats() remote.Stats
}

// Monitor aggregates health status from the resilience components.
type Monitor struct {
	breakers []BreakerSource
	caches   []CacheSource
	stores   map[string]storage.HealthChecker
	sources  []RemoteSource
	clock    clock.PassiveClock

	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(clk clock.PassiveClock) *Monitor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Monitor{
		stores: make(map[string]storage.HealthChecker),
		clock:  clk,
	}
}

func (m *Monitor) AddBreaker(b BreakerSource) { m.breakers = append(m.breakers, b) }
func (m *Monitor) AddCache(c CacheSource)     { m.caches = append(m.caches, c) }
func (m *Monitor) AddSource(s RemoteSource)   { m.sources = append(m.sources, s) }

func (m *Monitor) AddStore(name string, hc storage.HealthChecker) {
	m.stores[name] = hc
}

// CheckHealth builds a report. Results are reused for checkInterval to
// avoid pinging stores on every probe.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.clock.Since(m.lastCheck) < checkInterval {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Breakers:     make(map[string]breaker.Snapshot),
		Caches:       make(map[string]cache.Stats),
		Stores:       make(map[string]StoreHealth),
		Sources:      make(map[string]remote.Stats),
	}

	// 1. Breakers: an open circuit means reads are served from fallbacks
	openBreakers := 0
	for _, b := range m.breakers {
		snap := b.Snapshot()
		report.Breakers[b.Name()] = snap
		if snap.State != breaker.StateClosed.String() {
			report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
		}
		if snap.State == breaker.StateOpen.String() {
			openBreakers++
		}
	}

	// 2. Stores
	unhealthyStores := 0
	for name, hc := range m.stores {
		sh := StoreHealth{Name: name, Status: StatusHealthy}
		if err := hc.Health(ctx); err != nil {
			sh.Status = StatusDegraded
			sh.Error = err.Error()
			unhealthyStores++
			report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
		}
		report.Stores[name] = sh
	}

	// 3. Counters
	for _, c := range m.caches {
		report.Caches[c.Name()] = c.Stats()
	}
	for _, s := range m.sources {
		report.Sources[s.Name()] = s.Stats()
	}

	// Remote cut off and no durable fallback left
	if openBreakers > 0 && unhealthyStores > 0 {
		report.SystemStatus = StatusCritical
	}

	m.lastCheck = m.clock.Now()
	m.lastReport = &report
	return report
}
