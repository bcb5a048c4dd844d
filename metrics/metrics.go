// Package metrics wraps prometheus behind the small counter-registry surface
// the rest of the service uses.
package metrics

import (
	"fmt"
	"net/http"
	"regexp"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu        sync.Mutex
	registry  *prometheus.Registry
	namespace string
	counters  map[string]prometheus.Counter
)

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Init creates the process-wide registry and returns the HTTP handler that
// serves it. It must be called exactly once before any counter is used;
// tests pair it with Deinit.
func Init(ns string) (http.Handler, error) {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return nil, fmt.Errorf("metrics already initialized")
	}
	registry = prometheus.NewRegistry()
	namespace = sanitize(ns)
	counters = make(map[string]prometheus.Counter)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// Deinit discards the registry so a subsequent Init starts fresh.
func Deinit() {
	mu.Lock()
	defer mu.Unlock()

	registry = nil
	counters = nil
}

// MetricsRegistry hands out counters under a fixed subsystem prefix.
type MetricsRegistry struct {
	subsystem string
}

func NewMetricsRegistry(subsystem string) *MetricsRegistry {
	return &MetricsRegistry{subsystem: sanitize(subsystem)}
}

// Counter returns the counter with the given name, creating and registering
// it on first use.
func (m *MetricsRegistry) Counter(name string) prometheus.Counter {
	mu.Lock()
	defer mu.Unlock()

	full := namespace + "_" + m.subsystem + "_" + sanitize(name)
	if counters != nil {
		if c, ok := counters[full]; ok {
			return c
		}
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: full,
		Help: fmt.Sprintf("Total number of %s %s events.", m.subsystem, name),
	})
	if registry != nil {
		registry.MustRegister(c)
		counters[full] = c
	}
	return c
}

func sanitize(s string) string {
	return invalidMetricChars.ReplaceAllString(s, "_")
}
