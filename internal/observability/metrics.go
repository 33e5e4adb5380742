package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/core"
)

// SimCollector bundles Prometheus metrics for the simulation engine and the
// stats API, and provides helpers to wire them into HTTP handlers. It
// implements core.TickMetricsRecorder.
type SimCollector struct {
	gatherer prometheus.Gatherer

	TickDuration     prometheus.Histogram
	ActiveParticles  prometheus.Gauge
	EpochTransitions prometheus.Counter
	CurrentEpoch     *prometheus.GaugeVec
	NonFiniteEvents  prometheus.Counter
	ExpansionSkips   prometheus.Counter

	StructureVoids         prometheus.Gauge
	StructureFilaments     prometheus.Gauge
	StructureClusters      prometheus.Gauge
	StructureSuperclusters prometheus.Gauge

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	tick, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock duration of one physics tick.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	particlesGauge, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_particles",
		Help: "Number of active particles in the store.",
	}), "sim_active_particles")
	if err != nil {
		return nil, err
	}

	transitions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_epoch_transitions_total",
		Help: "Cumulative number of cosmological epoch transitions.",
	}), "sim_epoch_transitions_total")
	if err != nil {
		return nil, err
	}

	epochVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_current_epoch",
		Help: "Set to 1 for the current cosmological epoch, 0 for all others.",
	}, []string{"epoch"})
	epochVec, err = registerGaugeVec(reg, epochVec, "sim_current_epoch")
	if err != nil {
		return nil, err
	}

	nonFinite, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_nonfinite_events_total",
		Help: "Cumulative number of discarded non-finite forces and reset particle components.",
	}), "sim_nonfinite_events_total")
	if err != nil {
		return nil, err
	}

	expansionSkips, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_expansion_skips_total",
		Help: "Cumulative number of ticks whose expansion step was skipped as degenerate.",
	}), "sim_expansion_skips_total")
	if err != nil {
		return nil, err
	}

	voids, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_structure_voids",
		Help: "Voids found by the last structure detection pass.",
	}), "sim_structure_voids")
	if err != nil {
		return nil, err
	}
	filaments, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_structure_filaments",
		Help: "Filaments found by the last structure detection pass.",
	}), "sim_structure_filaments")
	if err != nil {
		return nil, err
	}
	clusters, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_structure_clusters",
		Help: "Clusters found by the last structure detection pass.",
	}), "sim_structure_clusters")
	if err != nil {
		return nil, err
	}
	superclusters, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_structure_superclusters",
		Help: "Superclusters found by the last structure detection pass.",
	}), "sim_structure_superclusters")
	if err != nil {
		return nil, err
	}

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_requests_total",
		Help: "Total number of handled stats API requests, labeled by handler, method, and status code.",
	}, []string{"handler", "method", "code"})
	httpRequests, err = registerCounterVec(reg, httpRequests, "stats_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stats_request_duration_seconds",
		Help:    "Stats API request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"handler", "method"})
	httpDurations, err = registerHistogramVec(reg, httpDurations, "stats_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:               gatherer,
		TickDuration:           tick,
		ActiveParticles:        particlesGauge,
		EpochTransitions:       transitions,
		CurrentEpoch:           epochVec,
		NonFiniteEvents:        nonFinite,
		ExpansionSkips:         expansionSkips,
		StructureVoids:         voids,
		StructureFilaments:     filaments,
		StructureClusters:      clusters,
		StructureSuperclusters: superclusters,
		HTTPRequests:           httpRequests,
		HTTPDurations:          httpDurations,
	}, nil
}

// ObserveTick records one tick's wall-clock duration.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// SetActiveParticles updates the active-particle gauge.
func (c *SimCollector) SetActiveParticles(n int) {
	if c == nil || c.ActiveParticles == nil {
		return
	}
	c.ActiveParticles.Set(float64(n))
}

// SetEpoch marks the current epoch in the epoch gauge vector.
func (c *SimCollector) SetEpoch(id string) {
	if c == nil || c.CurrentEpoch == nil {
		return
	}
	c.CurrentEpoch.Reset()
	c.CurrentEpoch.WithLabelValues(id).Set(1)
}

// IncEpochTransitions increments the epoch transition counter.
func (c *SimCollector) IncEpochTransitions() {
	if c == nil || c.EpochTransitions == nil {
		return
	}
	c.EpochTransitions.Inc()
}

// IncNonFiniteEvents adds n discarded-value events.
func (c *SimCollector) IncNonFiniteEvents(n int) {
	if c == nil || c.NonFiniteEvents == nil || n <= 0 {
		return
	}
	c.NonFiniteEvents.Add(float64(n))
}

// IncExpansionSkips increments the skipped-expansion counter.
func (c *SimCollector) IncExpansionSkips() {
	if c == nil || c.ExpansionSkips == nil {
		return
	}
	c.ExpansionSkips.Inc()
}

// SetStructureCounts publishes the structure gauges from a detection pass.
func (c *SimCollector) SetStructureCounts(stats core.DensityStats) {
	if c == nil {
		return
	}
	if c.StructureVoids != nil {
		c.StructureVoids.Set(float64(stats.Voids))
	}
	if c.StructureFilaments != nil {
		c.StructureFilaments.Set(float64(stats.Filaments))
	}
	if c.StructureClusters != nil {
		c.StructureClusters.Set(float64(stats.Clusters))
	}
	if c.StructureSuperclusters != nil {
		c.StructureSuperclusters.Set(float64(stats.Superclusters))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// statusRecorder captures the response code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and durations for a named stats API
// handler.
func (c *SimCollector) Middleware(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if c == nil {
			return
		}
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(handler, r.Method, strconv.Itoa(rec.status)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(handler, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
