package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunCollector bundles the Prometheus metrics of a running simulation and
// serves them over HTTP when a listen address is configured.
type RunCollector struct {
	gatherer prometheus.Gatherer

	Timesteps prometheus.Gauge
	CellCount prometheus.Gauge
	Energy    prometheus.Gauge
	DecayDB   prometheus.Gauge
	Speed     prometheus.Gauge
}

// NewRunCollector registers the run metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &RunCollector{
		gatherer: gatherer,
		Timesteps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fdtd_timesteps",
			Help: "Current cumulative timestep count of the engine.",
		}),
		CellCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fdtd_cells",
			Help: "Total number of cells in the discretized operator.",
		}),
		Energy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fdtd_field_energy",
			Help: "Latest total field energy estimate.",
		}),
		DecayDB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fdtd_energy_decay_db",
			Help: "Energy decay in dB relative to the running maximum.",
		}),
		Speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fdtd_speed_mcells_per_second",
			Help: "Instantaneous throughput in megacells per second.",
		}),
	}
	for _, m := range []prometheus.Collector{c.Timesteps, c.CellCount, c.Energy, c.DecayDB, c.Speed} {
		if err := reg.Register(m); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("observability: %w", err)
		}
	}
	return c, nil
}

// Handler returns the /metrics HTTP handler for this collector's
// gatherer.
func (c *RunCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes the metrics endpoint on addr in the background. Serving
// is best effort; a dead listener never stops a simulation.
func (c *RunCollector) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
