package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultPort       = 2112
	metricsURL        = "/metrics"
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

var ErrWrongPortSpecified = errors.New("port must be between 1 and 65535")

// Config contains telemetry configuration.
type Config struct {
	Port int `yaml:"port"` // Port of the prometheus endpoint, 2112 when zero.
}

// Measurements collects measurements for prometheus.
// Each Measurements has its own registry so many can live in a single process.
type Measurements struct {
	mux        sync.RWMutex
	registry   *prometheus.Registry
	factory    promauto.Factory
	histograms map[string]prometheus.Observer
	gauges     map[string]prometheus.Gauge
}

// NewMeasurements creates empty Measurements.
func NewMeasurements() *Measurements {
	reg := prometheus.NewRegistry()
	return &Measurements{
		registry:   reg,
		factory:    promauto.With(reg),
		histograms: make(map[string]prometheus.Observer),
		gauges:     make(map[string]prometheus.Gauge),
	}
}

// CreateUpdateObservableHistogram creates histogram if it does not exist yet.
func (m *Measurements) CreateUpdateObservableHistogram(name, description string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.histograms[name]; ok {
		return
	}
	m.histograms[name] = m.factory.NewHistogram(prometheus.HistogramOpts{
		Name: name,
		Help: description,
	})
}

// RecordHistogramTime records duration in microseconds if histogram with given name exists.
func (m *Measurements) RecordHistogramTime(name string, t time.Duration) bool {
	return m.RecordHistogramValue(name, float64(t.Microseconds()))
}

// RecordHistogramValue records histogram value if histogram with given name exists.
func (m *Measurements) RecordHistogramValue(name string, f float64) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.histograms[name]; ok {
		v.Observe(f)
		return true
	}
	return false
}

// CreateUpdateObservableGauge creates gauge if it does not exist yet.
func (m *Measurements) CreateUpdateObservableGauge(name, description string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.gauges[name]; ok {
		return
	}
	m.gauges[name] = m.factory.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: description,
	})
}

// SetGauge sets the gauge to the value if gauge with given name exists.
func (m *Measurements) SetGauge(name string, f float64) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.gauges[name]; ok {
		v.Set(f)
		return true
	}
	return false
}

// IncrementGauge increments the gauge if gauge with given name exists.
func (m *Measurements) IncrementGauge(name string) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if v, ok := m.gauges[name]; ok {
		v.Inc()
		return true
	}
	return false
}

// Handler returns http handler exposing collected metrics.
func (m *Measurements) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Run starts server with prometheus telemetry endpoint.
// Returns Measurements if successfully started, the server is stopped when ctx is done.
// When the server fails to listen cancel is called.
func Run(ctx context.Context, cancel context.CancelFunc, cfg Config) (*Measurements, error) {
	port := cfg.Port
	if port > 65535 || port < 0 {
		return nil, errors.Join(ErrWrongPortSpecified, fmt.Errorf("received %d", port))
	}
	if port == 0 {
		port = defaultPort
	}

	m := NewMeasurements()
	mux := http.NewServeMux()
	mux.Handle(metricsURL, m.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel()
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		srv.Shutdown(sctx)
	}()

	return m, nil
}
