// Package metrics exposes the prometheus collectors of the client and the
// server that publishes them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the counters and gauges updated by the instance
// factory, the SDK loader, the authorization cache and the lifecycle manager.
// A nil *Collectors is valid and records nothing.
type Collectors struct {
	InstanceBuilds     *prometheus.CounterVec
	SDKLoads           *prometheus.CounterVec
	AuthorizationCache *prometheus.CounterVec
	LifecycleStatus    *prometheus.GaugeVec
}

func NewCollectors(namespace string, reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		InstanceBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_builds_total",
			Help:      "Encryption instance builds by path and result.",
		}, []string{"path", "result"}),
		SDKLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sdk_loads_total",
			Help:      "Relayer SDK load attempts by source and result.",
		}, []string{"source", "result"}),
		AuthorizationCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_cache_total",
			Help:      "Decryption authorization cache events.",
		}, []string{"event"}),
		LifecycleStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_status",
			Help:      "1 for the current instance lifecycle status, 0 otherwise.",
		}, []string{"status"}),
	}
}

func (c *Collectors) InstanceBuild(path, result string) {
	if c == nil {
		return
	}
	c.InstanceBuilds.WithLabelValues(path, result).Inc()
}

func (c *Collectors) SDKLoad(source, result string) {
	if c == nil {
		return
	}
	c.SDKLoads.WithLabelValues(source, result).Inc()
}

func (c *Collectors) AuthorizationEvent(event string) {
	if c == nil {
		return
	}
	c.AuthorizationCache.WithLabelValues(event).Inc()
}

// SetLifecycleStatus marks status as the only active lifecycle status.
func (c *Collectors) SetLifecycleStatus(status string, all []string) {
	if c == nil {
		return
	}
	for _, s := range all {
		if s == status {
			c.LifecycleStatus.WithLabelValues(s).Set(1)
		} else {
			c.LifecycleStatus.WithLabelValues(s).Set(0)
		}
	}
}

type MetricsServer struct {
	Collectors *Collectors

	registry *prometheus.Registry
	srv      *http.Server
}

func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		Collectors: NewCollectors(namespace, registry),
		registry:   registry,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
