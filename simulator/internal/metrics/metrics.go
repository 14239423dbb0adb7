package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var tickBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Recorder 发布循环的指标
type Recorder struct {
	published    *prometheus.CounterVec
	anomalies    *prometheus.CounterVec
	failures     *prometheus.CounterVec
	tickDuration prometheus.Histogram
	connected    prometheus.Gauge
}

// NewRecorder 创建并注册指标
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intellica",
			Subsystem: "simulator",
			Name:      "samples_published_total",
			Help:      "Samples handed to the broker transport.",
		}, []string{"machine_type"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intellica",
			Subsystem: "simulator",
			Name:      "anomalies_injected_total",
			Help:      "Published samples that carried an injected anomaly.",
		}, []string{"machine_type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intellica",
			Subsystem: "simulator",
			Name:      "publish_failures_total",
			Help:      "Publish calls that returned an error.",
		}, []string{"machine_type"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intellica",
			Subsystem: "simulator",
			Name:      "tick_duration_seconds",
			Help:      "Time spent generating and publishing one sample per machine.",
			Buckets:   tickBuckets,
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "intellica",
			Subsystem: "simulator",
			Name:      "broker_connected",
			Help:      "1 while the broker connection is up.",
		}),
	}

	reg.MustRegister(r.published, r.anomalies, r.failures, r.tickDuration, r.connected)
	return r
}

// SamplePublished nil Recorder 时所有方法均为空操作
func (r *Recorder) SamplePublished(machineType string, anomalous bool) {
	if r == nil {
		return
	}
	r.published.WithLabelValues(machineType).Inc()
	if anomalous {
		r.anomalies.WithLabelValues(machineType).Inc()
	}
}

func (r *Recorder) PublishFailed(machineType string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(machineType).Inc()
}

func (r *Recorder) ObserveTick(d time.Duration) {
	if r == nil {
		return
	}
	r.tickDuration.Observe(d.Seconds())
}

func (r *Recorder) SetConnected(up bool) {
	if r == nil {
		return
	}
	if up {
		r.connected.Set(1)
	} else {
		r.connected.Set(0)
	}
}

// Server 暴露 /metrics
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, g prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start 在后台监听；监听失败只记录日志，不影响模拟
func (s *Server) Start() {
	s.logger.Info("Starting metrics server", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
