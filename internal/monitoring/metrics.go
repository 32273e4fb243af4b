package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics is the process-wide Prometheus registry. Every gauge and
// counter here is themed to GPU orchestration rather than the generic
// task-queue metrics this package started from.
type Metrics struct {
	TasksSubmitted prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksCanceled  prometheus.Counter
	TaskDuration   prometheus.Histogram
	TasksRunning   prometheus.Gauge

	GPUsConfigured   prometheus.Gauge
	GPUsBusy         prometheus.Gauge
	SubTasksTotal    *prometheus.CounterVec
	WorkersReady     prometheus.Gauge
	WorkerRPCErrors  *prometheus.CounterVec

	ProgressSubscribers prometheus.Gauge

	HTTPRequests prometheus.CounterVec
	HTTPDuration prometheus.HistogramVec

	logger *zap.Logger
	server *http.Server
}

func NewMetrics(logger *zap.Logger) *Metrics {
	return &Metrics{
		TasksSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orch_tasks_submitted_total",
			Help: "Total number of generation tasks submitted",
		}),
		TasksCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orch_tasks_completed_total",
			Help: "Total number of tasks that finished with at least one successful image",
		}),
		TasksFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orch_tasks_failed_total",
			Help: "Total number of tasks that finished with zero successful images",
		}),
		TasksCanceled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orch_tasks_canceled_total",
			Help: "Total number of tasks canceled via POST /stop",
		}),
		TaskDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orch_task_duration_seconds",
			Help:    "Task wall-clock duration from submission to finalize, in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		TasksRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orch_tasks_running",
			Help: "Number of tasks currently in the running state",
		}),

		GPUsConfigured: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orch_gpus_configured",
			Help: "Number of GPU slots configured at startup",
		}),
		GPUsBusy: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orch_gpus_busy",
			Help: "Number of GPU slots currently marked busy",
		}),
		SubTasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orch_subtasks_total",
			Help: "Total number of sub-tasks dispatched to workers, by outcome",
		}, []string{"outcome"}),
		WorkersReady: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orch_workers_ready",
			Help: "Number of worker processes that have passed their health probe",
		}),
		WorkerRPCErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orch_worker_rpc_errors_total",
			Help: "Total number of RPC transport errors observed, by classification",
		}, []string{"kind"}),

		ProgressSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orch_progress_subscribers",
			Help: "Number of WebSocket clients currently subscribed to the progress bus",
		}),

		HTTPRequests: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orch_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPDuration: *promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		logger: logger,
	}
}

func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	m.logger.Info("starting metrics server", zap.String("addr", addr))
	return m.server.ListenAndServe()
}

func (m *Metrics) Stop(ctx context.Context) error {
	if m.server != nil {
		m.logger.Info("stopping metrics server")
		return m.server.Shutdown(ctx)
	}
	return nil
}

func (m *Metrics) TaskSubmitted() {
	m.TasksSubmitted.Inc()
	m.TasksRunning.Inc()
}

func (m *Metrics) TaskCompleted(duration time.Duration) {
	m.TasksCompleted.Inc()
	m.TasksRunning.Dec()
	m.TaskDuration.Observe(duration.Seconds())
}

func (m *Metrics) TaskFailed(duration time.Duration) {
	m.TasksFailed.Inc()
	m.TasksRunning.Dec()
	m.TaskDuration.Observe(duration.Seconds())
}

func (m *Metrics) TaskCanceled() {
	m.TasksCanceled.Inc()
	m.TasksRunning.Dec()
}

func (m *Metrics) SetGPUsConfigured(count float64) {
	m.GPUsConfigured.Set(count)
}

func (m *Metrics) SetGPUsBusy(count float64) {
	m.GPUsBusy.Set(count)
}

func (m *Metrics) SubTaskCompleted(outcome string) {
	m.SubTasksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetWorkersReady(count float64) {
	m.WorkersReady.Set(count)
}

func (m *Metrics) WorkerRPCError(kind string) {
	m.WorkerRPCErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetProgressSubscribers(count float64) {
	m.ProgressSubscribers.Set(count)
}

func (m *Metrics) HTTPRequest(method, endpoint, status string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// HealthChecker aggregates named readiness probes behind GET /health.
type HealthChecker struct {
	checks map[string]HealthCheck
	logger *zap.Logger
}

type HealthCheck interface {
	HealthCheck(ctx context.Context) error
}

type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
		logger: logger,
	}
}

func (h *HealthChecker) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status: "healthy",
		Checks: make(map[string]string),
	}

	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			status.Checks[name] = "unhealthy: " + err.Error()
			status.Status = "unhealthy"
			h.logger.Warn("health check failed",
				zap.String("check", name),
				zap.Error(err))
		} else {
			status.Checks[name] = "healthy"
		}
	}

	return status
}
