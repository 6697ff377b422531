package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/qbank-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface and the generation pipeline.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	jobsSubmitted      *prometheus.CounterVec
	jobsFinished       *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	questionsGenerated prometheus.Counter
	itemsDiscarded     prometheus.Counter
	jobsReaped         prometheus.Counter
	materialsProcessed prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	jobsSubmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_submitted_total",
		Help: "Generation jobs accepted, by dispatch mode",
	}, []string{"dispatch_mode"})

	jobsFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_finished_total",
		Help: "Generation jobs that reached a terminal status",
	}, []string{"status"})

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	questionsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "generation_questions_total",
		Help: "Questions persisted by completed jobs",
	})

	itemsDiscarded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "generation_items_discarded_total",
		Help: "Model items dropped by validation or quota caps",
	})

	jobsReaped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "generation_jobs_reaped_total",
		Help: "Stalled jobs failed by the reaper",
	})

	materialsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "materials_processed_total",
		Help: "Course materials converted into sections",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, jobsSubmitted, jobsFinished, stageDuration, questionsGenerated, itemsDiscarded, jobsReaped, materialsProcessed, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		jobsSubmitted:      jobsSubmitted,
		jobsFinished:       jobsFinished,
		stageDuration:      stageDuration,
		questionsGenerated: questionsGenerated,
		itemsDiscarded:     itemsDiscarded,
		jobsReaped:         jobsReaped,
		materialsProcessed: materialsProcessed,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordJobSubmitted counts an accepted job.
func (m *MetricsService) RecordJobSubmitted(mode models.DispatchMode) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(string(mode)).Inc()
}

// RecordJobFinished counts a terminal transition and the questions it produced.
func (m *MetricsService) RecordJobFinished(status models.JobStatus, generated, discarded int) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(string(status)).Inc()
	if generated > 0 {
		m.questionsGenerated.Add(float64(generated))
	}
	if discarded > 0 {
		m.itemsDiscarded.Add(float64(discarded))
	}
}

// ObserveStage records how long a pipeline stage took.
func (m *MetricsService) ObserveStage(stage models.ProcessingStage, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
}

// RecordReaped counts jobs failed by the reaper.
func (m *MetricsService) RecordReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsReaped.Add(float64(n))
}

// RecordMaterialProcessed counts a material converted into sections.
func (m *MetricsService) RecordMaterialProcessed() {
	if m == nil {
		return
	}
	m.materialsProcessed.Inc()
}
