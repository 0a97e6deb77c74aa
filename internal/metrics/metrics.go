package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gradebook server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	StudentsCreatedTotal prometheus.Counter
	StudentsDeletedTotal prometheus.Counter

	GradesCreatedTotal  *prometheus.CounterVec
	GradesDeletedTotal  *prometheus.CounterVec
	GradesRejectedTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradebook_http_requests_total",
			Help: "Total number of HTTP requests processed by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gradebook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	studentsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradebook_students_created_total",
		Help: "Total number of students created",
	})

	studentsDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradebook_students_deleted_total",
		Help: "Total number of students deleted",
	})

	gradesCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradebook_grades_created_total",
			Help: "Total number of grades recorded by subject",
		},
		[]string{"grade_type"},
	)

	gradesDeleted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradebook_grades_deleted_total",
			Help: "Total number of grades deleted by subject",
		},
		[]string{"grade_type"},
	)

	gradesRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradebook_grades_rejected_total",
			Help: "Grade requests answered with not found, by underlying reason",
		},
		[]string{"reason"},
	)

	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		studentsCreated,
		studentsDeleted,
		gradesCreated,
		gradesDeleted,
		gradesRejected,
	)

	return &Metrics{
		registry:             registry,
		HTTPRequestsTotal:    httpRequestsTotal,
		HTTPRequestDuration:  httpRequestDuration,
		StudentsCreatedTotal: studentsCreated,
		StudentsDeletedTotal: studentsDeleted,
		GradesCreatedTotal:   gradesCreated,
		GradesDeletedTotal:   gradesDeleted,
		GradesRejectedTotal:  gradesRejected,
	}
}

// GetRegistry returns the Prometheus registry for this metrics instance.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one finished HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordStudentCreated() {
	if m == nil {
		return
	}
	m.StudentsCreatedTotal.Inc()
}

func (m *Metrics) RecordStudentDeleted() {
	if m == nil {
		return
	}
	m.StudentsDeletedTotal.Inc()
}

func (m *Metrics) RecordGradeCreated(gradeType string) {
	if m == nil {
		return
	}
	m.GradesCreatedTotal.WithLabelValues(gradeType).Inc()
}

func (m *Metrics) RecordGradeDeleted(gradeType string) {
	if m == nil {
		return
	}
	m.GradesDeletedTotal.WithLabelValues(gradeType).Inc()
}

// RecordGradeRejected counts a grade request that was answered with the
// generic not-found error. reason is one of "student", "value",
// "grade_type" or "grade".
func (m *Metrics) RecordGradeRejected(reason string) {
	if m == nil {
		return
	}
	m.GradesRejectedTotal.WithLabelValues(reason).Inc()
}
