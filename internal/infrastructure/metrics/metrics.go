// Package metrics exposes engine counters on a dedicated Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/doc-approval/internal/application/port"
)

const namespace = "docapproval"

// Recorder implements port.Metrics
type Recorder struct {
	registry *prometheus.Registry

	permissionChecks   *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	versionConflicts   prometheus.Counter
	sideEffectFailures *prometheus.CounterVec
	notificationsSent  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates a Recorder with its own registry, including Go runtime and
// process collectors
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		permissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_checks_total",
			Help:      "Permission checks by requested type and result.",
		}, []string{"type", "result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_decisions_total",
			Help:      "Committed approver decisions by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Approval instance status changes, including creation.",
		}, []string{"status"}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_version_conflicts_total",
			Help:      "Optimistic concurrency conflicts seen while recording decisions.",
		}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Event subscriber failures.",
		}, []string{"subscriber"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications delivered by template.",
		}, []string{"template"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.permissionChecks,
		r.decisions,
		r.transitions,
		r.versionConflicts,
		r.sideEffectFailures,
		r.notificationsSent,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) PermissionChecked(t string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	r.permissionChecks.WithLabelValues(t, result).Inc()
}

func (r *Recorder) DecisionRecorded(outcome string) {
	r.decisions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) InstanceTransitioned(status string) {
	r.transitions.WithLabelValues(status).Inc()
}

func (r *Recorder) VersionConflict() {
	r.versionConflicts.Inc()
}

func (r *Recorder) NotificationSent(templateID string) {
	r.notificationsSent.WithLabelValues(templateID).Inc()
}

// SideEffectFailed counts a failed event subscriber
func (r *Recorder) SideEffectFailed(subscriber string) {
	r.sideEffectFailures.WithLabelValues(subscriber).Inc()
}

// ObserveHTTP records one served request. path should be the route
// template, not the raw URL, to keep label cardinality bounded.
func (r *Recorder) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	r.httpRequests.WithLabelValues(method, path, code).Inc()
	r.httpDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

var _ port.Metrics = (*Recorder)(nil)
