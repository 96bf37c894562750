// Package monitoring holds the Prometheus collectors the server exports on
// /metrics.
//
// The collectors live on a Metrics value with its own registry instead of the
// global default one, so tests can build as many as they like without
// "duplicate metrics collector registration" panics. Every method is safe on
// a nil *Metrics, which is what services get in unit tests.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login failure reasons used as the "reason" label.
const (
	ReasonUnknownUser   = "unknown_user"
	ReasonWrongPassword = "wrong_password"
	ReasonExternalOnly  = "external_account"
)

type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	loginSuccess    prometheus.Counter
	loginFailure    *prometheus.CounterVec
	registrations   prometheus.Counter
	articlesPosted  prometheus.Counter
	commentsAdded   prometheus.Counter
	followChanges   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "login_success_total",
			Help: "Total successful login attempts.",
		}),
		loginFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "login_failure_total",
			Help: "Total failed login attempts.",
		}, []string{"reason"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "register_success_total",
			Help: "Total successful registrations.",
		}),
		articlesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articles_posted_total",
			Help: "Total articles posted.",
		}),
		commentsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "comments_added_total",
			Help: "Total comments appended to articles.",
		}),
		followChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "follow_changes_total",
			Help: "Total follow and unfollow operations.",
		}, []string{"action"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.loginSuccess,
		m.loginFailure,
		m.registrations,
		m.articlesPosted,
		m.commentsAdded,
		m.followChanges,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request. route must be the route pattern
// (e.g. /articles/{id}), never the raw path, or every article id becomes its
// own time series.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) LoginSucceeded() {
	if m != nil {
		m.loginSuccess.Inc()
	}
}

func (m *Metrics) LoginFailed(reason string) {
	if m != nil {
		m.loginFailure.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) UserRegistered() {
	if m != nil {
		m.registrations.Inc()
	}
}

func (m *Metrics) ArticlePosted() {
	if m != nil {
		m.articlesPosted.Inc()
	}
}

func (m *Metrics) CommentAdded() {
	if m != nil {
		m.commentsAdded.Inc()
	}
}

// FollowChanged counts a follow ("follow") or unfollow ("unfollow").
func (m *Metrics) FollowChanged(action string) {
	if m != nil {
		m.followChanges.WithLabelValues(action).Inc()
	}
}
