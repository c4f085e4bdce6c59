package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	helpdeskRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	helpdeskRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helpdesk_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	helpdeskTicketsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_tickets_created_total",
		Help: "Total tickets created by category and priority.",
	}, []string{"category", "priority"})

	helpdeskCaptchaValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_captcha_validations_total",
		Help: "Total captcha validations by result.",
	}, []string{"result"})

	helpdeskSubmissionsThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_submissions_throttled_total",
		Help: "Total ticket submissions rejected by the rate limiter.",
	})

	helpdeskWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	helpdeskHealthProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_health_probes_total",
		Help: "Total dependency health probes by dependency and result.",
	}, []string{"dependency", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		helpdeskRequestsTotal.WithLabelValues(method, path, status).Inc()
		helpdeskRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTicketCreated records a successful ticket creation.
func RecordTicketCreated(category, priority string) {
	helpdeskTicketsCreatedTotal.WithLabelValues(category, priority).Inc()
}

// RecordCaptchaValidation records a captcha validation result.
func RecordCaptchaValidation(success bool) {
	if success {
		helpdeskCaptchaValidationsTotal.WithLabelValues("success").Inc()
	} else {
		helpdeskCaptchaValidationsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordSubmissionThrottled records a submission rejected by the rate limiter.
func RecordSubmissionThrottled() {
	helpdeskSubmissionsThrottledTotal.Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		helpdeskWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		helpdeskWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordHealthProbe records a dependency health probe result.
func RecordHealthProbe(dependency string, success bool) {
	if success {
		helpdeskHealthProbesTotal.WithLabelValues(dependency, "success").Inc()
	} else {
		helpdeskHealthProbesTotal.WithLabelValues(dependency, "failure").Inc()
	}
}
