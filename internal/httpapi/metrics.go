package httpapi

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// idSegmentRE normalizes path segments that are ids (uuids, numeric PR
// numbers, sha-like strings) to {id}, the same bucketing job the teacher's
// server/metrics.go does by hand with a map of compiled regexes per route;
// here the normalized path is just a label, and client_golang owns the
// counting/bucketing.
var idSegmentRE = regexp.MustCompile(`^[0-9a-fA-F-]{6,}$|^\d+$`)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prreview_http_requests_total",
		Help: "HTTP requests handled, by method, normalized route, and status code.",
	}, []string{"method", "route", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prreview_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by method and normalized route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter does not expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := normalizeRoute(r.URL.Path)
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

// normalizeRoute replaces id-shaped path segments with {id} so the
// cardinality of the route label stays bounded regardless of how many
// distinct workflow/repository ids are requested.
func normalizeRoute(path string) string {
	segments := splitPath(path)
	for i, seg := range segments {
		if idSegmentRE.MatchString(seg) {
			segments[i] = "{id}"
		}
	}
	return joinPath(segments)
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	return segments
}

func joinPath(segments []string) string {
	out := ""
	for _, seg := range segments {
		out += "/" + seg
	}
	if out == "" {
		return "/"
	}
	return out
}
