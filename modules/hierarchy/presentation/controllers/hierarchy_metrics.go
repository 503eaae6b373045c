package controllers

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

var (
	hierarchyAPIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total number of hierarchy API requests broken down by endpoint and result.",
	}, []string{"axis", "endpoint", "result"})

	hierarchyAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hierarchy",
		Subsystem: "api",
		Name:      "latency_seconds",
		Help:      "Latency distribution for hierarchy API requests.",
		Buckets: []float64{
			0.005, 0.01, 0.05,
			0.1, 0.5, 1,
			2, 5, 10, 30,
		},
	}, []string{"axis", "endpoint", "result"})
)

type statusRecordingResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecordingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecordingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecordingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecordingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func resultClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	}
	return "2xx"
}

// axisLabel keeps the axis label bounded to configured axes.
func (c *HierarchyController) axisLabel(r *http.Request) string {
	axis, err := domain.ParseAxis(mux.Vars(r)["axis"])
	if err != nil || c.services == nil {
		return "other"
	}
	if _, ok := c.services.Get(axis); !ok {
		return "other"
	}
	return axis.String()
}

// instrumentAPI labels by a fixed endpoint name, never the raw path, so ids
// don't explode label cardinality.
func (c *HierarchyController) instrumentAPI(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecordingResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		axis := c.axisLabel(r)
		result := resultClass(rec.status)
		hierarchyAPIRequests.WithLabelValues(axis, endpoint, result).Inc()
		hierarchyAPILatency.WithLabelValues(axis, endpoint, result).Observe(time.Since(start).Seconds())
	}
}
