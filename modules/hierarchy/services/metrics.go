package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "import",
		Name:      "operations_total",
		Help:      "Total number of CSV import outcomes broken down by axis and kind.",
	}, []string{"axis", "kind"})

	exportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "export",
		Name:      "rows_total",
		Help:      "Total number of exported hierarchy rows broken down by axis and format.",
	}, []string{"axis", "format"})

	assignmentResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "assignment",
		Name:      "elements_total",
		Help:      "Total number of element assignment writes broken down by action and result.",
	}, []string{"action", "result"})

	fieldCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hierarchy",
		Subsystem: "field_cache",
		Name:      "requests_total",
		Help:      "Total number of custom field registry cache lookups broken down by hit/miss.",
	}, []string{"result"})
)

func recordImportResult(axis string, res *ImportResult) {
	if res == nil {
		return
	}
	importOperations.WithLabelValues(axis, "nodes_created").Add(float64(res.NodesCreated))
	importOperations.WithLabelValues(axis, "elements_created").Add(float64(res.ElementsCreated))
	importOperations.WithLabelValues(axis, "elements_updated").Add(float64(res.ElementsUpdated))
	importOperations.WithLabelValues(axis, "elements_unchanged").Add(float64(res.ElementsUnchanged))
	importOperations.WithLabelValues(axis, "failed").Add(float64(res.Failed))
}

func recordExportRows(axis, format string, n int) {
	exportRows.WithLabelValues(axis, format).Add(float64(n))
}

func recordAssignment(action string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	assignmentResults.WithLabelValues(action, result).Inc()
}

func recordFieldCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	fieldCacheRequests.WithLabelValues(result).Inc()
}
