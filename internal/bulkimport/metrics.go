package bulkimport

import (
	"time"

	"github.com/ignite/loadboard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loadboard",
		Subsystem: "import",
		Name:      "rows_classified_total",
		Help:      "Rows classified at preview time, by template and final status.",
	}, []string{"template", "status"})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loadboard",
		Subsystem: "import",
		Name:      "batches_total",
		Help:      "Batch commits attempted by the import executor, by result.",
	}, []string{"result"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loadboard",
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Import runs by outcome.",
	}, []string{"status"})

	similarityChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loadboard",
		Subsystem: "import",
		Name:      "similarity_checks_total",
		Help:      "Similarity scorer calls by result.",
	}, []string{"result"})

	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "loadboard",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Wall time of import executions.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

func recordClassified(t domain.TemplateType, rows []domain.NormalizedRow) {
	for _, r := range rows {
		rowsClassified.WithLabelValues(string(t), string(r.Status)).Inc()
	}
}

func recordRun(status string, started time.Time) {
	runsTotal.WithLabelValues(status).Inc()
	importDuration.Observe(time.Since(started).Seconds())
}
