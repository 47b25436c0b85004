package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_runs_total", Help: "Sync passes started, by direction"},
		[]string{"direction"},
	)
	SyncedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_rows_total", Help: "Rows transferred, by direction and entity type"},
		[]string{"direction", "entity"},
	)
	DeferredEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sync_deferred_events_total", Help: "Events held back because their match is not remote yet"},
	)
	FailedEntityTypes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sync_failed_entity_types_total", Help: "Entity-type passes that ended in error"},
	)
)

func Register() {
	prometheus.MustRegister(SyncRuns, SyncedRows, DeferredEvents, FailedEntityTypes)
}
