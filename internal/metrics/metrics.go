// Package metrics expose les compteurs Prometheus de l'agent (servis sur /metrics).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_syncs_total",
			Help: "Content synchronizations by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signage_sync_duration_seconds",
			Help:    "Duration of content synchronizations",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"source"},
	)

	AssetDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_asset_downloads_total",
			Help: "Asset downloads by outcome",
		},
		[]string{"outcome"},
	)

	AssetBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signage_asset_bytes_total",
		Help: "Bytes written to the asset directory",
	})

	AssetsPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signage_assets_pruned_total",
		Help: "Asset files removed because no manifest references them",
	})

	PlayerSpawnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_player_spawns_total",
			Help: "Player process spawns by outcome",
		},
		[]string{"outcome"},
	)

	PlayerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signage_player_up",
		Help: "1 when the player process is running",
	})

	PollInterval = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signage_poll_interval_seconds",
		Help: "Poll interval chosen for the next tick",
	})

	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_ticks_total",
			Help: "Loop ticks by update source (schedule, legacy, none)",
		},
		[]string{"source"},
	)

	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_remote_requests_total",
			Help: "Requests to the signage server by endpoint and status class",
		},
		[]string{"endpoint", "status"},
	)

	BusEventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_bus_events_dropped_total",
			Help: "Events dropped because a local subscriber was too slow",
		},
		[]string{"topic"},
	)

	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signage_schedule_breaker_state",
		Help: "Schedule endpoint circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

func RecordSync(source, outcome string, d time.Duration) {
	SyncsTotal.WithLabelValues(source, outcome).Inc()
	SyncDuration.WithLabelValues(source).Observe(d.Seconds())
}

func SetPlayerUp(up bool) {
	if up {
		PlayerUp.Set(1)
		return
	}
	PlayerUp.Set(0)
}
