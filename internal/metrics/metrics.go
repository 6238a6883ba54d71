// Package metrics exposes Prometheus counters for the chat core and
// the /metrics handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TurnsStarted counts accepted user submissions.
	TurnsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strand_turns_started_total",
		Help: "User submissions accepted by a session controller.",
	})

	// TurnsCompleted counts turns by terminal outcome: ready, error,
	// stopped.
	TurnsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_turns_completed_total",
		Help: "Turns that reached a terminal state, by outcome.",
	}, []string{"outcome"})

	// StreamEvents counts stream events by type as the controller
	// consumes them.
	StreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_stream_events_total",
		Help: "Stream events consumed, by event type.",
	}, []string{"type"})

	// VoteWrites counts authoritative vote writes by result.
	VoteWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_vote_writes_total",
		Help: "Authoritative vote writes, by result.",
	}, []string{"result"})

	// ArtifactVersions counts artifact version appends.
	ArtifactVersions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strand_artifact_versions_total",
		Help: "Artifact versions appended.",
	})

	// HistoryInvalidations counts history cache invalidations.
	HistoryInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strand_history_invalidations_total",
		Help: "Workspace history cache invalidations.",
	})
)

// Handler serves the default registry, including Go runtime
// collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}
