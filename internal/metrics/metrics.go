// Package metrics holds the Prometheus collectors for matching, negotiation
// and room lifecycle. Each Collector owns its registry so tests can create as
// many as they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coffeechat"

// Collector holds all application metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	Proposals           prometheus.Counter
	Transitions         *prometheus.CounterVec
	Rejections          *prometheus.CounterVec
	RoomsCreated        prometheus.Counter
	RoomsReclaimed      prometheus.Counter
	RoomFailures        *prometheus.CounterVec
	RankingDuration     prometheus.Histogram
	SummarizerFallbacks prometheus.Counter
	MessagesLogged      *prometheus.CounterVec
}

// New creates a Collector registered on a fresh registry
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Proposals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_total",
			Help:      "Match proposals created",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_transitions_total",
			Help:      "Match status transitions by target status",
		}, []string{"status"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_action_rejections_total",
			Help:      "Rejected match actions by reason",
		}, []string{"reason"}),
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Private rooms created for confirmed matches",
		}),
		RoomsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_reclaimed_total",
			Help:      "Private rooms reclaimed after retention",
		}),
		RoomFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_failures_total",
			Help:      "Room lifecycle failures by stage",
		}, []string{"stage"}),
		RankingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_duration_seconds",
			Help:      "Time spent ranking candidates for one request",
			Buckets:   prometheus.DefBuckets,
		}),
		SummarizerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarizer_fallbacks_total",
			Help:      "Profile summaries produced by the keyword fallback",
		}),
		MessagesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_messages_total",
			Help:      "Passively logged history messages by result",
		}, []string{"result"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Proposals,
		c.Transitions,
		c.Rejections,
		c.RoomsCreated,
		c.RoomsReclaimed,
		c.RoomFailures,
		c.RankingDuration,
		c.SummarizerFallbacks,
		c.MessagesLogged,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ProposalCreated() {
	if c != nil {
		c.Proposals.Inc()
	}
}

func (c *Collector) Transition(status string) {
	if c != nil {
		c.Transitions.WithLabelValues(status).Inc()
	}
}

func (c *Collector) Rejected(reason string) {
	if c != nil {
		c.Rejections.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) RoomCreated() {
	if c != nil {
		c.RoomsCreated.Inc()
	}
}

func (c *Collector) RoomReclaimed() {
	if c != nil {
		c.RoomsReclaimed.Inc()
	}
}

func (c *Collector) RoomFailed(stage string) {
	if c != nil {
		c.RoomFailures.WithLabelValues(stage).Inc()
	}
}

func (c *Collector) ObserveRanking(d time.Duration) {
	if c != nil {
		c.RankingDuration.Observe(d.Seconds())
	}
}

func (c *Collector) SummarizerFellBack() {
	if c != nil {
		c.SummarizerFallbacks.Inc()
	}
}

func (c *Collector) MessageLogged(result string) {
	if c != nil {
		c.MessagesLogged.WithLabelValues(result).Inc()
	}
}
