package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pledgeservice"

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pledgeWebhooks       *prometheus.CounterVec
	verifiedUpsertFailed prometheus.Counter
	votes                *prometheus.CounterVec
	voteIncrementFailed  prometheus.Counter
	memeSubmissions      *prometheus.CounterVec
	rateLimitDecisions   *prometheus.CounterVec
	countyCache          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pledgeWebhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pledge_webhooks_total",
			Help:      "Payment notifications processed, by outcome.",
		}, []string{"outcome"}),
		verifiedUpsertFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verified_user_upsert_failures_total",
			Help:      "Pledges stored without a verified user marker.",
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Meme vote attempts, by outcome.",
		}, []string{"outcome"}),
		voteIncrementFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_counter_increment_failures_total",
			Help:      "Votes recorded whose meme counter was not incremented.",
		}),
		memeSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meme_submissions_total",
			Help:      "Meme submissions, by outcome.",
		}, []string{"outcome"}),
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit checks, by endpoint and decision.",
		}, []string{"endpoint", "decision"}),
		countyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "county_tally_cache_total",
			Help:      "County tally lookups, by cache result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pledgeWebhooks,
		m.verifiedUpsertFailed,
		m.votes,
		m.voteIncrementFailed,
		m.memeSubmissions,
		m.rateLimitDecisions,
		m.countyCache,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PledgeWebhook(outcome string) {
	if m == nil {
		return
	}
	m.pledgeWebhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VerifiedUpsertFailed() {
	if m == nil {
		return
	}
	m.verifiedUpsertFailed.Inc()
}

func (m *Metrics) Vote(outcome string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VoteIncrementFailed() {
	if m == nil {
		return
	}
	m.voteIncrementFailed.Inc()
}

func (m *Metrics) MemeSubmission(outcome string) {
	if m == nil {
		return
	}
	m.memeSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimitDecision(endpoint, decision string) {
	if m == nil {
		return
	}
	m.rateLimitDecisions.WithLabelValues(endpoint, decision).Inc()
}

func (m *Metrics) CountyCache(result string) {
	if m == nil {
		return
	}
	m.countyCache.WithLabelValues(result).Inc()
}
