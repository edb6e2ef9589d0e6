package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRegistry holds all Prometheus metrics for the bot
type MetricsRegistry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Leveling
	XPAwardedTotal      *prometheus.CounterVec
	LevelUpsTotal       prometheus.Counter
	CooldownDropsTotal  prometheus.Counter
	VoiceSessionsActive prometheus.Gauge
	RoleGrantsTotal     *prometheus.CounterVec

	// Polls
	PollsCreatedTotal prometheus.Counter
	PollsEndedTotal   *prometheus.CounterVec
	VotesTotal        *prometheus.CounterVec

	// Tickets
	TicketTransitionsTotal *prometheus.CounterVec

	// Scheduler
	JobDuration    *prometheus.HistogramVec
	JobErrorsTotal *prometheus.CounterVec

	// Gateway
	GatewayEventsTotal *prometheus.CounterVec
}

// NewMetricsRegistry registers every metric with reg. main passes
// prometheus.DefaultRegisterer; tests pass a fresh prometheus.NewRegistry().
func NewMetricsRegistry(reg prometheus.Registerer) *MetricsRegistry {
	factory := promauto.With(reg)

	return &MetricsRegistry{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildbot_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guildbot_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guildbot_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		XPAwardedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildbot_xp_awarded_total",
				Help: "XP awarded after multipliers, by source",
			},
			[]string{"source"},
		),
		LevelUpsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "guildbot_level_ups_total",
				Help: "Level-up events emitted",
			},
		),
		CooldownDropsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "guildbot_xp_cooldown_drops_total",
				Help: "Messages that earned nothing because the author was in cooldown",
			},
		),
		VoiceSessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildbot_voice_sessions_active",
				Help: "Members currently tracked in voice channels",
			},
		),
		RoleGrantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildbot_role_reward_grants_total",
				Help: "Role reward grant attempts by result",
			},
			[]string{"result"},
		),

		PollsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "guildbot_polls_created_total",
				Help: "Polls created",
			},
		),
		PollsEndedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildbot_polls_ended_total",
				Help: "Polls ended, by reason (manual or expired)",
			},
			[]string{"reason"},
		),
		VotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildbot_poll_votes_total",
				Help: "Vote attempts by result",
			},
			[]string{"result"},
		),

		TicketTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildbot_ticket_transitions_total",
				Help: "Ticket state transitions",
			},
			[]string{"transition"},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guildbot_job_duration_seconds",
				Help:    "Scheduled sweep execution time in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"job_name"},
		),
		JobErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildbot_job_errors_total",
				Help: "Scheduled sweep runs that returned an error",
			},
			[]string{"job_name"},
		),

		GatewayEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildbot_gateway_events_total",
				Help: "Gateway events handled by type",
			},
			[]string{"event"},
		),
	}
}
