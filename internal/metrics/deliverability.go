package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverability_send_total",
			Help: "Send pipeline outcomes by result",
		},
		[]string{"result"},
	)

	SendAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deliverability_send_attempts_total",
			Help: "Dispatch attempts made by the send pipeline",
		},
	)

	SuppressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverability_suppressions_total",
			Help: "Suppression list upserts by type",
		},
		[]string{"type"},
	)

	BouncesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverability_bounces_total",
			Help: "Bounces recorded by type",
		},
		[]string{"type"},
	)

	ComplaintsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverability_complaints_total",
			Help: "Complaints recorded by source",
		},
		[]string{"source"},
	)

	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverability_rate_limit_rejections_total",
			Help: "Sends rejected by a rate-limit window",
		},
		[]string{"window"},
	)

	DNSBLLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverability_dnsbl_lookups_total",
			Help: "DNSBL lookups by zone and result (listed, clean, error)",
		},
		[]string{"zone", "result"},
	)

	SenderScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deliverability_sender_score",
			Help: "Most recently computed sender score per domain",
		},
		[]string{"domain_id"},
	)
)
