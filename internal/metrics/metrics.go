package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	CampaignsSent    *prometheus.CounterVec
	RecipientSends   *prometheus.CounterVec
	SendDuration     prometheus.Histogram
	ScheduledRuns    prometheus.Counter
	BouncesRecorded  prometheus.Counter
	ContactsImported prometheus.Counter
	QueuedSends      prometheus.Counter
}

// NewMetrics registers the service metrics on reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CampaignsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_mailer_campaigns_sent_total",
			Help: "Campaign send runs by final aggregate status",
		}, []string{"status"}),
		RecipientSends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_mailer_recipient_sends_total",
			Help: "Per-recipient delivery attempts by outcome",
		}, []string{"outcome"}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "campaign_mailer_send_duration_seconds",
			Help:    "Time spent sending one campaign",
			Buckets: prometheus.DefBuckets,
		}),
		ScheduledRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaign_mailer_scheduler_runs_total",
			Help: "Total number of scheduler runs",
		}),
		BouncesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaign_mailer_bounces_recorded_total",
			Help: "Recipients moved to Bounced by the bounce sweep",
		}),
		ContactsImported: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaign_mailer_contacts_imported_total",
			Help: "Contacts created through file import",
		}),
		QueuedSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaign_mailer_queued_sends_total",
			Help: "Campaign sends published to the dispatch queue",
		}),
	}
}

// NewNopMetrics returns metrics registered on a private registry, for tests
// and tools that never expose them.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
