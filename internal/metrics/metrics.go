package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_ticks_total",
			Help: "Bulk mail ticks by outcome",
		},
		[]string{"outcome"},
	)

	RecipientsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mail_recipients_pending",
			Help: "Recipients still queued for the current campaign",
		},
	)

	CredentialsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dd_pass_issued_total",
			Help: "Data download passwords issued",
		},
	)

	CredentialsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dd_pass_swept_total",
			Help: "Expired data download passwords removed",
		},
	)
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(EmailsSent)
		prometheus.MustRegister(EmailFailures)
		prometheus.MustRegister(Ticks)
		prometheus.MustRegister(RecipientsPending)
		prometheus.MustRegister(CredentialsIssued)
		prometheus.MustRegister(CredentialsSwept)
	})
}
