package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_sent_total",
			Help: "Total number of messages inserted by send",
		},
		[]string{"store"},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_received_total",
			Help: "Total number of messages claimed and delivered, by claim path",
		},
		[]string{"store", "path"},
	)

	ReceiveWakeups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_receive_wakeups_total",
			Help: "Total number of notification wake-ups seen by waiting receivers",
		},
		[]string{"store"},
	)

	ReceiversWaiting = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_receivers_waiting",
			Help: "Number of receivers currently blocked waiting for a message",
		},
		[]string{"store"},
	)

	GroupSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_group_sends_total",
			Help: "Total number of group_send fan-outs",
		},
		[]string{"store"},
	)

	GCRowsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_gc_rows_deleted_total",
			Help: "Total number of expired rows removed by the GC sweeper",
		},
		[]string{"store", "table"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(MessagesReceived)
	prometheus.MustRegister(ReceiveWakeups)
	prometheus.MustRegister(ReceiversWaiting)
	prometheus.MustRegister(GroupSends)
	prometheus.MustRegister(GCRowsDeleted)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
