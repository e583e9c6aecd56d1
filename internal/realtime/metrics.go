package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	hubClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gift_hub_clients",
		Help: "Current number of connected display clients.",
	})

	hubEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_hub_events_total",
			Help: "Total number of display events applied and broadcast, by type.",
		},
		[]string{"type"},
	)

	// hubDropped counts messages lost to full client send queues.
	hubDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gift_hub_dropped_messages_total",
		Help: "Total number of display messages dropped because a client queue was full.",
	})
)

func init() {
	prometheus.MustRegister(hubClients, hubEvents, hubDropped)
}
