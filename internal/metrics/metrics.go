package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters for the synchronization engine. Registered on the default
// registry and exposed via Handler.
var (
	Polls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_polls_total",
		Help: "Successful message snapshot polls.",
	})
	PollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_poll_failures_total",
		Help: "Message snapshot polls that failed and were swallowed.",
	})
	Notifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_notifications_total",
		Help: "Notification events pushed to UI clients.",
	})
	Sends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_sends_total",
		Help: "Messages sent successfully.",
	})
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_send_failures_total",
		Help: "Message sends that failed and were rolled back.",
	})
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
