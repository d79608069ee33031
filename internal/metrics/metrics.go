// Package metrics instruments the messaging core's publisher, subscriber
// and waiter registry with Prometheus counters/gauges. This is ambient
// observability, not a spec component — modeled on SAGE-X-project-sage's
// internal/metrics package, which instruments sessions/handshakes the same
// way: a dedicated registry plus promauto-registered vectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nostr_rr"

// Registry is the dedicated registry all metrics in this package attach
// to, kept separate from prometheus.DefaultRegisterer so embedding
// applications can choose whether/how to expose it.
var Registry = prometheus.NewRegistry()

var (
	// PublishAttempts counts every per-relay publish attempt.
	PublishAttempts = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "attempts_total",
		Help:      "Total per-relay publish attempts.",
	})

	// PublishAccepted counts per-relay OK(true) responses.
	PublishAccepted = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "accepted_total",
		Help:      "Total per-relay publish acceptances.",
	})

	// PublishRejected counts per-relay OK(false) responses and failures.
	PublishRejected = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publisher",
		Name:      "rejected_total",
		Help:      "Total per-relay publish rejections/failures.",
	})

	// SubscriberReconnects counts involuntary-disconnect reconnect cycles.
	SubscriberReconnects = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscriber",
		Name:      "reconnects_total",
		Help:      "Total subscriber reconnect attempts, by relay.",
	}, []string{"relay"})

	// SubscriberDecryptFailures counts inbound wraps that failed to
	// unwrap/unseal (hostile or malformed traffic).
	SubscriberDecryptFailures = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscriber",
		Name:      "decrypt_failures_total",
		Help:      "Total inbound gift wraps that failed to decrypt.",
	})

	// WaitersPending gauges the in-memory waiter registry's pending count.
	WaitersPending = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "waiter",
		Name:      "pending",
		Help:      "Current number of pending in-memory waiters.",
	})

	// WaitersTimedOut counts waiters that expired without delivery.
	WaitersTimedOut = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "waiter",
		Name:      "timed_out_total",
		Help:      "Total waiters that timed out before delivery.",
	})

	// WaitersDelivered counts waiters resolved by a matching response.
	WaitersDelivered = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "waiter",
		Name:      "delivered_total",
		Help:      "Total waiters resolved by a matching response.",
	})
)

// ListenAndServe exposes Registry on /metrics at addr. It blocks; run it in
// its own goroutine.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
