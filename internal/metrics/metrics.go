// Package metrics exposes Prometheus collectors for the engine's event
// stream: real metrics collectors registered against a Registry and
// served over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zai11/enclave/internal/events"
)

// Collectors holds every Prometheus metric the engine's event stream
// feeds: connections, friend-request lifecycle, messages, and post
// synchronisation.
type Collectors struct {
	registry *prometheus.Registry

	connectedPeers prometheus.Gauge

	friendRequestsReceived prometheus.Counter
	friendRequestsAccepted prometheus.Counter
	friendRequestsDenied   prometheus.Counter

	directMessagesSent     prometheus.Counter
	directMessagesReceived prometheus.Counter

	postsSynced prometheus.Counter
	loopErrors  *prometheus.CounterVec
}

// New constructs a Collectors registered against a fresh Registry,
// independent of prometheus's global DefaultRegisterer so tests can
// construct more than one without colliding on metric names.
func New() *Collectors {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		registry: reg,
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "enclave",
			Name:      "connected_peers",
			Help:      "Number of peers currently connected to this node.",
		}),
		friendRequestsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Name:      "friend_requests_received_total",
			Help:      "Inbound friend requests received.",
		}),
		friendRequestsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Name:      "friend_requests_accepted_total",
			Help:      "Friend requests this node's peers accepted.",
		}),
		friendRequestsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Name:      "friend_requests_denied_total",
			Help:      "Friend requests this node's peers denied.",
		}),
		directMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Name:      "direct_messages_sent_total",
			Help:      "Direct messages sent by this node.",
		}),
		directMessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Name:      "direct_messages_received_total",
			Help:      "Direct messages received by this node (request/response and gossip paths combined).",
		}),
		postsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enclave",
			Name:      "posts_synced_total",
			Help:      "Posts merged in from a SynchResponse, created and edited combined.",
		}),
		loopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enclave",
			Name:      "loop_errors_total",
			Help:      "Errors absorbed by the event loop, labelled by context.",
		}, []string{"context"}),
	}

	reg.MustRegister(
		c.connectedPeers,
		c.friendRequestsReceived,
		c.friendRequestsAccepted,
		c.friendRequestsDenied,
		c.directMessagesSent,
		c.directMessagesReceived,
		c.postsSynced,
		c.loopErrors,
	)
	return c
}

// Handler serves the registered collectors in the Prometheus exposition
// format, mounted at /metrics in cmd/enclaved.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Observe updates the collectors from a single upstream Event, run as
// the event loop's one logical subscriber alongside structured logging
// (events.Emitter documents there is exactly one).
func (c *Collectors) Observe(ev events.Event) {
	switch ev.Kind() {
	case events.KindPeerConnected:
		c.connectedPeers.Inc()
	case events.KindPeerDisconnected:
		c.connectedPeers.Dec()
	case events.KindFriendRequestReceived:
		c.friendRequestsReceived.Inc()
	case events.KindFriendRequestAccepted:
		c.friendRequestsAccepted.Inc()
	case events.KindFriendRequestDenied:
		c.friendRequestsDenied.Inc()
	case events.KindDirectMessageSent:
		c.directMessagesSent.Inc()
	case events.KindDirectMessageReceived:
		c.directMessagesReceived.Inc()
	case events.KindPostSynch:
		c.postsSynced.Add(float64(ev.PostSynch.Created + ev.PostSynch.Edited))
	case events.KindError:
		c.loopErrors.WithLabelValues(ev.Error.Context).Inc()
	}
}
