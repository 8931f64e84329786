package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ProfilesProvisioned prometheus.Counter
	InvitesSent         prometheus.Counter
	InvitesBlocked      prometheus.Counter
	ConnectionsAccepted prometheus.Counter
	ConnectionsDeclined prometheus.Counter
	Disconnects         prometheus.Counter
	AttributesVerified  *prometheus.CounterVec
	MessagesDelivered   *prometheus.CounterVec
	DeliveryFailures    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ProfilesProvisioned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contactshare_profiles_provisioned_total",
			Help: "Total number of fully provisioned profiles",
		}),
		InvitesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contactshare_invites_sent_total",
			Help: "Total number of connection invitations created",
		}),
		InvitesBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contactshare_invites_blocked_total",
			Help: "Invitations aborted because the target blocked the sender",
		}),
		ConnectionsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contactshare_connections_accepted_total",
			Help: "Invitations accepted into paired connections",
		}),
		ConnectionsDeclined: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contactshare_connections_declined_total",
			Help: "Invitations declined",
		}),
		Disconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "contactshare_disconnects_total",
			Help: "Connected pairs destroyed by disconnect",
		}),
		AttributesVerified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "contactshare_attributes_verified_total",
			Help: "Attributes promoted to verified, by kind",
		}, []string{"kind"}),
		MessagesDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "contactshare_messages_delivered_total",
			Help: "Messages handed to a delivery channel successfully",
		}, []string{"channel"}),
		DeliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "contactshare_message_delivery_failures_total",
			Help: "Delivery channel failures, by channel",
		}, []string{"channel"}),
	}
}
