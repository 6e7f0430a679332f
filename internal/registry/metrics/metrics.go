package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the registry.
type Metrics struct {
	ProfilesRegistered     prometheus.Counter
	ProfilesUpdated        prometheus.Counter
	DIDsLinked             prometheus.Counter
	ClaimsAdded            *prometheus.CounterVec
	ClaimsDecided          *prometheus.CounterVec
	OperationFailures      *prometheus.CounterVec
	ReputationComputations prometheus.Counter
	NotificationFailures   *prometheus.CounterVec
	OperationDuration      *prometheus.HistogramVec
	StoreDuration          *prometheus.HistogramVec
}

// New registers the registry metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the registry metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProfilesRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "attestry_profiles_registered_total",
			Help: "Total number of profiles registered",
		}),
		ProfilesUpdated: f.NewCounter(prometheus.CounterOpts{
			Name: "attestry_profiles_updated_total",
			Help: "Total number of profile updates",
		}),
		DIDsLinked: f.NewCounter(prometheus.CounterOpts{
			Name: "attestry_dids_linked_total",
			Help: "Total number of DID link operations",
		}),
		ClaimsAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attestry_claims_added_total",
			Help: "Total number of claims issued, by claim type",
		}, []string{"claim_type"}),
		ClaimsDecided: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attestry_claims_decided_total",
			Help: "Total number of claim decisions, by outcome",
		}, []string{"outcome"}),
		OperationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attestry_operation_failures_total",
			Help: "Failed registry operations, by operation and error code",
		}, []string{"operation", "code"}),
		ReputationComputations: f.NewCounter(prometheus.CounterOpts{
			Name: "attestry_reputation_computations_total",
			Help: "Total number of reputation scores computed",
		}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attestry_notification_failures_total",
			Help: "Notifications that could not be delivered, by topic",
		}, []string{"topic"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attestry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		StoreDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attestry_store_duration_seconds",
			Help:    "Duration of storage backend calls",
			Buckets: durationBuckets,
		}, []string{"op"}),
	}
}

func (m *Metrics) IncrementProfilesRegistered() {
	m.ProfilesRegistered.Inc()
}

func (m *Metrics) IncrementProfilesUpdated() {
	m.ProfilesUpdated.Inc()
}

func (m *Metrics) IncrementDIDsLinked() {
	m.DIDsLinked.Inc()
}

func (m *Metrics) IncrementClaimsAdded(claimType string) {
	m.ClaimsAdded.WithLabelValues(claimType).Inc()
}

// IncrementClaimsDecided records an approval or rejection.
func (m *Metrics) IncrementClaimsDecided(outcome string) {
	m.ClaimsDecided.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementOperationFailures(operation, code string) {
	m.OperationFailures.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) IncrementReputationComputations() {
	m.ReputationComputations.Inc()
}

func (m *Metrics) IncrementNotificationFailures(topic string) {
	m.NotificationFailures.WithLabelValues(topic).Inc()
}

// ObserveOperation records the duration of a facade operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveStore matches store.WithLatencyObserver.
func (m *Metrics) ObserveStore(op string, d time.Duration) {
	m.StoreDuration.WithLabelValues(op).Observe(d.Seconds())
}
