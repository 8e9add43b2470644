package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the catalog module.
type Metrics struct {
	AuthResolved     *prometheus.CounterVec
	ItemsListed      prometheus.Counter
	ItemsWritten     *prometheus.CounterVec
	ItemsDeleted     prometheus.Counter
	ListDuration     prometheus.Histogram
	GeocodeTriggered prometheus.Counter
}

// New creates a Metrics instance with all catalog module metrics registered.
func New() *Metrics {
	return &Metrics{
		AuthResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicat_catalog_auth_resolved_total",
			Help: "Privilege resolutions by resulting tier",
		}, []string{"tier"}),
		ItemsListed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicat_catalog_items_listed_total",
			Help: "Items returned by list operations after projection",
		}),
		ItemsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicat_catalog_items_written_total",
			Help: "Item writes by destination field group",
		}, []string{"group"}),
		ItemsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicat_catalog_items_deleted_total",
			Help: "Items deleted, including bulk deletions",
		}),
		ListDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civicat_catalog_list_duration_seconds",
			Help:    "Duration of list operations including projection",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		GeocodeTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicat_catalog_geocode_triggered_total",
			Help: "Item updates that triggered an address geocode",
		}),
	}
}

// IncAuthResolved records a successful privilege resolution.
func (m *Metrics) IncAuthResolved(tier string) {
	if m == nil {
		return
	}
	m.AuthResolved.WithLabelValues(tier).Inc()
}

// AddItemsListed counts items returned to a list caller.
func (m *Metrics) AddItemsListed(n int) {
	if m == nil {
		return
	}
	m.ItemsListed.Add(float64(n))
}

// IncItemWritten records an item write into a field group.
func (m *Metrics) IncItemWritten(group string) {
	if m == nil {
		return
	}
	m.ItemsWritten.WithLabelValues(group).Inc()
}

// AddItemsDeleted counts deleted items.
func (m *Metrics) AddItemsDeleted(n int) {
	if m == nil {
		return
	}
	m.ItemsDeleted.Add(float64(n))
}

// ObserveList records the duration of one list operation.
// Call with time.Now() captured at the start.
func (m *Metrics) ObserveList(start time.Time) {
	if m == nil {
		return
	}
	m.ListDuration.Observe(time.Since(start).Seconds())
}

// IncGeocodeTriggered records an update routed through the geocoder.
func (m *Metrics) IncGeocodeTriggered() {
	if m == nil {
		return
	}
	m.GeocodeTriggered.Inc()
}
