package metrics

import "github.com/prometheus/client_golang/prometheus"

// Booking outcomes recorded by ObserveBooking.
const (
	OutcomeBooked          = "booked"
	OutcomeConflict        = "conflict"
	OutcomeInvalidLeadTime = "invalid_lead_time"
	OutcomeNotFound        = "not_found"
	OutcomeError           = "error"
)

// SchedulingMetrics exposes counters/histograms for booking, availability
// and dashboard flows.
type SchedulingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	statusChangesTotal *prometheus.CounterVec
	slotQueryLatency   *prometheus.HistogramVec
	slotsReturned      prometheus.Histogram
	statsLatency       prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		statusChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "status_changes_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"to"}),
		slotQueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slot_query_seconds",
			Help:      "Latency of availability queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slots_returned",
			Help:      "Number of free slots returned per availability query",
			Buckets:   []float64{0, 1, 2, 4, 6, 8, 10, 12, 16, 24},
		}),
		statsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "stats",
			Name:      "compute_seconds",
			Help:      "Latency of dashboard statistics loading and computation",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.statusChangesTotal, m.slotQueryLatency, m.slotsReturned, m.statsLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveStatusChange(to string) {
	if m == nil {
		return
	}
	m.statusChangesTotal.WithLabelValues(to).Inc()
}

func (m *SchedulingMetrics) ObserveSlotQuery(seconds float64, slots int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.slotQueryLatency.WithLabelValues(result).Observe(seconds)
	if err == nil {
		m.slotsReturned.Observe(float64(slots))
	}
}

func (m *SchedulingMetrics) ObserveStats(seconds float64) {
	if m == nil {
		return
	}
	m.statsLatency.Observe(seconds)
}
