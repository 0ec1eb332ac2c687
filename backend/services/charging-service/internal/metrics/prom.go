package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"chargeflow/backend/services/charging-service/internal/models"
)

const namespace = "charging"

// Recorder exports session and invoice counters to Prometheus.
type Recorder struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	active   prometheus.Gauge
	energy   prometheus.Counter
	rejected *prometheus.CounterVec
	invoices prometheus.Counter
}

// NewRecorder registers the collectors on reg. If reg is nil, the default registerer is used.
// Collectors that are already registered are reused.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of charging sessions started",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Total number of charging sessions that reached a terminal status",
		}, []string{"status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Charging sessions currently active in this instance's view",
		}),
		energy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "energy_delivered_kwh_total",
			Help:      "Energy delivered by finished sessions",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meter_readings_rejected_total",
			Help:      "Meter readings refused by the validator",
		}, []string{"reason"}),
		invoices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_issued_total",
			Help:      "Total number of invoices issued",
		}),
	}

	var err error
	if r.started, err = register(reg, r.started); err != nil {
		return nil, err
	}
	if r.finished, err = register(reg, r.finished); err != nil {
		return nil, err
	}
	if r.active, err = register(reg, r.active); err != nil {
		return nil, err
	}
	if r.energy, err = register(reg, r.energy); err != nil {
		return nil, err
	}
	if r.rejected, err = register(reg, r.rejected); err != nil {
		return nil, err
	}
	if r.invoices, err = register(reg, r.invoices); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// SessionStarted counts a started session.
func (r *Recorder) SessionStarted() {
	r.started.Inc()
	r.active.Inc()
}

// SessionFinished counts a session that reached status.
func (r *Recorder) SessionFinished(status models.SessionStatus, energyKWh float64) {
	r.finished.WithLabelValues(string(status)).Inc()
	r.active.Dec()
	if energyKWh > 0 {
		r.energy.Add(energyKWh)
	}
}

// ReadingRejected counts a refused meter reading.
func (r *Recorder) ReadingRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

// InvoiceIssued counts a new invoice.
func (r *Recorder) InvoiceIssued() {
	r.invoices.Inc()
}
