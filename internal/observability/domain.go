package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain holds warehouse specific counters. A nil *Domain records nothing.
type Domain struct {
	transitions     *prometheus.CounterVec
	withdrawn       prometheus.Counter
	moved           prometheus.Counter
	packingFailures prometheus.Counter
	imports         *prometheus.CounterVec
}

// NewDomain registers the warehouse counters against registerer.
func NewDomain(registerer prometheus.Registerer) *Domain {
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_wave_transitions_total",
		Help: "Wave status change attempts by kind, edge and result.",
	}, []string{"kind", "from", "to", "result"})
	withdrawn := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warehouse_stock_withdrawn_units_total",
		Help: "Units withdrawn from available stock for outbound waves.",
	})
	moved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warehouse_stock_moved_units_total",
		Help: "Units relocated by direct moves.",
	})
	packing := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warehouse_packing_list_failures_total",
		Help: "Packing list generations that failed after an outbound completed.",
	})
	imports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_wave_imports_total",
		Help: "Bulk wave imports by kind and result.",
	}, []string{"kind", "result"})
	registerer.MustRegister(transitions, withdrawn, moved, packing, imports)
	return &Domain{transitions: transitions, withdrawn: withdrawn, moved: moved, packingFailures: packing, imports: imports}
}

// WaveTransition counts one status change attempt.
func (d *Domain) WaveTransition(kind, from, to string, err error) {
	if d == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	d.transitions.WithLabelValues(kind, from, to, result).Inc()
}

// StockWithdrawn adds units taken from available stock.
func (d *Domain) StockWithdrawn(units int64) {
	if d == nil || units <= 0 {
		return
	}
	d.withdrawn.Add(float64(units))
}

// StockMoved adds units relocated by a direct move.
func (d *Domain) StockMoved(units int64) {
	if d == nil || units <= 0 {
		return
	}
	d.moved.Add(float64(units))
}

// PackingListFailed counts a failed packing list.
func (d *Domain) PackingListFailed() {
	if d == nil {
		return
	}
	d.packingFailures.Inc()
}

// WaveImported counts one bulk import attempt.
func (d *Domain) WaveImported(kind string, err error) {
	if d == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	d.imports.WithLabelValues(kind, result).Inc()
}
