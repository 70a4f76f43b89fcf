package mdevents

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports ingestion and tree-shape counters to Prometheus. A nil
// *Metrics is valid and records nothing.
//
// Several workspaces may share one Metrics; the gauges then reflect the
// workspace that changed shape last.
type Metrics struct {
	EventsAdded       prometheus.Counter
	EventsRejected    prometheus.Counter
	Splits            prometheus.Counter
	Boxes             prometheus.Gauge
	LeafBoxes         prometheus.Gauge
	SplitPassDuration prometheus.Histogram
	RefreshDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler, or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "mdevents_events_added_total",
			Help: "Events accepted into a leaf box",
		}),
		EventsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "mdevents_events_rejected_total",
			Help: "Events dropped for lying outside the workspace",
		}),
		Splits: f.NewCounter(prometheus.CounterOpts{
			Name: "mdevents_box_splits_total",
			Help: "Leaf boxes converted into internal boxes",
		}),
		Boxes: f.NewGauge(prometheus.GaugeOpts{
			Name: "mdevents_boxes",
			Help: "Boxes in the tree, internal and leaf",
		}),
		LeafBoxes: f.NewGauge(prometheus.GaugeOpts{
			Name: "mdevents_leaf_boxes",
			Help: "Leaf boxes in the tree",
		}),
		SplitPassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdevents_split_pass_duration_seconds",
			Help:    "Time to run one SplitAllIfNeeded pass",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdevents_refresh_duration_seconds",
			Help:    "Time to run one RefreshCache pass",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		}),
	}
}

func (m *Metrics) observeAdd(added, rejected int) {
	if m == nil {
		return
	}
	m.EventsAdded.Add(float64(added))
	m.EventsRejected.Add(float64(rejected))
}

func (m *Metrics) observeSplitPass(splits int, elapsed time.Duration, bc *BoxController) {
	if m == nil {
		return
	}
	m.Splits.Add(float64(splits))
	m.SplitPassDuration.Observe(elapsed.Seconds())
	m.observeShape(bc)
}

func (m *Metrics) observeShape(bc *BoxController) {
	if m == nil {
		return
	}
	m.Boxes.Set(float64(bc.TotalNumBoxes()))
	m.LeafBoxes.Set(float64(bc.TotalNumLeafBoxes()))
}

func (m *Metrics) observeRefresh(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(elapsed.Seconds())
}
