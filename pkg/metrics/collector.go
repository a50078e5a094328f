package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "viewtree"

// Collector exports the in-memory timings and counters to Prometheus.
type Collector struct {
	timings  []*TimingMetric
	counters []*Counter

	timingCount map[*TimingMetric]*prometheus.Desc
	timingTotal map[*TimingMetric]*prometheus.Desc
	timingMax   map[*TimingMetric]*prometheus.Desc
	counterDesc map[*Counter]*prometheus.Desc
}

// NewCollector returns a collector over all registered metrics.
func NewCollector() *Collector {
	c := &Collector{
		timings:     AllTimingMetrics(),
		counters:    AllCounters(),
		timingCount: make(map[*TimingMetric]*prometheus.Desc),
		timingTotal: make(map[*TimingMetric]*prometheus.Desc),
		timingMax:   make(map[*TimingMetric]*prometheus.Desc),
		counterDesc: make(map[*Counter]*prometheus.Desc),
	}
	for _, m := range c.timings {
		c.timingCount[m] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, m.name, "count_total"),
			m.help+", number of runs", nil, nil)
		c.timingTotal[m] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, m.name, "seconds_total"),
			m.help+", total time", nil, nil)
		c.timingMax[m] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, m.name, "max_seconds"),
			m.help+", slowest run", nil, nil)
	}
	for _, ctr := range c.counters {
		c.counterDesc[ctr] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", ctr.name+"_total"),
			ctr.help, nil, nil)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.timings {
		ch <- c.timingCount[m]
		ch <- c.timingTotal[m]
		ch <- c.timingMax[m]
	}
	for _, ctr := range c.counters {
		ch <- c.counterDesc[ctr]
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.timings {
		ch <- prometheus.MustNewConstMetric(c.timingCount[m], prometheus.CounterValue, float64(m.Count()))
		ch <- prometheus.MustNewConstMetric(c.timingTotal[m], prometheus.CounterValue, float64(m.TotalNs())/1e9)
		ch <- prometheus.MustNewConstMetric(c.timingMax[m], prometheus.GaugeValue, float64(m.MaxNs())/1e9)
	}
	for _, ctr := range c.counters {
		ch <- prometheus.MustNewConstMetric(c.counterDesc[ctr], prometheus.CounterValue, float64(ctr.Value()))
	}
}

// WindowSlots reports how many rows the virtual window currently holds, split
// by whether they are visible or kept warm.
var WindowSlots = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "window",
	Name:      "slots",
	Help:      "Rows materialized by the virtual window",
}, []string{"state"})

// Register adds the collector and gauges to reg.
func Register(reg prometheus.Registerer) error {
	if err := reg.Register(NewCollector()); err != nil {
		return err
	}
	return reg.Register(WindowSlots)
}
