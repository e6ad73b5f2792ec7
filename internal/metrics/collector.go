package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveStats provides the collector access to live session state.
type LiveStats interface {
	ActiveSessions() int
	ConnectedClients() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats LiveStats

	activeSessions   *prometheus.Desc
	connectedClients *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// stats may be nil, in which case every gauge reports 0.
func NewCollector(stats LiveStats) *Collector {
	return &Collector{
		stats: stats,
		activeSessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_sessions"),
			"Current number of conversation sessions.",
			nil, nil,
		),
		connectedClients: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "websocket", "clients"),
			"Current number of connected browser clients.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessions
	ch <- c.connectedClients
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var sessions, clients int
	if c.stats != nil {
		sessions = c.stats.ActiveSessions()
		clients = c.stats.ConnectedClients()
	}
	ch <- prometheus.MustNewConstMetric(c.activeSessions, prometheus.GaugeValue, float64(sessions))
	ch <- prometheus.MustNewConstMetric(c.connectedClients, prometheus.GaugeValue, float64(clients))
}
