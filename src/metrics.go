package main

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ====== Prometheus exporter ======

var (
	arpCounterDescs = map[string]*prometheus.Desc{}
	arpCounterNames = []string{
		"requests_sent", "requests_received", "replies_sent", "replies_received",
		"packets_buffered", "packets_released", "packets_dropped", "packets_discarded",
		"entries_created", "entries_updated", "entries_aged_out", "entries_deleted",
	}

	forwarderDropsDesc = prometheus.NewDesc(
		"arpsim_forwarder_drops_total",
		"Packets dropped by the forwarding layer, by reason.",
		[]string{"node", "reason"}, nil)
	forwarderDeliveredDesc = prometheus.NewDesc(
		"arpsim_forwarder_delivered_total",
		"Packets delivered locally.",
		[]string{"node"}, nil)
	arpPendingDesc = prometheus.NewDesc(
		"arpsim_arp_pending_requests",
		"Outstanding ARP resolutions.",
		[]string{"node"}, nil)
)

func init() {
	for _, name := range arpCounterNames {
		arpCounterDescs[name] = prometheus.NewDesc(
			"arpsim_arp_"+name+"_total",
			"ARP "+name+" per interface.",
			[]string{"node", "interface"}, nil)
	}
}

// simCollector exports the counters of whatever topology is loaded
type simCollector struct {
	mu    sync.Mutex
	graph *Graph
	// copied from the event loop by snapshotPending
	pending map[string]int
}

func newSimCollector() *simCollector {
	return &simCollector{}
}

func (c *simCollector) setGraph(graph *Graph) {
	c.mu.Lock()
	c.graph = graph
	c.pending = nil
	c.mu.Unlock()
}

// snapshotPending records the pending request counts of every node. Call it
// from the event loop goroutine.
func (c *simCollector) snapshotPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.graph == nil {
		return
	}
	c.pending = make(map[string]int, len(c.graph.node_list))
	for _, node := range c.graph.node_list {
		c.pending[node.name] = len(node.arp.Pending())
	}
}

func (c *simCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range arpCounterDescs {
		ch <- d
	}
	ch <- forwarderDropsDesc
	ch <- forwarderDeliveredDesc
	ch <- arpPendingDesc
}

func (c *simCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	graph, pending := c.graph, c.pending
	c.mu.Unlock()
	if graph == nil {
		return
	}

	for _, node := range graph.node_list {
		if node.arp == nil {
			continue
		}
		for _, s := range node.arp.Stats() {
			intf_name := strconv.Itoa(s.Interface)
			if intf := node.interfaceAt(s.Interface); intf != nil {
				intf_name = intf.name
			}
			values := []uint64{
				s.RequestsSent, s.RequestsReceived, s.RepliesSent, s.RepliesReceived,
				s.PacketsBuffered, s.PacketsReleased, s.PacketsDropped, s.PacketsDiscarded,
				s.EntriesCreated, s.EntriesUpdated, s.EntriesAgedOut, s.EntriesDeleted,
			}
			for i, name := range arpCounterNames {
				ch <- prometheus.MustNewConstMetric(arpCounterDescs[name],
					prometheus.CounterValue, float64(values[i]), node.name, intf_name)
			}
		}

		for _, reason := range forwarder_drop_reasons {
			ch <- prometheus.MustNewConstMetric(forwarderDropsDesc, prometheus.CounterValue,
				float64(node.fwd.drops[reason].Load()), node.name, reason)
		}
		ch <- prometheus.MustNewConstMetric(forwarderDeliveredDesc, prometheus.CounterValue,
			float64(node.fwd.delivered.Load()), node.name)

		if n, ok := pending[node.name]; ok {
			ch <- prometheus.MustNewConstMetric(arpPendingDesc, prometheus.GaugeValue, float64(n), node.name)
		}
	}
}

var collector = newSimCollector()

// serveMetrics exposes /metrics on addr in the background
func serveMetrics(addr string) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		LogInfo("Serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			LogError("Metrics server: %v", err)
		}
	}()
}
