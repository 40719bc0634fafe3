package main

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue(), true
			}
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func TestCollectorExportsRunCounters(t *testing.T) {
	c := newSimCollector()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families, "nothing is exported without a topology")

	topology := loadTopology(t, "../topologies/triangle.yaml")
	c.setGraph(topology)
	require.NoError(t, topology.Run(10*time.Second))

	v, ok := gatherValue(t, reg, "arpsim_arp_requests_sent_total", map[string]string{"node": "R1", "interface": "eth0"})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = gatherValue(t, reg, "arpsim_forwarder_delivered_total", map[string]string{"node": "R3"})
	require.True(t, ok)
	assert.Equal(t, 4.0, v)

	_, ok = gatherValue(t, reg, "arpsim_arp_pending_requests", map[string]string{"node": "R1"})
	assert.False(t, ok, "pending gauge needs a snapshot")

	c.snapshotPending()
	v, ok = gatherValue(t, reg, "arpsim_arp_pending_requests", map[string]string{"node": "R1"})
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestMetricsHandler(t *testing.T) {
	c := newSimCollector()
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	c.setGraph(loadTopology(t, "../topologies/atm.yaml"))

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `arpsim_forwarder_drops_total{node="A",reason="no-route"} 0`), text)
	assert.True(t, strings.Contains(text, `arpsim_arp_requests_sent_total{interface="atm0",node="B"} 0`), text)
}
