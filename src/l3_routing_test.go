package main

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-arp-sim/src/arp"
	"go-arp-sim/src/internal/errors"
)

func TestLookupLPM(t *testing.T) {
	rt := InitRoutingTable()
	rt.AddDirectRoute(netip.MustParsePrefix("10.1.1.1/24"), "eth0")
	require.NoError(t, rt.AddRoute(netip.MustParsePrefix("10.0.0.0/8"), netip.MustParseAddr("10.1.1.2"), "eth0"))
	require.NoError(t, rt.AddRoute(netip.MustParsePrefix("10.2.2.0/24"), netip.MustParseAddr("10.1.1.3"), "eth0"))

	r := rt.LookupLPM(netip.MustParseAddr("10.2.2.9"))
	require.NotNil(t, r)
	assert.Equal(t, netip.MustParseAddr("10.1.1.3"), r.Gateway)

	r = rt.LookupLPM(netip.MustParseAddr("10.1.1.7"))
	require.NotNil(t, r)
	assert.True(t, r.IsDirect())
	assert.Equal(t, netip.MustParsePrefix("10.1.1.0/24"), r.Dest)

	r = rt.LookupLPM(netip.MustParseAddr("10.9.9.9"))
	require.NotNil(t, r)
	assert.Equal(t, 8, r.Dest.Bits())

	assert.Nil(t, rt.LookupLPM(netip.MustParseAddr("192.168.0.1")))
}

func TestLookupPrefersLowerDistance(t *testing.T) {
	rt := InitRoutingTable()
	dest := netip.MustParsePrefix("10.5.0.0/16")
	require.NoError(t, rt.AddRouteWithParams(dest, netip.MustParseAddr("10.1.1.2"), "eth0", ROUTE_SOURCE_STATIC, 5, 1))
	require.NoError(t, rt.AddRouteWithParams(dest, netip.Addr{}, "eth1", ROUTE_SOURCE_CONNECTED, 0, 0))

	r := rt.LookupLPM(netip.MustParseAddr("10.5.1.1"))
	require.NotNil(t, r)
	assert.Equal(t, "eth1", r.OIF)

	// same source replaces
	require.NoError(t, rt.AddRouteWithParams(dest, netip.MustParseAddr("10.1.1.9"), "eth0", ROUTE_SOURCE_STATIC, 5, 1))
	assert.Len(t, rt.Routes(), 2)
}

func TestAddRouteRejectsBadInput(t *testing.T) {
	rt := InitRoutingTable()
	assert.Error(t, rt.AddRoute(netip.Prefix{}, netip.MustParseAddr("10.1.1.1"), "eth0"))
	assert.Error(t, rt.AddRoute(netip.MustParsePrefix("10.0.0.0/8"), netip.MustParseAddr("::1"), "eth0"))
}

func TestDumpRoutingTable(t *testing.T) {
	rt := InitRoutingTable()
	rt.AddDirectRoute(netip.MustParsePrefix("10.1.1.1/24"), "eth0")
	require.NoError(t, rt.AddRoute(netip.MustParsePrefix("10.2.2.0/24"), netip.MustParseAddr("10.1.1.2"), "eth0"))

	var buf bytes.Buffer
	rt.DumpRoutingTable(&buf, "R1")
	lines := strings.Split(buf.String(), "\n")
	var rows []string
	for _, l := range lines {
		if strings.HasPrefix(l, "C ") || strings.HasPrefix(l, "S ") {
			rows = append(rows, l)
		}
	}
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "10.1.1.0/24")
	assert.Contains(t, rows[1], "10.1.1.2")
}

func TestTransitResolveErrorHaltsRun(t *testing.T) {
	graph := create_new_graph("transit")
	node := create_graph_node(graph, "B", 1)
	in, err := node_add_interface(node, "eth0", arp.HardwareEthernet)
	require.NoError(t, err)
	require.NoError(t, node_init_arp(node, graph.arp_config))
	require.NoError(t, node_set_intf_ip_address(node, "eth0", "10.0.0.2", 24))

	// eth1 comes up after the ARP module was built, so ARP has never heard of it
	out, err := node_add_interface(node, "eth1", arp.HardwareEthernet)
	require.NoError(t, err)
	peer := create_graph_node(graph, "C", 2)
	peer_if, err := node_add_interface(peer, "eth0", arp.HardwareEthernet)
	require.NoError(t, err)
	require.NoError(t, insert_link_between_two_nodes(out, peer_if, 1, 0))
	require.NoError(t, node.routes.AddRoute(netip.MustParsePrefix("10.9.9.0/24"), netip.MustParseAddr("10.1.1.1"), "eth1"))

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      8,
		Protocol: layers.IPProtocol(PROTO_SIM_APP),
		SrcIP:    netip.MustParseAddr("10.0.0.1").AsSlice(),
		DstIP:    netip.MustParseAddr("10.9.9.9").AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload("hi")))

	node.fwd.receiveIP(in, buf.Bytes())

	require.Error(t, graph.sched.Err())
	assert.True(t, errors.IsConfig(graph.sched.Err()))
	assert.Contains(t, graph.sched.Err().Error(), "node B")
}
