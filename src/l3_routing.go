package main

import (
	"fmt"
	"io"
	"net/netip"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"go-arp-sim/src/arp"
	"go-arp-sim/src/internal/errors"
)

// IP constants for generated traffic
const (
	PROTO_SIM_APP  = 253 // RFC 3692 experimental
	IP_DEFAULT_TTL = 64
)

// RouteSource indicates how the route was installed
type RouteSource uint8

const (
	ROUTE_SOURCE_CONNECTED RouteSource = 0 // Directly connected networks
	ROUTE_SOURCE_STATIC    RouteSource = 1 // Static routes
)

// RouteSourceToString converts route source to human-readable string
func RouteSourceToString(source RouteSource) string {
	switch source {
	case ROUTE_SOURCE_CONNECTED:
		return "C"
	case ROUTE_SOURCE_STATIC:
		return "S"
	default:
		return "?"
	}
}

// L3Route is a routing table entry
type L3Route struct {
	Dest    netip.Prefix // masked destination network
	Gateway netip.Addr   // invalid for connected routes
	OIF     string       // outgoing interface name

	AdminDistance uint8       // lower is better
	Metric        uint32      // used when AD is equal
	Source        RouteSource // how the route was installed
}

// IsDirect reports whether the destination is on the attached subnet
func (r *L3Route) IsDirect() bool {
	return !r.Gateway.IsValid()
}

// RoutingTable is the node's RIB
type RoutingTable struct {
	routes []L3Route
}

// InitRoutingTable initializes a new routing table
func InitRoutingTable() *RoutingTable {
	return &RoutingTable{
		routes: make([]L3Route, 0),
	}
}

// AddRoute adds a static route with AD=1, metric=1
func (rt *RoutingTable) AddRoute(dest netip.Prefix, gateway netip.Addr, oif string) error {
	return rt.AddRouteWithParams(dest, gateway, oif, ROUTE_SOURCE_STATIC, uint8(ROUTE_SOURCE_STATIC), 1)
}

// AddRouteWithParams adds or replaces the route for dest from source
func (rt *RoutingTable) AddRouteWithParams(dest netip.Prefix, gateway netip.Addr, oif string,
	source RouteSource, adminDistance uint8, metric uint32) error {

	if !dest.IsValid() || !dest.Addr().Is4() {
		return errors.Configf("invalid route destination %s", dest)
	}
	if gateway.IsValid() && !gateway.Is4() {
		return errors.Configf("invalid gateway %s for %s", gateway, dest)
	}
	dest = dest.Masked()

	for i, route := range rt.routes {
		if route.Dest == dest && route.Source == source {
			rt.routes[i].Gateway = gateway
			rt.routes[i].OIF = oif
			rt.routes[i].AdminDistance = adminDistance
			rt.routes[i].Metric = metric
			LogDebug("Updated route [%s]: %s via %s (%s) AD=%d Metric=%d",
				RouteSourceToString(source), dest, gateway, oif, adminDistance, metric)
			return nil
		}
	}

	rt.routes = append(rt.routes, L3Route{
		Dest:          dest,
		Gateway:       gateway,
		OIF:           oif,
		AdminDistance: adminDistance,
		Metric:        metric,
		Source:        source,
	})
	LogDebug("Added route [%s]: %s via %s (%s) AD=%d Metric=%d",
		RouteSourceToString(source), dest, gateway, oif, adminDistance, metric)
	return nil
}

// AddDirectRoute adds the connected route of an interface subnet
func (rt *RoutingTable) AddDirectRoute(prefix netip.Prefix, oif string) {
	// masked IPv4 prefixes always validate
	_ = rt.AddRouteWithParams(prefix, netip.Addr{}, oif, ROUTE_SOURCE_CONNECTED, uint8(ROUTE_SOURCE_CONNECTED), 0)
}

// Routes returns a copy of the table
func (rt *RoutingTable) Routes() []L3Route {
	return append([]L3Route(nil), rt.routes...)
}

// LookupLPM performs longest prefix match lookup with best route selection
// Selection criteria (in order):
// 1. Longest prefix match (longest mask)
// 2. Lowest Administrative Distance
// 3. Lowest Metric
func (rt *RoutingTable) LookupLPM(dest netip.Addr) *L3Route {
	var bestRoute *L3Route

	for i := range rt.routes {
		route := &rt.routes[i]
		if !route.Dest.Contains(dest) {
			continue
		}
		switch {
		case bestRoute == nil, route.Dest.Bits() > bestRoute.Dest.Bits():
			bestRoute = route
		case route.Dest.Bits() < bestRoute.Dest.Bits():
		case route.AdminDistance < bestRoute.AdminDistance:
			bestRoute = route
		case route.AdminDistance == bestRoute.AdminDistance && route.Metric < bestRoute.Metric:
			bestRoute = route
		}
	}

	if bestRoute == nil {
		LogDebug("LPM: no route to %s", dest)
	}
	return bestRoute
}

// DumpRoutingTable prints the routing table in Cisco-like format
func (rt *RoutingTable) DumpRoutingTable(w io.Writer, nodeName string) {
	fmt.Fprintf(w, "\n=== Routing Table for Node: %s ===\n", nodeName)
	fmt.Fprintf(w, "Legend: C=Connected, S=Static\n")
	fmt.Fprintf(w, "%-3s %-20s %-20s %-16s %-4s %-8s\n",
		"Src", "Destination", "Gateway", "Interface", "AD", "Metric")
	fmt.Fprintf(w, "%-3s %-20s %-20s %-16s %-4s %-8s\n",
		"---", "---------------", "---------------", "-------------", "---", "------")

	if len(rt.routes) == 0 {
		fmt.Fprintf(w, "(empty)\n")
		return
	}

	routes := rt.Routes()
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Dest.Addr().Less(routes[j].Dest.Addr())
	})
	for _, route := range routes {
		gateway := "0.0.0.0"
		if !route.IsDirect() {
			gateway = route.Gateway.String()
		}
		iface := route.OIF
		if iface == "" {
			iface = "NA"
		}
		fmt.Fprintf(w, "%-3s %-20s %-20s %-16s %-4d %-8d\n",
			RouteSourceToString(route.Source), route.Dest, gateway, iface,
			route.AdminDistance, route.Metric)
	}
	fmt.Fprintf(w, "\n")
}

// ====== Forwarding ======

// Drop reasons of the forwarder itself, next to the ones ARP reports
const (
	DROP_NO_ROUTE    = "no-route"
	DROP_TTL_EXPIRED = "ttl-expired"
	DROP_LINK_DOWN   = "link-down"
	DROP_MALFORMED   = "malformed"
)

var forwarder_drop_reasons = []string{
	arp.DropUnbuffered.String(),
	arp.DropOverflow.String(),
	arp.DropExhausted.String(),
	arp.DropAbandoned.String(),
	arp.DropFlushed.String(),
	DROP_NO_ROUTE,
	DROP_TTL_EXPIRED,
	DROP_LINK_DOWN,
	DROP_MALFORMED,
}

// delivery is a packet that reached its destination node
type delivery struct {
	at      time.Duration
	src     netip.Addr
	dst     netip.Addr
	ttl     uint8
	payload []byte
}

// forwarder is the node's IP/MPLS layer. It resolves next hops through the
// ARP module and takes back the packets ARP buffers.
type forwarder struct {
	node  *Node
	ip_id uint16
	drops map[string]*atomic.Uint64

	sent       atomic.Uint64
	forwarded  atomic.Uint64
	delivered  atomic.Uint64
	deliveries []delivery
}

func newForwarder(node *Node) *forwarder {
	f := &forwarder{
		node:  node,
		drops: make(map[string]*atomic.Uint64, len(forwarder_drop_reasons)),
	}
	for _, reason := range forwarder_drop_reasons {
		f.drops[reason] = new(atomic.Uint64)
	}
	return f
}

func (f *forwarder) drop(reason string, what string) {
	if c, ok := f.drops[reason]; ok {
		c.Add(1)
	}
	LogDebug("L3: Node %s dropped %s (%s)", f.node.name, what, reason)
}

// Drops returns the drop counters by reason
func (f *forwarder) Drops() map[string]uint64 {
	counts := make(map[string]uint64, len(f.drops))
	for reason, c := range f.drops {
		counts[reason] = c.Load()
	}
	return counts
}

// Release sends a packet ARP held until its next hop resolved
func (f *forwarder) Release(pkt arp.QueuedPacket, hw arp.HardwareAddress) {
	intf := f.node.interfaceAt(pkt.Interface)
	if intf == nil {
		f.drop(DROP_LINK_DOWN, "released packet")
		return
	}
	LogDebug("L3: Node %s releasing %s packet for %s via %s",
		f.node.name, pkt.Network, pkt.NextHop, get_interface_name(intf))
	f.transmit(intf, hw, pkt.Payload, pkt.Network)
}

// Drop accounts for a packet ARP freed without sending
func (f *forwarder) Drop(pkt arp.QueuedPacket, reason arp.DropReason) {
	f.drop(reason.String(), fmt.Sprintf("%s packet for %s", pkt.Network, pkt.NextHop))
}

func (f *forwarder) transmit(intf *Interface, hw arp.HardwareAddress, pkt []byte, network arp.NetworkType) {
	ethertype := layers.EthernetTypeIPv4
	if network == arp.NetworkMPLS {
		ethertype = layers.EthernetTypeMPLSUnicast
	}
	if err := f.node.emit(intf, hw, ethertype, pkt); err != nil {
		f.drop(DROP_LINK_DOWN, err.Error())
		return
	}
	f.sent.Add(1)
}

// SendIP originates an IPv4 packet carrying payload. A non-zero label pushes
// an MPLS label in front of the IP header.
func (f *forwarder) SendIP(dst netip.Addr, payload []byte, label uint32, priority int) error {
	node := f.node
	if !dst.Is4() {
		return errors.Errorf("node %s: destination %s is not IPv4", node.name, dst)
	}

	var oif *Interface
	var route *L3Route
	if !node.is_local_address(dst) {
		route = node.routes.LookupLPM(dst)
		if route == nil {
			f.drop(DROP_NO_ROUTE, "packet for "+dst.String())
			return errors.Errorf("node %s: no route to %s", node.name, dst)
		}
		oif = node_get_matching_intf_by_name(node, route.OIF)
	}

	src := node.loopback
	if oif != nil && oif.IsIPConfigured() {
		src = oif.prefix.Addr()
	}
	if !src.IsValid() {
		src = netip.IPv4Unspecified()
	}

	f.ip_id++
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TOS:      uint8(priority&0x07) << 5,
		Id:       f.ip_id,
		Flags:    layers.IPv4DontFragment,
		TTL:      IP_DEFAULT_TTL,
		Protocol: layers.IPProtocol(PROTO_SIM_APP),
		SrcIP:    src.AsSlice(),
		DstIP:    dst.AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	serializable := []gopacket.SerializableLayer{ip, gopacket.Payload(payload)}
	network := arp.NetworkIP
	if label != 0 {
		mpls := &layers.MPLS{Label: label, TrafficClass: uint8(priority & 0x07), StackBottom: true, TTL: IP_DEFAULT_TTL}
		serializable = append([]gopacket.SerializableLayer{mpls}, serializable...)
		network = arp.NetworkMPLS
	}
	if err := gopacket.SerializeLayers(buf, opts, serializable...); err != nil {
		return errors.Annotatef(err, "node %s: build packet", node.name)
	}
	pkt := append([]byte(nil), buf.Bytes()...)

	if route == nil {
		f.deliver(ip, payload)
		return nil
	}
	LogInfo("L3: Node %s sending to %s via %s", node.name, dst, route.OIF)
	return f.forward(route, oif, dst, pkt, network, priority, -1)
}

// forward resolves the next hop of route and sends or hands pkt to ARP
func (f *forwarder) forward(route *L3Route, oif *Interface, dst netip.Addr, pkt []byte,
	network arp.NetworkType, priority int, incoming int) error {

	if oif == nil || oif.down || oif.link == nil {
		f.drop(DROP_LINK_DOWN, "packet for "+dst.String())
		return nil
	}
	next_hop := dst
	if !route.IsDirect() {
		next_hop = route.Gateway
	}

	hw, outcome, err := f.node.arp.Resolve(arp.Request{
		Address:           next_hop,
		Interface:         oif.index,
		Protocol:          arp.ProtocolIP,
		Priority:          priority,
		Packet:            pkt,
		IncomingInterface: incoming,
		Network:           network,
	})
	if err != nil {
		return errors.Annotatef(err, "node %s", f.node.name)
	}
	if outcome == arp.Resolved {
		f.transmit(oif, hw, pkt, network)
		return nil
	}
	LogDebug("L3: Node %s: next hop %s %s", f.node.name, next_hop, outcome)
	return nil
}

func (f *forwarder) deliver(ip *layers.IPv4, payload []byte) {
	src, _ := netip.AddrFromSlice(ip.SrcIP)
	dst, _ := netip.AddrFromSlice(ip.DstIP)
	d := delivery{
		src:     src.Unmap(),
		dst:     dst.Unmap(),
		ttl:     ip.TTL,
		payload: append([]byte(nil), payload...),
	}
	if f.node.graph != nil {
		d.at = f.node.graph.sched.Now()
	}
	f.deliveries = append(f.deliveries, d)
	f.delivered.Add(1)
	LogInfo("L3: Node %s delivered %d bytes from %s (TTL=%d)", f.node.name, len(payload), d.src, ip.TTL)
}

// receiveIP handles an IPv4 packet that arrived on intf
func (f *forwarder) receiveIP(intf *Interface, pkt []byte) {
	decoded := gopacket.NewPacket(pkt, layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ip, ok := decoded.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		f.drop(DROP_MALFORMED, "IPv4 packet on "+get_interface_name(intf))
		return
	}
	dst, _ := netip.AddrFromSlice(ip.DstIP)
	dst = dst.Unmap()

	if f.node.is_local_address(dst) {
		f.deliver(ip, ip.Payload)
		return
	}

	if ip.TTL <= 1 {
		f.drop(DROP_TTL_EXPIRED, "packet for "+dst.String())
		return
	}
	ip.TTL--

	route := f.node.routes.LookupLPM(dst)
	if route == nil {
		f.drop(DROP_NO_ROUTE, "packet for "+dst.String())
		return
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(ip.Payload)); err != nil {
		f.drop(DROP_MALFORMED, err.Error())
		return
	}
	fwd_pkt := append([]byte(nil), buf.Bytes()...)

	LogInfo("L3: Node %s forwarding %s -> %s via %s (TTL=%d)",
		f.node.name, ip.SrcIP, dst, route.OIF, ip.TTL)
	f.forwarded.Add(1)
	oif := node_get_matching_intf_by_name(f.node, route.OIF)
	f.report(f.forward(route, oif, dst, fwd_pkt, arp.NetworkIP, int(ip.TOS>>5), intf.index))
}

// report hands an error from the receive path to the scenario, which halts
// the run when it is fatal
func (f *forwarder) report(err error) {
	if err == nil {
		return
	}
	if f.node.graph == nil {
		LogWarn("%v", err)
		return
	}
	f.node.graph.report(err)
}

// receiveMPLS pops the single label of an MPLS packet and routes the IPv4
// packet underneath
func (f *forwarder) receiveMPLS(intf *Interface, pkt []byte) {
	decoded := gopacket.NewPacket(pkt, layers.LayerTypeMPLS, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	mpls, ok := decoded.Layer(layers.LayerTypeMPLS).(*layers.MPLS)
	if !ok {
		f.drop(DROP_MALFORMED, "MPLS packet on "+get_interface_name(intf))
		return
	}
	LogDebug("L3: Node %s popped label %d", f.node.name, mpls.Label)
	f.receiveIP(intf, mpls.Payload)
}
