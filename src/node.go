package main

import (
	"net/netip"
	"time"

	"go-arp-sim/src/arp"
)

const (
	IF_NAME_SIZE      = 16
	NODE_NAME_SIZE    = 16
	MAX_INTF_PER_NODE = 10
)

type Interface struct {
	index    int
	name     string
	att_node *Node
	link     *Link

	hw          arp.HardwareAddress
	prefix      netip.Prefix // invalid until an address is configured
	buffering   bool
	buffer_size int
	promiscuous bool
	down        bool

	// candidate addresses tried by the address checker, in order
	dhcp_candidates []netip.Prefix

	frames_out     uint64
	frames_in      uint64
	frames_dropped uint64
}

type Link struct {
	intf1 *Interface
	intf2 *Interface
	cost  uint32
	delay time.Duration
}

type Node struct {
	id       int
	name     string
	graph    *Graph
	intf     [MAX_INTF_PER_NODE]*Interface
	loopback netip.Addr

	arp     *arp.Module
	routes  *RoutingTable
	fwd     *forwarder
	checker *addressChecker
}

// SetLoopbackIP sets the loopback address of the node
func (node *Node) SetLoopbackIP(ip_str string) bool {
	if node == nil {
		return false
	}
	addr, err := netip.ParseAddr(ip_str)
	if err != nil || !addr.Is4() {
		return false
	}
	node.loopback = addr
	return true
}

// interfaces returns the configured interfaces in index order
func (node *Node) interfaces() []*Interface {
	var out []*Interface
	for i := 0; i < MAX_INTF_PER_NODE; i++ {
		if node.intf[i] != nil {
			out = append(out, node.intf[i])
		}
	}
	return out
}

// interfaceAt returns the interface with the given index, or nil
func (node *Node) interfaceAt(index int) *Interface {
	if index < 0 || index >= MAX_INTF_PER_NODE {
		return nil
	}
	return node.intf[index]
}

// is_local_address reports whether addr belongs to this node: one of its
// interface addresses or its loopback.
func (node *Node) is_local_address(addr netip.Addr) bool {
	if node.loopback.IsValid() && node.loopback == addr {
		return true
	}
	for _, intf := range node.interfaces() {
		if intf.prefix.IsValid() && intf.prefix.Addr() == addr {
			return true
		}
	}
	return false
}

// node_get_matching_subnet_interface returns the interface whose subnet
// contains addr
func node_get_matching_subnet_interface(node *Node, addr netip.Addr) *Interface {
	for _, intf := range node.interfaces() {
		if intf.prefix.IsValid() && intf.prefix.Masked().Contains(addr) {
			return intf
		}
	}
	return nil
}

// arpInterfaces describes the node's interfaces to its ARP module
func (node *Node) arpInterfaces() []arp.Interface {
	var out []arp.Interface
	for _, intf := range node.interfaces() {
		out = append(out, arp.Interface{
			Index:       intf.index,
			Name:        intf.name,
			Hardware:    intf.hw,
			Address:     intf.prefix,
			Buffering:   intf.buffering,
			BufferSize:  intf.buffer_size,
			Promiscuous: intf.promiscuous,
		})
	}
	return out
}
