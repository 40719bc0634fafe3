package main

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"go-arp-sim/src/arp"
	"go-arp-sim/src/internal/errors"
	"go-arp-sim/src/sim"
)

type Graph struct {
	topology_name string
	node_list     []*Node
	sched         *sim.Scheduler
	arp_config    arp.Config
	link_delay    time.Duration

	traffic []TrafficConfig
	faults  []FaultConfig
	trace   bool
	started bool
}

func get_topology_name(graph *Graph) string {
	if graph == nil {
		return ""
	}
	return graph.topology_name
}

// cleanup_graph_resources tears down every node's ARP module. Buffered
// packets are reported as dropped.
func cleanup_graph_resources(graph *Graph) {
	if graph == nil {
		return
	}

	LogInfo("Cleaning up resources for topology: %s", get_topology_name(graph))
	for _, node := range graph.node_list {
		if node != nil && node.arp != nil {
			node.arp.Close()
		}
	}
	LogInfo("Resource cleanup completed for topology: %s", get_topology_name(graph))
}

func get_nbr_node(interface_ *Interface) *Node {
	remote := get_remote_interface(interface_)
	if remote == nil {
		return nil
	}
	return remote.att_node
}

func get_node_intf_available_slot(node *Node) int {
	for i := 0; i < MAX_INTF_PER_NODE; i++ {
		if node.intf[i] == nil {
			return i
		}
	}
	return -1
}

// get_node_by_name finds a node in the graph
func get_node_by_name(graph *Graph, name string) *Node {
	if graph == nil {
		return nil
	}
	for _, node := range graph.node_list {
		if node.name == name {
			return node
		}
	}
	return nil
}

func create_new_graph(topology_name string) *Graph {
	return &Graph{
		topology_name: topology_name,
		sched:         sim.NewScheduler(),
	}
}

func create_graph_node(graph *Graph, node_name string, id int) *Node {
	node := &Node{
		id:     id,
		name:   node_name,
		graph:  graph,
		routes: InitRoutingTable(),
	}
	node.fwd = newForwarder(node)
	node.checker = newAddressChecker(node)
	graph.node_list = append(graph.node_list, node)
	return node
}

// node_add_interface attaches a new, unlinked interface to node
func node_add_interface(node *Node, if_name string, hw_type arp.HardwareType) (*Interface, error) {
	if len(if_name) == 0 || len(if_name) >= IF_NAME_SIZE {
		return nil, errors.Configf("bad interface name %q on node %s", if_name, node.name)
	}
	if node_get_matching_intf_by_name(node, if_name) != nil {
		return nil, errors.Configf("duplicate interface %s on node %s", if_name, node.name)
	}
	slot := get_node_intf_available_slot(node)
	if slot == -1 {
		return nil, errors.Configf("node %s has no free interface slot", node.name)
	}

	intf := &Interface{
		index:     slot,
		name:      if_name,
		att_node:  node,
		hw:        generate_hardware_address(hw_type),
		buffering: true,
	}
	node.intf[slot] = intf
	return intf, nil
}

func insert_link_between_two_nodes(intf1 *Interface, intf2 *Interface, cost uint32, delay time.Duration) error {
	if intf1.link != nil || intf2.link != nil {
		return errors.Configf("interface %s or %s is already linked",
			get_interface_name(intf1), get_interface_name(intf2))
	}
	if intf1.hw.Type != intf2.hw.Type {
		return errors.Configf("link %s - %s joins %s and %s interfaces",
			get_interface_name(intf1), get_interface_name(intf2), intf1.hw.Type, intf2.hw.Type)
	}

	link := &Link{
		intf1: intf1,
		intf2: intf2,
		cost:  cost,
		delay: delay,
	}
	intf1.link = link
	intf2.link = link
	return nil
}

// resolve_interface_reference turns "<node>:<interface>" into the address
// configured on that interface
func resolve_interface_reference(graph *Graph, ref string) (netip.Addr, error) {
	node_name, if_name, ok := strings.Cut(ref, ":")
	if !ok {
		return netip.Addr{}, errors.Errorf("bad interface reference %q", ref)
	}
	node := get_node_by_name(graph, node_name)
	if node == nil {
		return netip.Addr{}, errors.Errorf("no node %s", node_name)
	}
	intf := node_get_matching_intf_by_name(node, if_name)
	if intf == nil {
		return netip.Addr{}, errors.Errorf("no interface %s on node %s", if_name, node_name)
	}
	if !intf.IsIPConfigured() {
		return netip.Addr{}, errors.Errorf("interface %s has no address", ref)
	}
	return intf.prefix.Addr(), nil
}

// resolve_address accepts an IPv4 literal or an interface reference
func resolve_address(graph *Graph, s string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr, nil
	}
	return resolve_interface_reference(graph, s)
}

func dump_graph_info(graph *Graph) {
	fmt.Fprintf(out, "=== Graph Information ===\n")
	fmt.Fprintf(out, "Topology Name: %s\n", graph.topology_name)
	fmt.Fprintf(out, "Total Nodes: %d\n", len(graph.node_list))
	fmt.Fprintf(out, "Simulation Time: %v\n", graph.sched.Now())

	if len(graph.node_list) == 0 {
		fmt.Fprintln(out, "No nodes in the graph.")
		return
	}

	fmt.Fprintln(out, "\n--- Node Details ---")

	for i, node := range graph.node_list {
		fmt.Fprintf(out, "\nNode #%d: %s (id %d)\n", i+1, node.name, node.id)

		if node.loopback.IsValid() {
			fmt.Fprintf(out, "  Loopback: %s (configured)\n", node.loopback)
		} else {
			fmt.Fprintf(out, "  Loopback: Not configured\n")
		}

		interfaces := node.interfaces()
		fmt.Fprintf(out, "  Interfaces: %d\n", len(interfaces))

		for _, intf := range interfaces {
			fmt.Fprintf(out, "    Interface: %s (index %d)\n", intf.name, intf.index)
			fmt.Fprintf(out, "      %s: %s\n", intf.hw.Type, intf.hw)

			if intf.IsIPConfigured() {
				fmt.Fprintf(out, "      IP: %s\n", intf.prefix)
			} else {
				fmt.Fprintf(out, "      IP: not configured\n")
			}

			flags := []string{}
			if intf.buffering {
				flags = append(flags, fmt.Sprintf("buffering(%d)", intf.buffer_size))
			}
			if intf.promiscuous {
				flags = append(flags, "promiscuous")
			}
			if intf.down {
				flags = append(flags, "DOWN")
			}
			if len(flags) > 0 {
				fmt.Fprintf(out, "      Flags: %s\n", strings.Join(flags, " "))
			}

			if intf.link != nil {
				if neighbor := get_nbr_node(intf); neighbor != nil {
					fmt.Fprintf(out, "      Connected to: %s (cost: %d, delay: %v)\n",
						neighbor.name, intf.link.cost, intf.link.delay)
				}
			} else {
				fmt.Fprintf(out, "      Connected to: None\n")
			}
		}
	}

	fmt.Fprintf(out, "\n=== End Graph Information ===\n")
}
