package main

import (
	"time"

	"go-arp-sim/src/internal/errors"
)

const DEFAULT_TRAFFIC_INTERVAL = time.Second

// Start schedules the topology's traffic and fault plans and the address
// acquisition of interfaces that have candidates but no address. It is a
// no-op after the first call.
func (graph *Graph) Start() {
	if graph.started {
		return
	}
	graph.started = true

	for _, node := range graph.node_list {
		for _, intf := range node.interfaces() {
			if len(intf.dhcp_candidates) == 0 || intf.IsIPConfigured() {
				continue
			}
			node, intf := node, intf
			graph.sched.After(0, func() {
				graph.report(node.checker.Start(intf))
			})
		}
	}

	for _, traffic := range graph.traffic {
		schedule_traffic(graph, traffic)
	}
	for _, fault := range graph.faults {
		schedule_fault(graph, fault)
	}
}

// Run starts the scenario if needed and advances virtual time by d
func (graph *Graph) Run(d time.Duration) error {
	graph.Start()
	return graph.sched.RunFor(d)
}

// report halts the run on fatal errors and logs the rest
func (graph *Graph) report(err error) {
	if err == nil {
		return
	}
	if errors.IsFatal(err) {
		graph.sched.Fail(err)
		return
	}
	LogWarn("%v", err)
}

func schedule_traffic(graph *Graph, traffic TrafficConfig) {
	node := get_node_by_name(graph, traffic.From)
	if node == nil {
		return
	}
	count := traffic.Count
	if count == 0 {
		count = 1
	}
	interval := traffic.Interval
	if interval <= 0 {
		interval = DEFAULT_TRAFFIC_INTERVAL
	}

	now := graph.sched.Now()
	for i := 0; i < count; i++ {
		at := traffic.At + time.Duration(i)*interval
		graph.sched.After(at-now, func() {
			// references resolve at send time so acquired addresses count
			dst, err := resolve_address(graph, traffic.To)
			if err != nil {
				LogWarn("Traffic from %s: %v", node.name, err)
				return
			}
			graph.report(node.fwd.SendIP(dst, []byte(traffic.Payload), traffic.MPLSLabel, traffic.Priority))
		})
	}
}

func schedule_fault(graph *Graph, fault FaultConfig) {
	node := get_node_by_name(graph, fault.Node)
	if node == nil {
		return
	}
	intf := node_get_matching_intf_by_name(node, fault.Interface)
	if intf == nil {
		return
	}

	now := graph.sched.Now()
	graph.sched.After(fault.At-now, func() {
		graph.report(interface_fault(intf, true))
	})
	graph.sched.After(fault.At+fault.Duration-now, func() {
		graph.report(interface_fault(intf, false))
	})
}

// interface_fault takes intf down (begin) or brings it back up. ARP flushes
// the interface's state on the way down and announces the address on the
// way up.
func interface_fault(intf *Interface, begin bool) error {
	node := intf.att_node
	if begin {
		LogWarn("Fault: %s down", get_interface_name(intf))
	} else {
		LogInfo("Fault: %s up", get_interface_name(intf))
	}
	intf.down = begin
	return node.arp.InterfaceFault(intf.index, begin)
}
