package main

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"go-arp-sim/src/arp"
	"go-arp-sim/src/internal/errors"
)

// YAML topology configuration structures
type TopologyConfig struct {
	Topology TopologyInfo    `yaml:"topology"`
	ARP      ARPConfig       `yaml:"arp"`
	Nodes    []NodeConfig    `yaml:"nodes"`
	Links    []LinkConfig    `yaml:"links"`
	Traffic  []TrafficConfig `yaml:"traffic"`
	Faults   []FaultConfig   `yaml:"faults"`
}

type TopologyInfo struct {
	Name string `yaml:"name"`
}

// ARPConfig holds the ARP parameters shared by every node. Zero values take
// the protocol defaults.
type ARPConfig struct {
	ExpireInterval  time.Duration `yaml:"expire_interval"`
	MaxRetries      *int          `yaml:"max_retries"` // unset takes the default, 0 sends one request
	RetryInterval   time.Duration `yaml:"retry_interval"`
	AbandonInterval time.Duration `yaml:"abandon_interval"`
	BufferSize      int           `yaml:"buffer_size"`
	StaticFile      string        `yaml:"static_file"` // relative to the topology file
	LinkDelay       time.Duration `yaml:"link_delay"`
}

type NodeConfig struct {
	Name       string            `yaml:"name"`
	ID         int               `yaml:"id"`
	Loopback   string            `yaml:"loopback"`
	Interfaces []InterfaceConfig `yaml:"interfaces"`
	Routes     []RouteConfig     `yaml:"routes"`
}

type InterfaceConfig struct {
	Name        string   `yaml:"name"`
	IP          string   `yaml:"ip"`
	Mask        int      `yaml:"mask"`
	Hardware    string   `yaml:"hardware"` // "ethernet" (default) or "atm"
	MAC         string   `yaml:"mac"`      // overrides the generated address
	Buffering   *bool    `yaml:"buffering"`
	BufferSize  int      `yaml:"buffer_size"`
	Promiscuous bool     `yaml:"promiscuous"`
	DHCP        []string `yaml:"dhcp"` // candidate addresses, "a.b.c.d/len"
}

type RouteConfig struct {
	Dest    string `yaml:"dest"`
	Mask    int    `yaml:"mask"`
	Gateway string `yaml:"gateway"`
	OIF     string `yaml:"oif"`
}

type LinkConfig struct {
	FromNode      string        `yaml:"from_node"`
	FromInterface string        `yaml:"from_interface"`
	ToNode        string        `yaml:"to_node"`
	ToInterface   string        `yaml:"to_interface"`
	Cost          int           `yaml:"cost"`
	Delay         time.Duration `yaml:"delay"`
}

// TrafficConfig schedules packets from a node. To is an IPv4 address or a
// "<node>:<interface>" reference.
type TrafficConfig struct {
	At        time.Duration `yaml:"at"`
	From      string        `yaml:"from"`
	To        string        `yaml:"to"`
	Payload   string        `yaml:"payload"`
	Count     int           `yaml:"count"`
	Interval  time.Duration `yaml:"interval"`
	MPLSLabel uint32        `yaml:"mpls_label"`
	Priority  int           `yaml:"priority"`
}

// FaultConfig takes an interface down at At for Duration
type FaultConfig struct {
	At        time.Duration `yaml:"at"`
	Node      string        `yaml:"node"`
	Interface string        `yaml:"interface"`
	Duration  time.Duration `yaml:"duration"`
}

func load_topology_from_yaml(filename string) (*Graph, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read topology file %s", filename)
	}

	var config TopologyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Configf("failed to parse YAML topology %s: %v", filename, err)
	}

	if err := validate_topology_config(&config); err != nil {
		return nil, errors.Annotate(err, "topology validation failed")
	}

	var static []arp.StaticEntry
	if config.ARP.StaticFile != "" {
		path := config.ARP.StaticFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(filename), path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Configf("static ARP table: %v", err)
		}
		static, err = arp.ParseStatic(f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	graph, err := build_graph_from_config(&config, static)
	if err != nil {
		return nil, errors.Annotate(err, "failed to build graph")
	}
	return graph, nil
}

// validate_topology_config performs basic validation on the topology configuration
func validate_topology_config(config *TopologyConfig) error {
	if config.Topology.Name == "" {
		return errors.Configf("topology name is required")
	}

	if len(config.Nodes) == 0 {
		return errors.Configf("at least one node is required")
	}

	if config.ARP.MaxRetries != nil && *config.ARP.MaxRetries < 0 {
		return errors.Configf("max_retries must not be negative")
	}

	nodeMap := make(map[string]bool)
	interfaceMap := make(map[string]bool) // node:interface format

	for _, node := range config.Nodes {
		if node.Name == "" {
			return errors.Configf("node name is required")
		}
		if len(node.Name) >= NODE_NAME_SIZE {
			return errors.Configf("node name %s is too long", node.Name)
		}
		if nodeMap[node.Name] {
			return errors.Configf("duplicate node name: %s", node.Name)
		}
		nodeMap[node.Name] = true

		if len(node.Interfaces) > MAX_INTF_PER_NODE {
			return errors.Configf("node %s has more than %d interfaces", node.Name, MAX_INTF_PER_NODE)
		}

		for _, intf := range node.Interfaces {
			if intf.Name == "" {
				return errors.Configf("interface name is required for node %s", node.Name)
			}

			intfKey := fmt.Sprintf("%s:%s", node.Name, intf.Name)
			if interfaceMap[intfKey] {
				return errors.Configf("duplicate interface name %s on node %s", intf.Name, node.Name)
			}
			interfaceMap[intfKey] = true

			if intf.IP != "" {
				if intf.Mask < 1 || intf.Mask > 32 {
					return errors.Configf("invalid subnet mask %d for interface %s on node %s", intf.Mask, intf.Name, node.Name)
				}
			}
			if intf.Hardware != "" {
				if _, err := arp.ParseHardwareType(intf.Hardware); err != nil {
					return errors.Annotatef(err, "interface %s on node %s", intf.Name, node.Name)
				}
			}
			if intf.BufferSize < 0 {
				return errors.Configf("negative buffer size on interface %s of node %s", intf.Name, node.Name)
			}
			for _, candidate := range intf.DHCP {
				if _, err := netip.ParsePrefix(candidate); err != nil {
					return errors.Configf("bad address candidate %q on interface %s of node %s", candidate, intf.Name, node.Name)
				}
			}
		}
	}

	for i, link := range config.Links {
		if link.FromNode == "" || link.ToNode == "" {
			return errors.Configf("link %d: from_node and to_node are required", i)
		}
		if link.FromInterface == "" || link.ToInterface == "" {
			return errors.Configf("link %d: from_interface and to_interface are required", i)
		}
		if !nodeMap[link.FromNode] {
			return errors.Configf("link %d: from_node %s not found", i, link.FromNode)
		}
		if !nodeMap[link.ToNode] {
			return errors.Configf("link %d: to_node %s not found", i, link.ToNode)
		}

		fromIntfKey := fmt.Sprintf("%s:%s", link.FromNode, link.FromInterface)
		toIntfKey := fmt.Sprintf("%s:%s", link.ToNode, link.ToInterface)
		if !interfaceMap[fromIntfKey] {
			return errors.Configf("link %d: from_interface %s not found on node %s", i, link.FromInterface, link.FromNode)
		}
		if !interfaceMap[toIntfKey] {
			return errors.Configf("link %d: to_interface %s not found on node %s", i, link.ToInterface, link.ToNode)
		}
		if link.Cost < 0 {
			return errors.Configf("link %d: cost must be non-negative", i)
		}
		if link.Delay < 0 {
			return errors.Configf("link %d: delay must be non-negative", i)
		}
	}

	for i, traffic := range config.Traffic {
		if !nodeMap[traffic.From] {
			return errors.Configf("traffic %d: node %s not found", i, traffic.From)
		}
		if traffic.To == "" {
			return errors.Configf("traffic %d: destination is required", i)
		}
		if traffic.Count < 0 || traffic.At < 0 {
			return errors.Configf("traffic %d: count and start time must be non-negative", i)
		}
	}

	for i, fault := range config.Faults {
		if !interfaceMap[fault.Node+":"+fault.Interface] {
			return errors.Configf("fault %d: interface %s not found on node %s", i, fault.Interface, fault.Node)
		}
		if fault.At < 0 || fault.Duration <= 0 {
			return errors.Configf("fault %d: start must be non-negative and duration positive", i)
		}
	}

	return nil
}

func build_graph_from_config(config *TopologyConfig, static []arp.StaticEntry) (*Graph, error) {
	graph := create_new_graph(config.Topology.Name)
	graph.arp_config = arp.Config{
		ExpireInterval:  config.ARP.ExpireInterval,
		MaxRetries:      config.ARP.MaxRetries,
		RetryInterval:   config.ARP.RetryInterval,
		AbandonInterval: config.ARP.AbandonInterval,
	}
	graph.link_delay = config.ARP.LinkDelay
	graph.traffic = config.Traffic
	graph.faults = config.Faults

	nodeMap := make(map[string]*Node)

	// Nodes and their interfaces
	for i, nodeConfig := range config.Nodes {
		id := nodeConfig.ID
		if id == 0 {
			id = i + 1
		}
		node := create_graph_node(graph, nodeConfig.Name, id)
		nodeMap[nodeConfig.Name] = node

		if nodeConfig.Loopback != "" && !node.SetLoopbackIP(nodeConfig.Loopback) {
			return nil, errors.Configf("invalid loopback %s on node %s", nodeConfig.Loopback, nodeConfig.Name)
		}

		for _, intfConfig := range nodeConfig.Interfaces {
			hw_type := arp.HardwareEthernet
			if intfConfig.Hardware != "" {
				hw_type, _ = arp.ParseHardwareType(intfConfig.Hardware)
			}
			intf, err := node_add_interface(node, intfConfig.Name, hw_type)
			if err != nil {
				return nil, err
			}
			if intfConfig.MAC != "" {
				if err := intf.SetMacConfig(intfConfig.MAC); err != nil {
					return nil, errors.Annotatef(err, "interface %s", get_interface_name(intf))
				}
			}
			if intfConfig.Buffering != nil {
				intf.buffering = *intfConfig.Buffering
			}
			intf.buffer_size = intfConfig.BufferSize
			if intf.buffer_size == 0 {
				intf.buffer_size = config.ARP.BufferSize
			}
			if intf.buffering && intf.buffer_size <= 0 {
				intf.buffer_size = arp.DEFAULT_BUFFER_SIZE
			}
			intf.promiscuous = intfConfig.Promiscuous
			for _, candidate := range intfConfig.DHCP {
				p, _ := netip.ParsePrefix(candidate)
				intf.dhcp_candidates = append(intf.dhcp_candidates, p)
			}
		}
	}

	// Links between nodes
	for _, linkConfig := range config.Links {
		from := node_get_matching_intf_by_name(nodeMap[linkConfig.FromNode], linkConfig.FromInterface)
		to := node_get_matching_intf_by_name(nodeMap[linkConfig.ToNode], linkConfig.ToInterface)

		delay := linkConfig.Delay
		if delay == 0 {
			delay = graph.link_delay
		}
		if err := insert_link_between_two_nodes(from, to, uint32(linkConfig.Cost), delay); err != nil {
			return nil, err
		}
	}

	// ARP modules, then addresses and routes, which feed into them
	for _, nodeConfig := range config.Nodes {
		node := nodeMap[nodeConfig.Name]
		if err := node_init_arp(node, graph.arp_config); err != nil {
			return nil, err
		}

		for _, intfConfig := range nodeConfig.Interfaces {
			if intfConfig.IP == "" {
				continue
			}
			if err := node_set_intf_ip_address(node, intfConfig.Name, intfConfig.IP, intfConfig.Mask); err != nil {
				return nil, errors.Annotatef(err, "node %s", nodeConfig.Name)
			}
		}

		for _, routeConfig := range nodeConfig.Routes {
			dest, err := parse_interface_prefix(routeConfig.Dest, routeConfig.Mask)
			if err != nil {
				return nil, errors.Annotatef(err, "route on node %s", nodeConfig.Name)
			}
			gateway, err := netip.ParseAddr(routeConfig.Gateway)
			if err != nil {
				return nil, errors.Configf("route %s on node %s: bad gateway %q", dest, nodeConfig.Name, routeConfig.Gateway)
			}
			oif := routeConfig.OIF
			if oif == "" {
				intf := node_get_matching_subnet_interface(node, gateway)
				if intf == nil {
					return nil, errors.Configf("route %s on node %s: gateway %s is not on an attached subnet",
						dest, nodeConfig.Name, gateway)
				}
				oif = intf.name
			}
			if node_get_matching_intf_by_name(node, oif) == nil {
				return nil, errors.Configf("route %s on node %s: no interface %s", dest, nodeConfig.Name, oif)
			}
			if err := node.routes.AddRoute(dest, gateway, oif); err != nil {
				return nil, err
			}
		}
	}

	// Static ARP entries need every interface address to resolve references
	if len(static) > 0 {
		resolve := func(ref string) (netip.Addr, error) {
			return resolve_interface_reference(graph, ref)
		}
		for _, node := range graph.node_list {
			n, err := node.arp.LoadStatic(static, node.id, resolve)
			if err != nil {
				return nil, errors.Annotatef(err, "node %s", node.name)
			}
			if n > 0 {
				LogInfo("Node %s: loaded %d static ARP entries", node.name, n)
			}
		}
	}

	return graph, nil
}

// node_init_arp builds the node's ARP module from its interfaces
func node_init_arp(node *Node, cfg arp.Config) error {
	m, err := arp.New(node.name, cfg, arp.Deps{
		Scheduler: node.graph.sched,
		Link:      node,
		Forwarder: node.fwd,
		Checker:   node.checker,
	}, node.arpInterfaces())
	if err != nil {
		return err
	}
	node.arp = m
	return nil
}
