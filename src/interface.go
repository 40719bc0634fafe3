package main

import (
	"net/netip"

	"go-arp-sim/src/arp"
	"go-arp-sim/src/internal/errors"
)

// ====== Interface configuration ======

func (intf *Interface) GetMac() arp.HardwareAddress {
	return intf.hw
}

func (intf *Interface) GetPrefix() netip.Prefix {
	return intf.prefix
}

func (intf *Interface) IsIPConfigured() bool {
	return intf.prefix.IsValid()
}

func (intf *Interface) IsUp() bool {
	return !intf.down
}

// SetIPConfig assigns ip/mask to the interface, installs the connected
// route and tells the node's ARP module about the new address.
//
// Args:
//   - ip_str: IPv4 address in dotted quad notation
//   - mask: prefix length, 1..32
//
// Returns: error when the address is invalid
func (intf *Interface) SetIPConfig(ip_str string, mask int) error {
	if intf == nil {
		return errors.New("nil interface")
	}
	prefix, err := parse_interface_prefix(ip_str, mask)
	if err != nil {
		return err
	}
	return intf.setPrefix(prefix)
}

func (intf *Interface) setPrefix(prefix netip.Prefix) error {
	intf.prefix = prefix

	node := intf.att_node
	if node.routes != nil {
		node.routes.AddDirectRoute(prefix, intf.name)
	}
	if node.arp != nil {
		if err := node.arp.SetInterfaceAddress(intf.index, prefix); err != nil {
			return err
		}
	}
	LogInfo("Interface %s:%s: configured %s", node.name, intf.name, prefix)
	return nil
}

// SetMacConfig overrides the generated hardware address
func (intf *Interface) SetMacConfig(mac_str string) error {
	hw, err := arp.ParseHardwareAddress(intf.hw.Type, mac_str)
	if err != nil {
		return err
	}
	intf.hw = hw
	return nil
}

// node_set_intf_ip_address sets IP address on a node's interface
func node_set_intf_ip_address(node *Node, local_if string, ip_addr string, mask int) error {
	if node == nil {
		return errors.New("nil node")
	}

	intf := node_get_matching_intf_by_name(node, local_if)
	if intf == nil {
		return errors.Errorf("interface %s not found on node %s", local_if, node.name)
	}
	return intf.SetIPConfig(ip_addr, mask)
}

// get_interface_name returns "<node>:<interface>"
func get_interface_name(intf *Interface) string {
	if intf == nil {
		return ""
	}
	return intf.att_node.name + ":" + intf.name
}

// get_remote_interface gets the interface on the other side of the link
func get_remote_interface(local_intf *Interface) *Interface {
	if local_intf == nil || local_intf.link == nil {
		return nil
	}

	link := local_intf.link
	if link.intf1 == local_intf {
		return link.intf2
	} else if link.intf2 == local_intf {
		return link.intf1
	}

	return nil
}

// node_get_matching_intf_by_name finds an interface on a node by name
func node_get_matching_intf_by_name(node *Node, intf_name string) *Interface {
	if node == nil || intf_name == "" {
		return nil
	}

	for _, intf := range node.interfaces() {
		if intf.name == intf_name {
			return intf
		}
	}

	return nil
}
