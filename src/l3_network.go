package main

import (
	"net"
	"net/netip"
	"sync/atomic"

	"go-arp-sim/src/arp"
	"go-arp-sim/src/internal/errors"
)

// ====== Addressing helpers ======

// ATM_ADDR_LEN is the length of a generated ATM (NSAP style) address.
const ATM_ADDR_LEN = 20

var mac_counter atomic.Uint32

// generate_unique_mac_address generates a unique Ethernet address with the
// locally administered vendor prefix aa:bb:cc
func generate_unique_mac_address() arp.HardwareAddress {
	n := mac_counter.Add(1)
	return arp.HardwareAddress{
		Type: arp.HardwareEthernet,
		Addr: net.HardwareAddr{0xaa, 0xbb, 0xcc, byte(n >> 16), byte(n >> 8), byte(n)},
	}
}

// generate_unique_atm_address generates a unique 20-byte ATM end system
// address under the private 0x47 authority format
func generate_unique_atm_address() arp.HardwareAddress {
	n := mac_counter.Add(1)
	addr := make(net.HardwareAddr, ATM_ADDR_LEN)
	addr[0] = 0x47
	addr[1], addr[2] = 0x00, 0x05
	addr[ATM_ADDR_LEN-4] = byte(n >> 24)
	addr[ATM_ADDR_LEN-3] = byte(n >> 16)
	addr[ATM_ADDR_LEN-2] = byte(n >> 8)
	addr[ATM_ADDR_LEN-1] = byte(n)
	return arp.HardwareAddress{Type: arp.HardwareATM, Addr: addr}
}

// generate_hardware_address picks the generator for the link type
func generate_hardware_address(t arp.HardwareType) arp.HardwareAddress {
	if t == arp.HardwareATM {
		return generate_unique_atm_address()
	}
	return generate_unique_mac_address()
}

// parse_interface_prefix validates an interface address and mask
func parse_interface_prefix(ip_str string, mask int) (netip.Prefix, error) {
	addr, err := netip.ParseAddr(ip_str)
	if err != nil || !addr.Is4() {
		return netip.Prefix{}, errors.Configf("invalid IPv4 address %q", ip_str)
	}
	if mask < 1 || mask > 32 {
		return netip.Prefix{}, errors.Configf("invalid subnet mask %d for %s", mask, ip_str)
	}
	return netip.PrefixFrom(addr, mask), nil
}
