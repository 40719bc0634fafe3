package main

import (
	"net/netip"
	"time"

	"go-arp-sim/src/internal/errors"
)

// addressCheckResult is one answer from the ARP module
type addressCheckResult struct {
	at        time.Duration
	intf      string
	candidate netip.Addr
	duplicate bool
}

// addressChecker acquires interface addresses the way a DHCP client checks
// an offer before using it: probe the candidate with ARP, take it if nobody
// answers, move on to the next candidate if someone does.
type addressChecker struct {
	node    *Node
	next    map[int]int // interface index -> next candidate to try
	results []addressCheckResult
}

func newAddressChecker(node *Node) *addressChecker {
	return &addressChecker{
		node: node,
		next: make(map[int]int),
	}
}

// Start probes the first untried candidate of intf
func (c *addressChecker) Start(intf *Interface) error {
	idx, ok := c.next[intf.index]
	if !ok {
		idx = 0
	}
	if idx >= len(intf.dhcp_candidates) {
		return errors.Errorf("%s: no address candidates left", get_interface_name(intf))
	}
	c.next[intf.index] = idx + 1

	candidate := intf.dhcp_candidates[idx]
	LogInfo("DHCP: %s probing %s", get_interface_name(intf), candidate)
	return c.node.arp.CheckAddress(candidate.Addr(), intf.index)
}

// Check probes an explicit candidate on intf without assigning it
func (c *addressChecker) Check(intf *Interface, candidate netip.Addr) error {
	LogInfo("DHCP: %s checking %s", get_interface_name(intf), candidate)
	return c.node.arp.CheckAddress(candidate, intf.index)
}

// AddressCheckResult receives the outcome of a probe
func (c *addressChecker) AddressCheckResult(ifIndex int, candidate netip.Addr, isDuplicate bool) {
	intf := c.node.interfaceAt(ifIndex)
	if intf == nil {
		return
	}

	r := addressCheckResult{
		intf:      intf.name,
		candidate: candidate,
		duplicate: isDuplicate,
	}
	if c.node.graph != nil {
		r.at = c.node.graph.sched.Now()
	}
	c.results = append(c.results, r)

	if isDuplicate {
		LogWarn("DHCP: %s: %s is already in use", get_interface_name(intf), candidate)
		if c.pending(intf, candidate) {
			if err := c.Start(intf); err != nil {
				LogWarn("DHCP: %v", err)
			}
		}
		return
	}

	LogInfo("DHCP: %s: %s is available", get_interface_name(intf), candidate)
	prefix, ok := c.candidate(intf, candidate)
	if !ok || intf.IsIPConfigured() {
		return
	}
	if err := intf.setPrefix(prefix); err != nil {
		LogError("DHCP: %s: %v", get_interface_name(intf), err)
	}
}

// pending reports whether candidate came from the interface's candidate list
// and the interface is still waiting for an address
func (c *addressChecker) pending(intf *Interface, candidate netip.Addr) bool {
	_, ok := c.candidate(intf, candidate)
	return ok && !intf.IsIPConfigured()
}

func (c *addressChecker) candidate(intf *Interface, addr netip.Addr) (netip.Prefix, bool) {
	for _, p := range intf.dhcp_candidates {
		if p.Addr() == addr {
			return p, true
		}
	}
	return netip.Prefix{}, false
}

// Results returns the probe outcomes seen so far
func (c *addressChecker) Results() []addressCheckResult {
	return append([]addressCheckResult(nil), c.results...)
}
