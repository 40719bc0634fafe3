package arp

import (
	"net/netip"
	"sort"
	"time"
)

// ====== Pending-Request Registry ======

// NetworkType tells the forwarding layer which output path a buffered packet
// belongs to.
type NetworkType int

const (
	NetworkIP NetworkType = iota
	NetworkMPLS
)

func (n NetworkType) String() string {
	if n == NetworkMPLS {
		return "MPLS"
	}
	return "IP"
}

// Purpose records why a resolution is outstanding.
type Purpose int

const (
	// ForwardingMiss: the forwarding layer missed the cache and may have
	// packets waiting in the buffer.
	ForwardingMiss Purpose = iota
	// DuplicateAddressCheck: an external checker (DHCP) wants to know whether
	// the address is already in use. A reply means duplicate; exhausting the
	// retries means available.
	DuplicateAddressCheck
)

func (p Purpose) String() string {
	if p == DuplicateAddressCheck {
		return "AddressCheck"
	}
	return "Forwarding"
}

// DropReason tells the forwarding layer why ARP freed one of its packets.
type DropReason int

const (
	DropUnbuffered DropReason = iota // buffering disabled on the interface
	DropOverflow                     // evicted as the oldest packet of a full buffer
	DropExhausted                    // retries ran out without a reply
	DropAbandoned                    // request older than the abandon window
	DropFlushed                      // interface fault or module teardown
)

func (r DropReason) String() string {
	switch r {
	case DropUnbuffered:
		return "unbuffered"
	case DropOverflow:
		return "overflow"
	case DropExhausted:
		return "exhausted"
	case DropAbandoned:
		return "abandoned"
	case DropFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// QueuedPacket is a data packet held by ARP until its next hop resolves.
type QueuedPacket struct {
	Payload           []byte
	NextHop           netip.Addr
	Interface         int
	IncomingInterface int
	Priority          int
	Network           NetworkType
}

// PendingRequest is one resolution in flight on one interface.
type PendingRequest struct {
	Address          netip.Addr
	Interface        int
	SentTime         time.Duration
	RetriesRemaining int
	Purpose          Purpose

	buffer []QueuedPacket
}

// Buffered returns the packets currently held, oldest first.
func (p *PendingRequest) Buffered() []QueuedPacket {
	return append([]QueuedPacket(nil), p.buffer...)
}

// enqueue appends pkt, evicting the oldest packet first when the buffer
// already holds limit packets. The evicted packet, if any, is returned.
func (p *PendingRequest) enqueue(pkt QueuedPacket, limit int) (evicted QueuedPacket, ok bool) {
	if limit <= 0 {
		return pkt, true
	}
	if len(p.buffer) >= limit {
		evicted, ok = p.buffer[0], true
		p.buffer = append(p.buffer[:0], p.buffer[1:]...)
	}
	p.buffer = append(p.buffer, pkt)
	return evicted, ok
}

// drain empties the buffer and returns what it held.
func (p *PendingRequest) drain() []QueuedPacket {
	out := p.buffer
	p.buffer = nil
	return out
}

type pendingKey struct {
	ifIndex int
	addr    netip.Addr
}

// Registry holds at most one PendingRequest per (interface, address).
type Registry struct {
	requests map[pendingKey]*PendingRequest
	perIf    map[int]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		requests: make(map[pendingKey]*PendingRequest),
		perIf:    make(map[int]int),
	}
}

// Get returns the request for (ifIndex, addr).
func (r *Registry) Get(ifIndex int, addr netip.Addr) (*PendingRequest, bool) {
	p, ok := r.requests[pendingKey{ifIndex, addr}]
	return p, ok
}

// Create registers a fresh request. An existing request for the same key is
// replaced; callers remove it first.
func (r *Registry) Create(ifIndex int, addr netip.Addr, now time.Duration, retries int, purpose Purpose) *PendingRequest {
	key := pendingKey{ifIndex, addr}
	if _, ok := r.requests[key]; !ok {
		r.perIf[ifIndex]++
	}
	p := &PendingRequest{
		Address:          addr,
		Interface:        ifIndex,
		SentTime:         now,
		RetriesRemaining: retries,
		Purpose:          purpose,
	}
	r.requests[key] = p
	return p
}

// Remove deletes the request for (ifIndex, addr) and returns it.
func (r *Registry) Remove(ifIndex int, addr netip.Addr) (*PendingRequest, bool) {
	key := pendingKey{ifIndex, addr}
	p, ok := r.requests[key]
	if !ok {
		return nil, false
	}
	delete(r.requests, key)
	if r.perIf[ifIndex]--; r.perIf[ifIndex] <= 0 {
		delete(r.perIf, ifIndex)
	}
	return p, true
}

// Len returns the number of outstanding requests on all interfaces.
func (r *Registry) Len() int {
	return len(r.requests)
}

// Outstanding returns the number of outstanding requests on ifIndex.
func (r *Registry) Outstanding(ifIndex int) int {
	return r.perIf[ifIndex]
}

// Requests returns the outstanding requests ordered by interface, then
// address, so that retries go out in a stable order.
func (r *Registry) Requests() []*PendingRequest {
	out := make([]*PendingRequest, 0, len(r.requests))
	for _, p := range r.requests {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interface != out[j].Interface {
			return out[i].Interface < out[j].Interface
		}
		return out[i].Address.Less(out[j].Address)
	})
	return out
}

// RemoveInterface deletes every request on ifIndex and returns them.
func (r *Registry) RemoveInterface(ifIndex int) []*PendingRequest {
	var out []*PendingRequest
	for _, p := range r.Requests() {
		if p.Interface != ifIndex {
			continue
		}
		r.Remove(p.Interface, p.Address)
		out = append(out, p)
	}
	return out
}
