// Package arp models the Address Resolution Protocol of one simulated node:
// a translation table with lazy expiry, a registry of in-flight requests with
// bounded packet buffers, the request/reply engine, a one-second retry tick
// and the resolution entry point used by the forwarding layer.
//
// A Module runs inside a single-threaded discrete-event simulation. Its
// methods must be called from the event loop that owns it; only Stats may be
// read from another goroutine.
package arp

import (
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"go-arp-sim/src/internal/errors"
	"go-arp-sim/src/internal/logger"
)

// Defaults applied by Config.withDefaults.
const (
	MAX_RETRY_COUNT          = 5
	DEFAULT_RETRY_INTERVAL   = 1 * time.Second
	DEFAULT_ABANDON_INTERVAL = 20 * time.Second
	DEFAULT_EXPIRE_INTERVAL  = 20 * time.Minute
	DEFAULT_BUFFER_SIZE      = 1
)

// Config holds the per-node ARP parameters.
type Config struct {
	ExpireInterval  time.Duration // lifetime of a dynamic entry
	MaxRetries      *int          // resends after the first request; nil means MAX_RETRY_COUNT
	RetryInterval   time.Duration // retry tick period
	AbandonInterval time.Duration // age after which a pending request is restarted
	Logger          *zerolog.Logger
}

// Retries returns n as a Config.MaxRetries value. Zero is a valid setting:
// the first request is the only one sent.
func Retries(n int) *int {
	return &n
}

func (c Config) withDefaults() Config {
	if c.ExpireInterval <= 0 {
		c.ExpireInterval = DEFAULT_EXPIRE_INTERVAL
	}
	if c.MaxRetries == nil {
		c.MaxRetries = Retries(MAX_RETRY_COUNT)
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DEFAULT_RETRY_INTERVAL
	}
	if c.AbandonInterval <= 0 {
		c.AbandonInterval = DEFAULT_ABANDON_INTERVAL
	}
	return c
}

// Interface describes one ARP-speaking interface of the node.
type Interface struct {
	Index       int
	Name        string
	Hardware    HardwareAddress
	Address     netip.Prefix // may be invalid until an address is assigned
	Buffering   bool         // hold packets while their next hop resolves
	BufferSize  int          // buffer capacity per pending request
	Promiscuous bool         // only merge what is heard, never answer
}

// Scheduler is the discrete-event kernel as seen by ARP.
type Scheduler interface {
	Now() time.Duration
	After(d time.Duration, fn func())
}

// LinkLayer transmits ARP packets on an interface.
type LinkLayer interface {
	SendARP(ifIndex int, dst HardwareAddress, pkt []byte) error
}

// Forwarder is the forwarding layer that owns the packets ARP buffers.
type Forwarder interface {
	// Release hands back a buffered packet whose next hop resolved to hw. The
	// packet's Network selects the IP or MPLS output path.
	Release(pkt QueuedPacket, hw HardwareAddress)
	// Drop reports a packet ARP freed without sending.
	Drop(pkt QueuedPacket, reason DropReason)
}

// AddressChecker receives the outcome of CheckAddress.
type AddressChecker interface {
	AddressCheckResult(ifIndex int, candidate netip.Addr, isDuplicate bool)
}

// Deps are the collaborators a Module is built with.
type Deps struct {
	Scheduler Scheduler
	Link      LinkLayer
	Forwarder Forwarder
	Checker   AddressChecker // optional
}

// Outcome is the result of Resolve.
type Outcome int

const (
	Resolved Outcome = iota // hardware address returned
	Admitted                // new request sent; packet buffered or dropped
	Buffered                // request already outstanding; packet queued
	Dropped                 // request already outstanding; packet dropped
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Admitted:
		return "admitted"
	case Buffered:
		return "buffered"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Request is one call from the forwarding layer into Resolve.
type Request struct {
	Address           netip.Addr // next hop
	Interface         int        // outgoing interface
	Protocol          ProtocolType
	Priority          int
	Packet            []byte // may be nil
	IncomingInterface int
	Network           NetworkType
}

// Module is the ARP instance of one node.
type Module struct {
	node string
	cfg  Config
	log  zerolog.Logger

	sched   Scheduler
	link    LinkLayer
	fwd     Forwarder
	checker AddressChecker

	ifaces  map[int]*Interface
	table   *Table
	pending *Registry
	stats   *statsSet

	tickArmed bool
	gen       uint64
	closed    bool
}

// New builds the ARP module of node.
func New(node string, cfg Config, deps Deps, ifaces []Interface) (*Module, error) {
	if deps.Scheduler == nil || deps.Link == nil || deps.Forwarder == nil {
		return nil, errors.New("arp: scheduler, link and forwarder are required")
	}
	cfg = cfg.withDefaults()
	if *cfg.MaxRetries < 0 {
		return nil, errors.Configf("node %s: negative retry count %d", node, *cfg.MaxRetries)
	}

	log := logger.Component("arp")
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	stats := newStatsSet()
	m := &Module{
		node:    node,
		cfg:     cfg,
		log:     log.With().Str("node", node).Logger(),
		sched:   deps.Scheduler,
		link:    deps.Link,
		fwd:     deps.Forwarder,
		checker: deps.Checker,
		ifaces:  make(map[int]*Interface),
		table:   newTable(cfg.ExpireInterval, stats),
		pending: NewRegistry(),
		stats:   stats,
	}

	for i := range ifaces {
		intf := ifaces[i]
		if _, dup := m.ifaces[intf.Index]; dup {
			return nil, errors.Configf("node %s: duplicate interface index %d", node, intf.Index)
		}
		switch intf.Hardware.Type {
		case HardwareEthernet, HardwareATM:
		default:
			return nil, errors.Configf("node %s interface %d: unsupported hardware type %s",
				node, intf.Index, intf.Hardware.Type)
		}
		if intf.Hardware.IsZero() {
			return nil, errors.Configf("node %s interface %d: no hardware address", node, intf.Index)
		}
		if intf.Buffering && intf.BufferSize <= 0 {
			intf.BufferSize = DEFAULT_BUFFER_SIZE
		}
		intf.Hardware = intf.Hardware.Clone()
		m.ifaces[intf.Index] = &intf
		stats.of(intf.Index)
	}
	return m, nil
}

// Node returns the owning node's name.
func (m *Module) Node() string { return m.node }

// Table exposes the translation table.
func (m *Module) Table() *Table { return m.table }

// Interface returns a copy of the interface configuration.
func (m *Module) Interface(ifIndex int) (Interface, bool) {
	intf, ok := m.ifaces[ifIndex]
	if !ok {
		return Interface{}, false
	}
	return *intf, true
}

// SetInterfaceAddress assigns (or with an invalid prefix, clears) the
// protocol address of an interface.
func (m *Module) SetInterfaceAddress(ifIndex int, prefix netip.Prefix) error {
	intf, ok := m.ifaces[ifIndex]
	if !ok {
		return errors.Errorf("node %s: no interface %d", m.node, ifIndex)
	}
	intf.Address = prefix
	return nil
}

// Resolve is the forwarding layer's entry point. Broadcast and multicast
// destinations are answered without touching any state. A cache hit returns
// the hardware address. On a miss the packet is handed to the pending
// registry and belongs to ARP from then on: the caller must neither retry
// nor free it.
func (m *Module) Resolve(req Request) (HardwareAddress, Outcome, error) {
	intf, ok := m.ifaces[req.Interface]
	if !ok {
		return HardwareAddress{}, Dropped, errors.Configf("node %s: resolve on unknown interface %d",
			m.node, req.Interface)
	}
	if req.Protocol != ProtocolIP {
		return HardwareAddress{}, Dropped, errors.Configf("node %s: unsupported protocol type %s",
			m.node, req.Protocol)
	}

	if hw, ok := m.synthesize(intf, req.Address); ok {
		return hw, Resolved, nil
	}

	now := m.sched.Now()
	if e, ok := m.table.Lookup(intf.Index, req.Address, now); ok {
		if e.Protocol != req.Protocol {
			return HardwareAddress{}, Dropped, errors.Protocolf(
				"node %s: cache entry for %s has protocol %s, lookup wants %s",
				m.node, req.Address, e.Protocol, req.Protocol)
		}
		return e.Hardware, Resolved, nil
	}

	var pkt *QueuedPacket
	if req.Packet != nil {
		pkt = &QueuedPacket{
			Payload:           req.Packet,
			NextHop:           req.Address,
			Interface:         req.Interface,
			IncomingInterface: req.IncomingInterface,
			Priority:          req.Priority,
			Network:           req.Network,
		}
	}
	return HardwareAddress{}, m.admitOrBuffer(intf, req.Address, pkt, ForwardingMiss), nil
}

// synthesize answers broadcast and multicast destinations directly.
func (m *Module) synthesize(intf *Interface, addr netip.Addr) (HardwareAddress, bool) {
	if addr == limitedBroadcast {
		return BroadcastAddress(intf.Hardware.Type, intf.Hardware.Len()), true
	}
	if bcast, ok := subnetBroadcast(intf.Address); ok && addr == bcast {
		return BroadcastAddress(intf.Hardware.Type, intf.Hardware.Len()), true
	}
	if addr.Is4() && addr.IsMulticast() {
		return MulticastAddress(addr), true
	}
	return HardwareAddress{}, false
}

// CheckAddress starts a duplicate-address check for candidate on ifIndex.
// The result arrives later through the AddressChecker: duplicate if anyone
// replies, available once the retries run out.
func (m *Module) CheckAddress(candidate netip.Addr, ifIndex int) error {
	intf, ok := m.ifaces[ifIndex]
	if !ok {
		return errors.Configf("node %s: address check on unknown interface %d", m.node, ifIndex)
	}
	if !candidate.Is4() {
		return errors.Configf("node %s: address check for non-IPv4 address %s", m.node, candidate)
	}
	outcome := m.admitOrBuffer(intf, candidate, nil, DuplicateAddressCheck)
	m.log.Debug().Int("if", ifIndex).Stringer("addr", candidate).Stringer("outcome", outcome).
		Msg("address check started")
	return nil
}

// InterfaceFault reacts to a hardware fault on ifIndex. When the fault
// begins, every table entry and pending request of the interface is flushed
// and buffered packets are dropped. Address checks cut short by the flush are
// reported as available. When it ends, a request for the
// interface's own address is broadcast so neighbours refresh their caches.
func (m *Module) InterfaceFault(ifIndex int, begin bool) error {
	intf, ok := m.ifaces[ifIndex]
	if !ok {
		return errors.Errorf("node %s: fault on unknown interface %d", m.node, ifIndex)
	}

	if begin {
		flushed := m.table.FlushInterface(ifIndex)
		reqs := m.pending.RemoveInterface(ifIndex)
		for _, p := range reqs {
			m.dropAll(p, DropFlushed)
			// nothing answered before the link went down
			if p.Purpose == DuplicateAddressCheck && m.checker != nil {
				m.checker.AddressCheckResult(p.Interface, p.Address, false)
			}
		}
		m.log.Info().Int("if", ifIndex).Int("entries", flushed).Int("pending", len(reqs)).
			Msg("interface fault: flushed")
		return nil
	}

	if !intf.Address.IsValid() {
		return nil
	}
	m.log.Info().Int("if", ifIndex).Msg("interface recovered: announcing own address")
	m.sendRequest(intf, intf.Address.Addr(), false)
	return nil
}

// Entries returns the live translation table entries.
func (m *Module) Entries() []Entry {
	return m.table.Entries(m.sched.Now())
}

// PendingInfo is a read-only view of a pending request.
type PendingInfo struct {
	Address          netip.Addr
	Interface        int
	SentTime         time.Duration
	RetriesRemaining int
	Purpose          Purpose
	Buffered         int
}

// Pending returns the outstanding requests.
func (m *Module) Pending() []PendingInfo {
	reqs := m.pending.Requests()
	out := make([]PendingInfo, 0, len(reqs))
	for _, p := range reqs {
		out = append(out, PendingInfo{
			Address:          p.Address,
			Interface:        p.Interface,
			SentTime:         p.SentTime,
			RetriesRemaining: p.RetriesRemaining,
			Purpose:          p.Purpose,
			Buffered:         len(p.buffer),
		})
	}
	return out
}

// Stats returns one counter snapshot per interface.
func (m *Module) Stats() []StatsSnapshot {
	return m.stats.snapshots()
}

// Close tears the module down: pending ticks are invalidated and buffered
// packets are dropped.
func (m *Module) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	m.tickArmed = false
	for _, p := range m.pending.Requests() {
		m.pending.Remove(p.Interface, p.Address)
		m.dropAll(p, DropFlushed)
	}
}
