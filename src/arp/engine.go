package arp

import (
	"net"
	"net/netip"

	"go-arp-sim/src/internal/errors"
)

// ====== Anti-flooding admission ======

// admitOrBuffer handles a cache miss for addr on intf. At most one request
// per (interface, address) is on the wire at a time; later packets for the
// same address only join the buffer. A request older than the abandon
// interval is cleared and a fresh one is sent.
func (m *Module) admitOrBuffer(intf *Interface, addr netip.Addr, pkt *QueuedPacket, purpose Purpose) Outcome {
	now := m.sched.Now()

	if p, ok := m.pending.Get(intf.Index, addr); ok {
		if now-p.SentTime <= m.cfg.AbandonInterval {
			if purpose == DuplicateAddressCheck {
				p.Purpose = DuplicateAddressCheck
			}
			return m.hold(intf, p, pkt)
		}

		m.pending.Remove(intf.Index, addr)
		m.log.Debug().Int("if", intf.Index).Stringer("addr", addr).
			Dur("age", now-p.SentTime).Msg("pending request abandoned")
		m.dropAll(p, DropAbandoned)
	}

	p := m.pending.Create(intf.Index, addr, now, *m.cfg.MaxRetries, purpose)
	m.sendRequest(intf, addr, purpose == DuplicateAddressCheck)
	m.hold(intf, p, pkt)
	m.armTick()
	return Admitted
}

// hold buffers pkt under p, or drops it when the interface does not buffer.
func (m *Module) hold(intf *Interface, p *PendingRequest, pkt *QueuedPacket) Outcome {
	if pkt == nil {
		return Buffered
	}
	st := m.stats.of(intf.Index)
	if !intf.Buffering {
		st.PacketsDropped.Add(1)
		m.fwd.Drop(*pkt, DropUnbuffered)
		return Dropped
	}

	evicted, ok := p.enqueue(*pkt, intf.BufferSize)
	st.PacketsBuffered.Add(1)
	if ok {
		st.PacketsDropped.Add(1)
		m.fwd.Drop(evicted, DropOverflow)
	}
	return Buffered
}

// dropAll frees every packet buffered under p.
func (m *Module) dropAll(p *PendingRequest, reason DropReason) {
	pkts := p.drain()
	if len(pkts) == 0 {
		return
	}
	st := m.stats.of(p.Interface)
	for _, pkt := range pkts {
		st.PacketsDropped.Add(1)
		m.fwd.Drop(pkt, reason)
	}
}

// ====== Request/Reply protocol engine ======

// sendRequest broadcasts a who-has for target. A probe leaves the sender
// protocol address unset so that neighbours do not learn the candidate.
func (m *Module) sendRequest(intf *Interface, target netip.Addr, probe bool) {
	var sender netip.Addr
	if !probe && intf.Address.IsValid() {
		sender = intf.Address.Addr()
	}

	pkt := &Packet{
		Hardware:       intf.Hardware.Type,
		Protocol:       ProtocolIP,
		Operation:      OpRequest,
		SenderHardware: intf.Hardware.Addr,
		SenderProtocol: sender,
		TargetHardware: make(net.HardwareAddr, intf.Hardware.Len()),
		TargetProtocol: target,
	}
	dst := BroadcastAddress(intf.Hardware.Type, intf.Hardware.Len())
	if m.transmit(intf, dst, pkt) {
		m.stats.of(intf.Index).RequestsSent.Add(1)
	}
}

// sendReply answers req, which asked for one of intf's addresses.
func (m *Module) sendReply(intf *Interface, req *Packet) {
	if len(req.SenderHardware) != intf.Hardware.Len() {
		m.stats.of(intf.Index).PacketsDiscarded.Add(1)
		m.log.Warn().Int("if", intf.Index).Stringer("from", req.SenderProtocol).
			Int("hln", len(req.SenderHardware)).Msg("cannot answer request: hardware address length differs")
		return
	}

	pkt := &Packet{
		Hardware:       intf.Hardware.Type,
		Protocol:       ProtocolIP,
		Operation:      OpReply,
		SenderHardware: intf.Hardware.Addr,
		SenderProtocol: req.TargetProtocol,
		TargetHardware: req.SenderHardware,
		TargetProtocol: req.SenderProtocol,
	}
	dst := HardwareAddress{Type: intf.Hardware.Type, Addr: req.SenderHardware}
	if m.transmit(intf, dst, pkt) {
		m.stats.of(intf.Index).RepliesSent.Add(1)
	}
}

func (m *Module) transmit(intf *Interface, dst HardwareAddress, pkt *Packet) bool {
	b, err := pkt.MarshalBinary()
	if err != nil {
		m.log.Error().Err(err).Int("if", intf.Index).Msg("encode arp packet")
		return false
	}
	if err := m.link.SendARP(intf.Index, dst, b); err != nil {
		m.log.Warn().Err(err).Int("if", intf.Index).Stringer("op", pkt.Operation).Msg("send arp packet")
		return false
	}
	m.log.Debug().Int("if", intf.Index).Str("pkt", pkt.String()).Msg("arp out")
	return true
}

// Receive handles an ARP packet that arrived on ifIndex. Interfaces in
// promiscuous mode only merge (see Sneak). A returned error is fatal to the
// run: unsupported protocol type or unknown opcode.
func (m *Module) Receive(ifIndex int, payload []byte) error {
	intf, ok := m.ifaces[ifIndex]
	if !ok {
		return errors.Errorf("node %s: arp packet on unknown interface %d", m.node, ifIndex)
	}
	if intf.Promiscuous {
		return m.sneak(intf, payload)
	}

	pkt, err := m.accept(intf, payload)
	if pkt == nil || err != nil {
		return err
	}
	if pkt.Operation != OpRequest && pkt.Operation != OpReply {
		return errors.Protocolf("node %s interface %d: unknown arp opcode %d",
			m.node, ifIndex, uint16(pkt.Operation))
	}

	st := m.stats.of(ifIndex)
	if pkt.Operation == OpRequest {
		st.RequestsReceived.Add(1)
	} else {
		st.RepliesReceived.Add(1)
	}

	addressed := m.addressed(intf, pkt)
	if err := m.merge(intf, pkt); err != nil {
		return err
	}
	if !addressed {
		return nil
	}

	if pkt.Operation == OpRequest {
		m.sendReply(intf, pkt)
		return nil
	}
	m.complete(intf, pkt)
	return nil
}

// Sneak merges what a packet reveals about its sender without replying or
// completing requests. Promiscuous listeners use it for every packet they
// overhear.
func (m *Module) Sneak(ifIndex int, payload []byte) error {
	intf, ok := m.ifaces[ifIndex]
	if !ok {
		return errors.Errorf("node %s: arp packet on unknown interface %d", m.node, ifIndex)
	}
	return m.sneak(intf, payload)
}

func (m *Module) sneak(intf *Interface, payload []byte) error {
	pkt, err := m.accept(intf, payload)
	if pkt == nil || err != nil {
		return err
	}
	switch pkt.Operation {
	case OpRequest:
		m.stats.of(intf.Index).RequestsReceived.Add(1)
	case OpReply:
		m.stats.of(intf.Index).RepliesReceived.Add(1)
	}
	return m.merge(intf, pkt)
}

// accept decodes payload and applies the checks common to every receive
// path. A nil packet with a nil error means the packet was discarded.
func (m *Module) accept(intf *Interface, payload []byte) (*Packet, error) {
	st := m.stats.of(intf.Index)

	pkt, err := ParsePacket(payload)
	if err != nil {
		st.PacketsDiscarded.Add(1)
		m.log.Debug().Err(err).Int("if", intf.Index).Msg("discard malformed arp packet")
		return nil, nil
	}
	if pkt.Hardware != intf.Hardware.Type {
		st.PacketsDiscarded.Add(1)
		m.log.Debug().Int("if", intf.Index).Stringer("got", pkt.Hardware).
			Stringer("want", intf.Hardware.Type).Msg("discard arp packet: hardware type mismatch")
		return nil, nil
	}
	if pkt.Protocol != ProtocolIP {
		return nil, errors.Protocolf("node %s interface %d: unsupported arp protocol type %s",
			m.node, intf.Index, pkt.Protocol)
	}
	m.log.Debug().Int("if", intf.Index).Str("pkt", pkt.String()).Msg("arp in")
	return pkt, nil
}

// addressed reports whether pkt is meant for intf: its target protocol
// address is ours, or it is a reply to one of our probes (unset target
// protocol address, our hardware address).
func (m *Module) addressed(intf *Interface, pkt *Packet) bool {
	if intf.Address.IsValid() && pkt.TargetProtocol == intf.Address.Addr() {
		return true
	}
	return pkt.Operation == OpReply &&
		(!pkt.TargetProtocol.IsValid() || pkt.TargetProtocol.IsUnspecified()) &&
		intf.Hardware.Equal(HardwareAddress{Type: pkt.Hardware, Addr: pkt.TargetHardware})
}

// merge folds the sender binding into the table. An existing entry is
// always refreshed; a new one is created only when the packet targets our
// own address.
func (m *Module) merge(intf *Interface, pkt *Packet) error {
	sender := pkt.SenderProtocol
	if !sender.IsValid() || sender.IsUnspecified() || len(pkt.SenderHardware) == 0 {
		return nil
	}
	if intf.Address.IsValid() && sender == intf.Address.Addr() {
		return nil
	}

	create := intf.Address.IsValid() && pkt.TargetProtocol == intf.Address.Addr()
	hw := HardwareAddress{Type: pkt.Hardware, Addr: pkt.SenderHardware}
	merged, created, err := m.table.Merge(sender, intf.Index, pkt.Protocol, hw, m.sched.Now(), create)
	if err != nil {
		return err
	}
	if merged || created {
		m.log.Debug().Int("if", intf.Index).Stringer("addr", sender).Stringer("hw", hw).
			Bool("created", created).Msg("arp entry learned")
	}
	return nil
}

// complete finishes the pending request answered by reply: an address check
// learns that its candidate is taken, and buffered packets are released.
func (m *Module) complete(intf *Interface, reply *Packet) {
	p, ok := m.pending.Remove(intf.Index, reply.SenderProtocol)
	if !ok {
		return
	}
	hw := HardwareAddress{Type: reply.Hardware, Addr: reply.SenderHardware}.Clone()

	if p.Purpose == DuplicateAddressCheck && m.checker != nil {
		m.log.Info().Int("if", intf.Index).Stringer("addr", p.Address).Stringer("owner", hw).
			Msg("address check: duplicate")
		m.checker.AddressCheckResult(intf.Index, p.Address, true)
	}

	st := m.stats.of(intf.Index)
	for _, pkt := range p.drain() {
		st.PacketsReleased.Add(1)
		m.fwd.Release(pkt, hw)
	}
}
