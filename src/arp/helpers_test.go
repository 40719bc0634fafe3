package arp

import (
	"net"
	"net/netip"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// manualClock is a Scheduler whose time only moves when the test says so.
type manualClock struct {
	now    time.Duration
	seq    int
	timers []manualTimer
}

type manualTimer struct {
	at  time.Duration
	seq int
	fn  func()
}

func (c *manualClock) Now() time.Duration { return c.now }

func (c *manualClock) After(d time.Duration, fn func()) {
	c.seq++
	c.timers = append(c.timers, manualTimer{at: c.now + d, seq: c.seq, fn: fn})
}

// Advance runs every timer due within d, in time order.
func (c *manualClock) Advance(d time.Duration) {
	until := c.now + d
	for {
		sort.Slice(c.timers, func(i, j int) bool {
			if c.timers[i].at != c.timers[j].at {
				return c.timers[i].at < c.timers[j].at
			}
			return c.timers[i].seq < c.timers[j].seq
		})
		if len(c.timers) == 0 || c.timers[0].at > until {
			break
		}
		next := c.timers[0]
		c.timers = c.timers[1:]
		c.now = next.at
		next.fn()
	}
	c.now = until
}

type sentFrame struct {
	ifIndex int
	dst     HardwareAddress
	raw     []byte
}

type recordingLink struct {
	sent []sentFrame
	err  error
}

func (l *recordingLink) SendARP(ifIndex int, dst HardwareAddress, pkt []byte) error {
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, sentFrame{ifIndex: ifIndex, dst: dst.Clone(), raw: append([]byte(nil), pkt...)})
	return nil
}

func (l *recordingLink) last(t *testing.T) (*Packet, HardwareAddress) {
	t.Helper()
	require.NotEmpty(t, l.sent, "no arp packet sent")
	f := l.sent[len(l.sent)-1]
	pkt, err := ParsePacket(f.raw)
	require.NoError(t, err)
	return pkt, f.dst
}

type released struct {
	pkt QueuedPacket
	hw  HardwareAddress
}

type dropped struct {
	pkt    QueuedPacket
	reason DropReason
}

type recordingForwarder struct {
	released []released
	dropped  []dropped
}

func (f *recordingForwarder) Release(pkt QueuedPacket, hw HardwareAddress) {
	f.released = append(f.released, released{pkt, hw})
}

func (f *recordingForwarder) Drop(pkt QueuedPacket, reason DropReason) {
	f.dropped = append(f.dropped, dropped{pkt, reason})
}

type checkResult struct {
	ifIndex   int
	candidate netip.Addr
	duplicate bool
}

type recordingChecker struct {
	results []checkResult
}

func (c *recordingChecker) AddressCheckResult(ifIndex int, candidate netip.Addr, isDuplicate bool) {
	c.results = append(c.results, checkResult{ifIndex, candidate, isDuplicate})
}

var (
	localMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	peerMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x05}

	localAddr = netip.MustParseAddr("10.0.0.1")
	peerAddr  = netip.MustParseAddr("10.0.0.5")
)

type harness struct {
	clock   *manualClock
	link    *recordingLink
	fwd     *recordingForwarder
	checker *recordingChecker
	mod     *Module
}

func ethernetInterface() Interface {
	return Interface{
		Index:      0,
		Name:       "eth0",
		Hardware:   HardwareAddress{Type: HardwareEthernet, Addr: localMAC},
		Address:    netip.MustParsePrefix("10.0.0.1/24"),
		Buffering:  true,
		BufferSize: 1,
	}
}

func newHarness(t *testing.T, cfg Config, ifaces ...Interface) *harness {
	t.Helper()
	if len(ifaces) == 0 {
		ifaces = []Interface{ethernetInterface()}
	}
	h := &harness{
		clock:   &manualClock{},
		link:    &recordingLink{},
		fwd:     &recordingForwarder{},
		checker: &recordingChecker{},
	}
	mod, err := New("R1", cfg, Deps{
		Scheduler: h.clock,
		Link:      h.link,
		Forwarder: h.fwd,
		Checker:   h.checker,
	}, ifaces)
	require.NoError(t, err)
	h.mod = mod
	return h
}

func encode(t *testing.T, p *Packet) []byte {
	t.Helper()
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	return b
}

// peerReply is what 10.0.0.5 answers to a who-has from the local interface.
func peerReply(t *testing.T) []byte {
	return encode(t, &Packet{
		Hardware:       HardwareEthernet,
		Protocol:       ProtocolIP,
		Operation:      OpReply,
		SenderHardware: peerMAC,
		SenderProtocol: peerAddr,
		TargetHardware: localMAC,
		TargetProtocol: localAddr,
	})
}

func peerRequest(t *testing.T, target netip.Addr) []byte {
	return encode(t, &Packet{
		Hardware:       HardwareEthernet,
		Protocol:       ProtocolIP,
		Operation:      OpRequest,
		SenderHardware: peerMAC,
		SenderProtocol: peerAddr,
		TargetHardware: make(net.HardwareAddr, 6),
		TargetProtocol: target,
	})
}

func dataRequest(addr netip.Addr, payload string) Request {
	return Request{
		Address:   addr,
		Interface: 0,
		Protocol:  ProtocolIP,
		Packet:    []byte(payload),
		Network:   NetworkIP,
	}
}

func (h *harness) stats(t *testing.T, ifIndex int) StatsSnapshot {
	t.Helper()
	for _, s := range h.mod.Stats() {
		if s.Interface == ifIndex {
			return s
		}
	}
	t.Fatalf("no stats for interface %d", ifIndex)
	return StatsSnapshot{}
}
