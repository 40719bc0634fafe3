package arp

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"go-arp-sim/src/internal/errors"
)

// Operation is the ARP opcode.
type Operation uint16

const (
	OpRequest Operation = 1
	OpReply   Operation = 2
)

func (o Operation) String() string {
	switch o {
	case OpRequest:
		return "request"
	case OpReply:
		return "reply"
	default:
		return fmt.Sprintf("op(%d)", uint16(o))
	}
}

// ARP_FIXED_HDR_SIZE is the size of the fixed part of an ARP packet
// (hrd, pro, hln, pln, op).
const ARP_FIXED_HDR_SIZE = 8

// IPV4_ADDR_LEN is the protocol address length for ProtocolIP.
const IPV4_ADDR_LEN = 4

// Packet is a decoded ARP packet. Hardware addresses may be of any length,
// protocol addresses are IPv4 when Protocol is ProtocolIP.
type Packet struct {
	Hardware       HardwareType
	Protocol       ProtocolType
	Operation      Operation
	SenderHardware net.HardwareAddr
	SenderProtocol netip.Addr
	TargetHardware net.HardwareAddr
	TargetProtocol netip.Addr
}

func (p *Packet) String() string {
	return fmt.Sprintf("arp %s who-has %s tell %s (%s) -> %s",
		p.Operation, p.TargetProtocol, p.SenderProtocol, p.SenderHardware, p.TargetHardware)
}

var serializeOpts = gopacket.SerializeOptions{FixLengths: true}

// MarshalBinary encodes the packet in RFC 826 wire format.
func (p *Packet) MarshalBinary() ([]byte, error) {
	if len(p.SenderHardware) == 0 || len(p.SenderHardware) > 255 {
		return nil, errors.Errorf("invalid sender hardware address length %d", len(p.SenderHardware))
	}
	if len(p.TargetHardware) != len(p.SenderHardware) {
		return nil, errors.Errorf("target hardware address length %d differs from sender %d",
			len(p.TargetHardware), len(p.SenderHardware))
	}

	sender := protoBytes(p.SenderProtocol)
	target := protoBytes(p.TargetProtocol)

	layer := &layers.ARP{
		AddrType:          layers.LinkType(p.Hardware),
		Protocol:          layers.EthernetType(p.Protocol),
		HwAddressSize:     uint8(len(p.SenderHardware)),
		ProtAddressSize:   IPV4_ADDR_LEN,
		Operation:         uint16(p.Operation),
		SourceHwAddress:   []byte(p.SenderHardware),
		SourceProtAddress: sender,
		DstHwAddress:      []byte(p.TargetHardware),
		DstProtAddress:    target,
	}

	buf := gopacket.NewSerializeBuffer()
	if err := layer.SerializeTo(buf, serializeOpts); err != nil {
		return nil, errors.Annotate(err, "serialize arp packet")
	}
	return buf.Bytes(), nil
}

// ParsePacket decodes an ARP packet. Protocol addresses are only decoded
// when they are four bytes long; the caller decides whether the protocol
// type is acceptable.
func ParsePacket(b []byte) (*Packet, error) {
	if len(b) < ARP_FIXED_HDR_SIZE {
		return nil, errors.Errorf("arp packet too small: need %d bytes, got %d", ARP_FIXED_HDR_SIZE, len(b))
	}
	hln, pln := int(b[4]), int(b[5])
	if need := ARP_FIXED_HDR_SIZE + 2*(hln+pln); len(b) < need {
		return nil, errors.Errorf("arp packet truncated: need %d bytes, got %d", need, len(b))
	}

	var layer layers.ARP
	if err := layer.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return nil, errors.Annotate(err, "decode arp packet")
	}

	p := &Packet{
		Hardware:       HardwareType(binary.BigEndian.Uint16(b[0:2])),
		Protocol:       ProtocolType(layer.Protocol),
		Operation:      Operation(layer.Operation),
		SenderHardware: append(net.HardwareAddr(nil), layer.SourceHwAddress...),
		TargetHardware: append(net.HardwareAddr(nil), layer.DstHwAddress...),
	}
	if pln == IPV4_ADDR_LEN {
		p.SenderProtocol, _ = netip.AddrFromSlice(layer.SourceProtAddress)
		p.TargetProtocol, _ = netip.AddrFromSlice(layer.DstProtAddress)
	}
	return p, nil
}

// protoBytes encodes addr as four bytes; an invalid address is the unset
// placeholder 0.0.0.0.
func protoBytes(addr netip.Addr) []byte {
	if !addr.IsValid() || !addr.Is4() {
		return make([]byte, IPV4_ADDR_LEN)
	}
	b := addr.As4()
	return b[:]
}
