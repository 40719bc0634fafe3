package main

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"go-arp-sim/src/arp"
	"go-arp-sim/src/internal/errors"
)

// Frame constants
const (
	ETHERNET_HDR_SIZE    = 14   // 6 (dst) + 6 (src) + 2 (ethertype)
	ETHERNET_MAX_PAYLOAD = 1500 // MTU
	LLC_SNAP_HDR_SIZE    = 8    // 3 (LLC) + 5 (SNAP)
)

// SNAP header used for routed protocols over ATM (RFC 2684): DSAP/SSAP 0xaa,
// UI frame, OUI 00-00-00
var llc_snap_oui = []byte{0x00, 0x00, 0x00}

// frameHeader is what the receive path needs from a decoded frame
type frameHeader struct {
	dst       arp.HardwareAddress // zero for ATM, whose VCs are point to point
	src       arp.HardwareAddress
	ethertype layers.EthernetType
	payload   []byte
}

// encapsulate wraps payload in the link-layer header of intf. Ethernet links
// get an Ethernet II header; ATM links get LLC/SNAP and no addresses, since
// the virtual circuit already identifies the peer.
func encapsulate(intf *Interface, dst arp.HardwareAddress, ethertype layers.EthernetType, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	var err error
	switch intf.hw.Type {
	case arp.HardwareEthernet:
		if dst.Len() != 6 {
			return nil, errors.Errorf("%s: bad Ethernet destination %s", get_interface_name(intf), dst)
		}
		eth := &layers.Ethernet{
			SrcMAC:       intf.hw.Addr,
			DstMAC:       dst.Addr,
			EthernetType: ethertype,
		}
		err = gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload))
	case arp.HardwareATM:
		llc := &layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 0x03}
		snap := &layers.SNAP{OrganizationalCode: llc_snap_oui, Type: ethertype}
		err = gopacket.SerializeLayers(buf, opts, llc, snap, gopacket.Payload(payload))
	default:
		return nil, errors.Errorf("%s: no framing for %s", get_interface_name(intf), intf.hw.Type)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "%s: encapsulate", get_interface_name(intf))
	}
	return buf.Bytes(), nil
}

// decapsulate parses the link-layer header of a frame received on intf
func decapsulate(intf *Interface, frame []byte) (*frameHeader, error) {
	switch intf.hw.Type {
	case arp.HardwareEthernet:
		pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
		if !ok {
			return nil, errors.Errorf("%s: runt Ethernet frame (%d bytes)", get_interface_name(intf), len(frame))
		}
		return &frameHeader{
			dst:       arp.HardwareAddress{Type: arp.HardwareEthernet, Addr: eth.DstMAC},
			src:       arp.HardwareAddress{Type: arp.HardwareEthernet, Addr: eth.SrcMAC},
			ethertype: eth.EthernetType,
			payload:   eth.Payload,
		}, nil
	case arp.HardwareATM:
		pkt := gopacket.NewPacket(frame, layers.LayerTypeLLC, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		snap, ok := pkt.Layer(layers.LayerTypeSNAP).(*layers.SNAP)
		if !ok {
			return nil, errors.Errorf("%s: frame without LLC/SNAP header", get_interface_name(intf))
		}
		return &frameHeader{ethertype: snap.Type, payload: snap.Payload}, nil
	default:
		return nil, errors.Errorf("%s: no framing for %s", get_interface_name(intf), intf.hw.Type)
	}
}

// l2_frame_recv_qualify_on_iface reports whether a frame is addressed to
// intf: its own hardware address, broadcast, or an IPv4 multicast group.
// ATM frames always qualify.
func l2_frame_recv_qualify_on_iface(intf *Interface, hdr *frameHeader) bool {
	if intf.hw.Type == arp.HardwareATM {
		return true
	}
	if hdr.dst.Equal(intf.hw) || hdr.dst.IsBroadcast() {
		return true
	}
	mac := net.HardwareAddr(hdr.dst.Addr)
	return len(mac) == 6 && mac[0] == 0x01 && mac[1] == 0x00 && mac[2] == 0x5e
}

// SendARP transmits an ARP packet on behalf of the node's ARP module
func (node *Node) SendARP(ifIndex int, dst arp.HardwareAddress, pkt []byte) error {
	intf := node.interfaceAt(ifIndex)
	if intf == nil {
		return errors.Errorf("node %s has no interface %d", node.name, ifIndex)
	}
	return node.emit(intf, dst, layers.EthernetTypeARP, pkt)
}

// emit frames payload and puts it on the wire of intf
func (node *Node) emit(intf *Interface, dst arp.HardwareAddress, ethertype layers.EthernetType, payload []byte) error {
	frame, err := encapsulate(intf, dst, ethertype, payload)
	if err != nil {
		return err
	}
	return send_frame(intf, frame)
}

// layer_2_frame_recv is the entry point into the stack for a frame that
// arrived on intf. Fatal errors from the upper layers halt the simulation.
func layer_2_frame_recv(node *Node, intf *Interface, frame []byte) {
	if intf.down {
		intf.frames_dropped++
		LogDebug("L2: %s is down, dropping frame", get_interface_name(intf))
		return
	}
	intf.frames_in++

	if node.graph != nil && node.graph.trace {
		LogInfo("L2: %s received at %v\n%s", get_interface_name(intf),
			node.graph.sched.Now(), pkt_dump(frame, intf.hw.Type))
	}

	hdr, err := decapsulate(intf, frame)
	if err != nil {
		intf.frames_dropped++
		LogWarn("L2: %v", err)
		return
	}

	qualified := l2_frame_recv_qualify_on_iface(intf, hdr)

	switch hdr.ethertype {
	case layers.EthernetTypeARP:
		if !qualified && !intf.promiscuous {
			LogDebug("L2: %s: ARP frame for %s ignored", get_interface_name(intf), hdr.dst)
			return
		}
		err = node.arp.Receive(intf.index, hdr.payload)
	case layers.EthernetTypeIPv4:
		if !qualified {
			return
		}
		node.fwd.receiveIP(intf, hdr.payload)
	case layers.EthernetTypeMPLSUnicast:
		if !qualified {
			return
		}
		node.fwd.receiveMPLS(intf, hdr.payload)
	default:
		intf.frames_dropped++
		LogWarn("L2: %s: unknown EtherType 0x%04x", get_interface_name(intf), uint16(hdr.ethertype))
		return
	}

	if err != nil {
		if errors.IsFatal(err) && node.graph != nil {
			node.graph.sched.Fail(errors.Annotatef(err, "node %s", node.name))
			return
		}
		LogWarn("L2: %s: %v", get_interface_name(intf), err)
	}
}
