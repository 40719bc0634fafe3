package main

import (
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"go-arp-sim/src/arp"
)

// ====== Packet Dump Utility for Debugging ======

// pkt_dump renders a frame received on a link of the given hardware type:
// link header, ARP or IPv4 (possibly under an MPLS label) and any payload.
func pkt_dump(frame []byte, hw arp.HardwareType) string {
	var b strings.Builder

	if len(frame) == 0 {
		b.WriteString("Invalid packet\n")
		return b.String()
	}

	b.WriteString("\n========== PACKET DUMP ==========\n")
	fmt.Fprintf(&b, "Total packet size: %d bytes\n", len(frame))

	first := layers.LayerTypeEthernet
	if hw == arp.HardwareATM {
		first = layers.LayerTypeLLC
	}
	pkt := gopacket.NewPacket(frame, first, gopacket.Default)

	var rest []byte
	for _, layer := range pkt.Layers() {
		switch l := layer.(type) {
		case *layers.Ethernet:
			dump_ethernet_header(&b, l)
		case *layers.LLC:
			fmt.Fprintf(&b, "\n--- LLC ---\nDSAP: 0x%02X  SSAP: 0x%02X  Control: 0x%02X\n", l.DSAP, l.SSAP, l.Control)
		case *layers.SNAP:
			fmt.Fprintf(&b, "\n--- SNAP ---\nOUI: % X  Type: %s\n", l.OrganizationalCode, l.Type)
		case *layers.ARP:
			dump_arp_header(&b, l.Contents)
		case *layers.MPLS:
			fmt.Fprintf(&b, "\n--- MPLS ---\nLabel: %d  TC: %d  S: %t  TTL: %d\n",
				l.Label, l.TrafficClass, l.StackBottom, l.TTL)
		case *layers.IPv4:
			dump_ip_header(&b, l)
		case *gopacket.Payload:
			rest = l.Payload()
		}
	}
	if failed := pkt.ErrorLayer(); failed != nil {
		fmt.Fprintf(&b, "\n--- Undecoded: %v ---\n", failed.Error())
		rest = failed.LayerPayload()
	}

	if len(rest) > 0 {
		b.WriteString("\n--- Payload/Application Data ---\n")
		fmt.Fprintf(&b, "Size: %d bytes\n", len(rest))
		dump_raw_bytes(&b, rest)
	}

	b.WriteString("\n========== END PACKET DUMP ==========\n")
	return b.String()
}

// dump_ethernet_header dumps the Ethernet frame header
func dump_ethernet_header(b *strings.Builder, eth *layers.Ethernet) {
	b.WriteString("--- Ethernet Header ---\n")
	fmt.Fprintf(b, "Dst MAC:   %s", eth.DstMAC)
	if (arp.HardwareAddress{Type: arp.HardwareEthernet, Addr: eth.DstMAC}).IsBroadcast() {
		b.WriteString(" (Broadcast)")
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "Src MAC:   %s\n", eth.SrcMAC)
	fmt.Fprintf(b, "EtherType: 0x%04X (%s)\n", uint16(eth.EthernetType), eth.EthernetType)
}

// dump_arp_header dumps an ARP packet of any hardware address length
func dump_arp_header(b *strings.Builder, raw []byte) {
	b.WriteString("\n--- ARP Header ---\n")

	p, err := arp.ParsePacket(raw)
	if err != nil {
		fmt.Fprintf(b, "Malformed: %v\n", err)
		dump_raw_bytes(b, raw)
		return
	}

	fmt.Fprintf(b, "HW Type:       %d (%s)\n", uint16(p.Hardware), p.Hardware)
	fmt.Fprintf(b, "Proto Type:    0x%04X (%s)\n", uint16(p.Protocol), p.Protocol)
	fmt.Fprintf(b, "HW Len:        %d bytes\n", len(p.SenderHardware))
	fmt.Fprintf(b, "Opcode:        %d (%s)\n", uint16(p.Operation), p.Operation)
	fmt.Fprintf(b, "Sender HW:     %s\n", arp.HardwareAddress{Type: p.Hardware, Addr: p.SenderHardware})
	fmt.Fprintf(b, "Sender IP:     %s\n", p.SenderProtocol)
	fmt.Fprintf(b, "Target HW:     %s\n", arp.HardwareAddress{Type: p.Hardware, Addr: p.TargetHardware})
	fmt.Fprintf(b, "Target IP:     %s\n", p.TargetProtocol)
}

// dump_ip_header dumps the IPv4 header
func dump_ip_header(b *strings.Builder, ip *layers.IPv4) {
	b.WriteString("\n--- IPv4 Header ---\n")
	fmt.Fprintf(b, "Version:       %d\n", ip.Version)
	fmt.Fprintf(b, "IHL:           %d (%d bytes)\n", ip.IHL, int(ip.IHL)*4)
	fmt.Fprintf(b, "TOS/DSCP:      0x%02X\n", ip.TOS)
	fmt.Fprintf(b, "Total Length:  %d bytes\n", ip.Length)
	fmt.Fprintf(b, "Identification: 0x%04X\n", ip.Id)
	fmt.Fprintf(b, "Flags:         %s\n", ip.Flags)
	fmt.Fprintf(b, "TTL:           %d\n", ip.TTL)
	fmt.Fprintf(b, "Protocol:      %d\n", uint8(ip.Protocol))
	fmt.Fprintf(b, "Checksum:      0x%04X\n", ip.Checksum)
	fmt.Fprintf(b, "Src IP:        %s\n", ip.SrcIP)
	fmt.Fprintf(b, "Dst IP:        %s\n", ip.DstIP)
}

// dump_raw_bytes dumps raw bytes in hex and ASCII format
func dump_raw_bytes(b *strings.Builder, data []byte) {
	b.WriteString("\nRaw bytes (hex + ASCII):\n")

	for i := 0; i < len(data); i += 16 {
		fmt.Fprintf(b, "%04X:  ", i)

		for j := 0; j < 16; j++ {
			if i+j < len(data) {
				fmt.Fprintf(b, "%02X ", data[i+j])
			} else {
				b.WriteString("   ")
			}
			if j == 7 {
				b.WriteString(" ")
			}
		}

		b.WriteString("  |")
		for j := 0; j < 16 && i+j < len(data); j++ {
			c := data[i+j]
			if c >= 32 && c <= 126 {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}
}
