package arp

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"go-arp-sim/src/internal/errors"
)

// HardwareType is the ARP hardware type field (RFC 826 ar$hrd).
type HardwareType uint16

// Hardware types understood by the model.
const (
	HardwareEthernet HardwareType = 1
	HardwareATM      HardwareType = 19
)

// ETHERNET_ADDR_LEN is the length of an Ethernet hardware address.
const ETHERNET_ADDR_LEN = 6

// ParseHardwareType maps the static-table keyword to a HardwareType.
func ParseHardwareType(s string) (HardwareType, error) {
	switch strings.ToUpper(s) {
	case "ETHERNET":
		return HardwareEthernet, nil
	case "ATM":
		return HardwareATM, nil
	default:
		return 0, errors.Configf("unsupported hardware type %q", s)
	}
}

func (t HardwareType) String() string {
	switch t {
	case HardwareEthernet:
		return "ETHERNET"
	case HardwareATM:
		return "ATM"
	default:
		return fmt.Sprintf("HW(%d)", uint16(t))
	}
}

// ProtocolType is the ARP protocol type field (RFC 826 ar$pro).
type ProtocolType uint16

// ProtocolIP is the only protocol type the model resolves.
const ProtocolIP ProtocolType = 0x0800

// ParseProtocolType maps the static-table keyword to a ProtocolType.
func ParseProtocolType(s string) (ProtocolType, error) {
	if strings.ToUpper(s) == "IP" {
		return ProtocolIP, nil
	}
	return 0, errors.Configf("unsupported protocol type %q", s)
}

func (p ProtocolType) String() string {
	if p == ProtocolIP {
		return "IP"
	}
	return fmt.Sprintf("0x%04x", uint16(p))
}

// HardwareAddress is a typed, variable-length link-layer address.
type HardwareAddress struct {
	Type HardwareType
	Addr net.HardwareAddr
}

// Len returns the address length in bytes.
func (h HardwareAddress) Len() int {
	return len(h.Addr)
}

// IsZero reports whether the address carries no bytes.
func (h HardwareAddress) IsZero() bool {
	return len(h.Addr) == 0
}

// Equal compares type and bytes.
func (h HardwareAddress) Equal(o HardwareAddress) bool {
	return h.Type == o.Type && bytes.Equal(h.Addr, o.Addr)
}

// IsBroadcast reports whether every byte of the address is 0xff.
func (h HardwareAddress) IsBroadcast() bool {
	if len(h.Addr) == 0 {
		return false
	}
	for _, b := range h.Addr {
		if b != 0xff {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not alias h.
func (h HardwareAddress) Clone() HardwareAddress {
	return HardwareAddress{Type: h.Type, Addr: append(net.HardwareAddr(nil), h.Addr...)}
}

func (h HardwareAddress) String() string {
	if len(h.Addr) == 0 {
		return "<none>"
	}
	return h.Addr.String()
}

// ParseHardwareAddress parses a colon, dash or dot separated hex address.
// Ethernet addresses must be six bytes; ATM addresses may be of any length.
func ParseHardwareAddress(t HardwareType, s string) (HardwareAddress, error) {
	if mac, err := net.ParseMAC(s); err == nil {
		if t == HardwareEthernet && len(mac) != ETHERNET_ADDR_LEN {
			return HardwareAddress{}, errors.Configf("ethernet address %q is %d bytes, want %d",
				s, len(mac), ETHERNET_ADDR_LEN)
		}
		return HardwareAddress{Type: t, Addr: mac}, nil
	}
	if t == HardwareEthernet {
		return HardwareAddress{}, errors.Configf("malformed ethernet address %q", s)
	}

	digits := strings.NewReplacer(":", "", "-", "", ".", "").Replace(s)
	raw, err := hex.DecodeString(digits)
	if err != nil || len(raw) == 0 {
		return HardwareAddress{}, errors.Configf("malformed %s address %q", t, s)
	}
	return HardwareAddress{Type: t, Addr: raw}, nil
}

// BroadcastAddress returns the all-ones address of the given type and length.
func BroadcastAddress(t HardwareType, n int) HardwareAddress {
	addr := make(net.HardwareAddr, n)
	for i := range addr {
		addr[i] = 0xff
	}
	return HardwareAddress{Type: t, Addr: addr}
}

// MulticastAddress maps an IPv4 multicast group to its well-known Ethernet
// address: 01:00:5e followed by the low 23 bits of the group.
func MulticastAddress(group netip.Addr) HardwareAddress {
	ip := group.As4()
	return HardwareAddress{
		Type: HardwareEthernet,
		Addr: net.HardwareAddr{0x01, 0x00, 0x5e, ip[1] & 0x7f, ip[2], ip[3]},
	}
}

// subnetBroadcast returns the directed broadcast address of prefix.
func subnetBroadcast(prefix netip.Prefix) (netip.Addr, bool) {
	if !prefix.IsValid() || !prefix.Addr().Is4() || prefix.Bits() >= 31 {
		return netip.Addr{}, false
	}
	ip := prefix.Addr().As4()
	host := uint32(1)<<(32-prefix.Bits()) - 1
	v := (uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])) | host
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), true
}

// limitedBroadcast is 255.255.255.255.
var limitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})
