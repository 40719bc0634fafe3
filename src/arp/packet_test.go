package arp

import (
	"bytes"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketWireFormat(t *testing.T) {
	p := &Packet{
		Hardware:       HardwareEthernet,
		Protocol:       ProtocolIP,
		Operation:      OpRequest,
		SenderHardware: localMAC,
		SenderProtocol: localAddr,
		TargetHardware: make(net.HardwareAddr, 6),
		TargetProtocol: peerAddr,
	}
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, 28)

	want := []byte{
		0x00, 0x01, 0x08, 0x00, 0x06, 0x04, 0x00, 0x01,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x01, 10, 0, 0, 1,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 10, 0, 0, 5,
	}
	assert.True(t, bytes.Equal(want, b), "got % x", b)
}

func TestPacketVariableLengthHardware(t *testing.T) {
	nsap := make(net.HardwareAddr, 20)
	for i := range nsap {
		nsap[i] = byte(0x40 + i)
	}
	p := &Packet{
		Hardware:       HardwareATM,
		Protocol:       ProtocolIP,
		Operation:      OpReply,
		SenderHardware: nsap,
		SenderProtocol: netip.MustParseAddr("172.16.0.1"),
		TargetHardware: make(net.HardwareAddr, 20),
		TargetProtocol: netip.IPv4Unspecified(),
	}
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, ARP_FIXED_HDR_SIZE+2*(20+IPV4_ADDR_LEN))

	got, err := ParsePacket(b)
	require.NoError(t, err)
	assert.Equal(t, HardwareATM, got.Hardware)
	assert.Equal(t, nsap, got.SenderHardware)
	assert.True(t, got.TargetProtocol.IsUnspecified())
}

func TestPacketMarshalErrors(t *testing.T) {
	_, err := (&Packet{Hardware: HardwareEthernet, Protocol: ProtocolIP}).MarshalBinary()
	assert.Error(t, err)

	_, err = (&Packet{
		Hardware:       HardwareEthernet,
		Protocol:       ProtocolIP,
		SenderHardware: localMAC,
		TargetHardware: net.HardwareAddr{1, 2},
	}).MarshalBinary()
	assert.Error(t, err)
}

func TestParsePacketTruncated(t *testing.T) {
	_, err := ParsePacket([]byte{0, 1, 8, 0})
	assert.Error(t, err)

	_, err = ParsePacket([]byte{0, 1, 8, 0, 6, 4, 0, 1, 2, 0, 0})
	assert.Error(t, err)
}

func TestParsePacketForeignProtocolLength(t *testing.T) {
	b := []byte{
		0x00, 0x01, 0x86, 0xdd, 0x06, 0x02, 0x00, 0x01,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x01, 0xaa, 0xbb,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xcc, 0xdd,
	}
	p, err := ParsePacket(b)
	require.NoError(t, err)
	assert.Equal(t, ProtocolType(0x86dd), p.Protocol)
	assert.False(t, p.SenderProtocol.IsValid())
}
