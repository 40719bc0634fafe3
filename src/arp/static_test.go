package arp

import (
	"fmt"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-arp-sim/src/internal/errors"
)

const staticTable = `
# node  [if]  proto  address       hw-type   hw-address               timeout
X             IP     192.168.1.1   ETHERNET  00:11:22:33:44:55        0
R*      1     IP     10.0.1.9      ATM       47.0005.80ffe1.0000      90s
7             ip     H2:eth0       ethernet  02-00-00-00-00-22        300   # by reference
`

func TestParseStatic(t *testing.T) {
	entries, err := ParseStatic(strings.NewReader(staticTable))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	all := entries[0]
	assert.Equal(t, 3, all.Line)
	assert.False(t, all.HasInterface)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), all.Address)
	assert.Zero(t, all.Timeout)
	assert.True(t, all.Matches("anything", 42))

	atm := entries[1]
	assert.True(t, atm.HasInterface)
	assert.Equal(t, 1, atm.Interface)
	assert.Equal(t, HardwareATM, atm.Hardware.Type)
	assert.Equal(t, 8, atm.Hardware.Len())
	assert.Equal(t, 90*time.Second, atm.Timeout)
	assert.True(t, atm.Matches("R1", 1))
	assert.True(t, atm.Matches("Router", 1))
	assert.False(t, atm.Matches("H1", 1))

	ref := entries[2]
	assert.Equal(t, "H2:eth0", ref.Ref)
	assert.False(t, ref.Address.IsValid())
	assert.Equal(t, 5*time.Minute, ref.Timeout)
	assert.True(t, ref.Matches("H1", 7))
	assert.False(t, ref.Matches("H1", 8))
}

func TestParseStaticErrors(t *testing.T) {
	cases := []string{
		"X IP 10.0.0.1 ETHERNET 00:11:22:33:44:55",
		"X IP 10.0.0.1 TOKENRING 00:11:22:33:44:55 0",
		"X IPX 10.0.0.1 ETHERNET 00:11:22:33:44:55 0",
		"X IP 10.0.0.1 ETHERNET 00:11:22:33:44 0",
		"X IP 10.0.0.1 ETHERNET 00:11:22:33:44:55 -1",
		"X IP 10.0.0.1 ETHERNET 00:11:22:33:44:55 soon",
		"X -1 IP 10.0.0.1 ETHERNET 00:11:22:33:44:55 0",
		"X IP fe80::1 ETHERNET 00:11:22:33:44:55 0",
		"X IP nowhere ETHERNET 00:11:22:33:44:55 0",
	}
	for _, line := range cases {
		_, err := ParseStatic(strings.NewReader("# header\n\n" + line + "\n"))
		require.Error(t, err, line)
		assert.True(t, errors.IsConfig(err), line)
		assert.Contains(t, err.Error(), "line 3", line)
	}
}

func TestLoadStatic(t *testing.T) {
	eth1 := ethernetInterface()
	eth1.Index = 1
	eth1.Name = "eth1"
	eth1.Hardware.Addr = peerMAC
	eth1.Address = netip.MustParsePrefix("10.0.1.1/24")
	h := newHarness(t, Config{}, ethernetInterface(), eth1)

	table := `
X       IP  10.0.1.20   ETHERNET  02:00:00:00:01:20  0
X       IP  10.0.1.20   ETHERNET  02:00:00:00:01:21  0
R1  0   IP  H2:eth0     ETHERNET  02:00:00:00:00:22  0
H*      IP  10.0.0.30   ETHERNET  02:00:00:00:00:30  0
`
	entries, err := ParseStatic(strings.NewReader(table))
	require.NoError(t, err)

	resolve := func(ref string) (netip.Addr, error) {
		if ref == "H2:eth0" {
			return netip.MustParseAddr("10.0.0.22"), nil
		}
		return netip.Addr{}, fmt.Errorf("unknown %s", ref)
	}
	n, err := h.mod.LoadStatic(entries, 1, resolve)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := h.mod.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, netip.MustParseAddr("10.0.0.22"), got[0].Address)
	assert.Equal(t, 0, got[0].Interface)
	assert.Equal(t, netip.MustParseAddr("10.0.1.20"), got[1].Address)
	assert.Equal(t, 1, got[1].Interface, "owned by the interface whose subnet holds it")
	assert.Equal(t, "02:00:00:00:01:20", got[1].Hardware.String())

	_, err = h.mod.LoadStatic(entries[2:3], 1, nil)
	assert.True(t, errors.IsConfig(err))
}

func TestLoadStaticRejectsMismatchedInterface(t *testing.T) {
	h := newHarness(t, Config{})

	entries, err := ParseStatic(strings.NewReader("X 4 IP 10.0.0.9 ETHERNET 02:00:00:00:00:09 0\n"))
	require.NoError(t, err)
	_, err = h.mod.LoadStatic(entries, 1, nil)
	assert.True(t, errors.IsConfig(err))

	entries, err = ParseStatic(strings.NewReader("X IP 10.0.0.9 ATM 47.0005.80ff 0\n"))
	require.NoError(t, err)
	_, err = h.mod.LoadStatic(entries, 1, nil)
	assert.True(t, errors.IsConfig(err))
}
