package arp

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-arp-sim/src/internal/errors"
)

func ether(last byte) HardwareAddress {
	return HardwareAddress{Type: HardwareEthernet, Addr: net.HardwareAddr{0x02, 0, 0, 0, 0, last}}
}

func TestTableInsertKeepsFirstEntry(t *testing.T) {
	tbl := NewTable(time.Minute)
	addr := netip.MustParseAddr("10.0.0.2")

	require.NoError(t, tbl.Insert(addr, 0, ProtocolIP, ether(2), Dynamic, 0, 0))
	err := tbl.Insert(addr, 0, ProtocolIP, ether(3), Dynamic, 0, time.Second)
	assert.Equal(t, ErrEntryExists, errors.Cause(err))

	e, ok := tbl.Lookup(0, addr, time.Second)
	require.True(t, ok)
	assert.True(t, e.Hardware.Equal(ether(2)))
	assert.Equal(t, 1, tbl.Len())

	// an expired entry may be replaced
	require.NoError(t, tbl.Insert(addr, 0, ProtocolIP, ether(4), Dynamic, 0, 2*time.Minute))
	e, ok = tbl.Lookup(0, addr, 2*time.Minute)
	require.True(t, ok)
	assert.True(t, e.Hardware.Equal(ether(4)))
}

func TestTableInsertValidation(t *testing.T) {
	tbl := NewTable(time.Minute)
	addr := netip.MustParseAddr("10.0.0.2")

	assert.True(t, errors.IsConfig(tbl.Insert(addr, 0, 0x86dd, ether(2), Dynamic, 0, 0)))
	assert.True(t, errors.IsConfig(tbl.Insert(addr, 0, ProtocolIP, ether(2), Static, -time.Second, 0)))
	assert.Zero(t, tbl.Len())
}

func TestTableDynamicIgnoresTimeout(t *testing.T) {
	tbl := NewTable(time.Minute)
	addr := netip.MustParseAddr("10.0.0.2")

	require.NoError(t, tbl.Insert(addr, 0, ProtocolIP, ether(2), Dynamic, time.Hour, 5*time.Second))
	e, ok := tbl.Lookup(0, addr, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second+time.Minute, e.ExpireTime)
}

func TestTableLookupEvictsExpired(t *testing.T) {
	tbl := NewTable(time.Minute)
	addr := netip.MustParseAddr("10.0.0.2")
	require.NoError(t, tbl.Insert(addr, 0, ProtocolIP, ether(2), Dynamic, 0, 0))

	_, ok := tbl.Lookup(0, addr, time.Minute)
	assert.True(t, ok, "still live at exactly the expire time")

	_, ok = tbl.Lookup(0, addr, time.Minute+time.Nanosecond)
	assert.False(t, ok)
	assert.Zero(t, tbl.Len())
	assert.EqualValues(t, 1, tbl.stats.of(0).EntriesAgedOut.Load())
}

func TestTableUpdateNeverMovesExpiryBack(t *testing.T) {
	tbl := NewTable(10 * time.Minute)
	addr := netip.MustParseAddr("10.0.0.2")
	require.NoError(t, tbl.Insert(addr, 0, ProtocolIP, ether(2), Dynamic, 0, 0))

	prev := 10 * time.Minute
	for _, now := range []time.Duration{time.Minute, 5 * time.Minute, 12 * time.Minute} {
		require.True(t, tbl.Update(0, addr, ether(3), now))
		e, _ := tbl.Lookup(0, addr, now)
		assert.GreaterOrEqual(t, e.ExpireTime, prev)
		assert.Equal(t, now+10*time.Minute, e.ExpireTime)
		assert.True(t, e.Hardware.Equal(ether(3)))
		prev = e.ExpireTime
	}

	assert.False(t, tbl.Update(0, netip.MustParseAddr("10.0.0.99"), ether(3), 0))
	assert.False(t, tbl.Update(0, addr, ether(3), time.Hour), "expired entries are not refreshed")
	assert.Zero(t, tbl.Len())
}

func TestTableStaticEntries(t *testing.T) {
	tbl := NewTable(time.Minute)
	addr := netip.MustParseAddr("192.168.1.1")
	require.NoError(t, tbl.Insert(addr, 1, ProtocolIP, ether(7), Static, 0, 0))

	assert.Zero(t, tbl.Sweep(24*time.Hour))
	require.True(t, tbl.Update(1, addr, ether(8), 24*time.Hour))

	e, ok := tbl.Lookup(1, addr, 48*time.Hour)
	require.True(t, ok)
	assert.Equal(t, Static, e.Kind)
	assert.Zero(t, e.ExpireTime)
	assert.True(t, e.Hardware.Equal(ether(8)))
}

func TestTableMergeOrdering(t *testing.T) {
	tbl := NewTable(time.Minute)
	addr := netip.MustParseAddr("10.0.0.2")

	merged, created, err := tbl.Merge(addr, 0, ProtocolIP, ether(2), 0, false)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.False(t, created)
	assert.Zero(t, tbl.Len())

	merged, created, err = tbl.Merge(addr, 0, ProtocolIP, ether(2), 0, true)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.True(t, created)

	merged, created, err = tbl.Merge(addr, 0, ProtocolIP, ether(3), time.Second, true)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.False(t, created)
	assert.Equal(t, 1, tbl.Len())
}

func TestTableSweepAndFlush(t *testing.T) {
	tbl := NewTable(time.Minute)
	for i, s := range []string{"10.0.0.2", "10.0.0.3", "10.0.1.2"} {
		ifIndex := 0
		if i == 2 {
			ifIndex = 1
		}
		require.NoError(t, tbl.Insert(netip.MustParseAddr(s), ifIndex, ProtocolIP, ether(byte(i)), Dynamic, 0, time.Duration(i)*time.Minute))
	}
	require.NoError(t, tbl.Insert(netip.MustParseAddr("10.0.0.9"), 0, ProtocolIP, ether(9), Static, 0, 0))

	assert.Equal(t, 1, tbl.Sweep(90*time.Second))
	assert.Equal(t, 3, tbl.Len())

	assert.Equal(t, 2, tbl.FlushInterface(0))
	entries := tbl.Entries(90 * time.Second)
	require.Len(t, entries, 1)
	assert.Equal(t, netip.MustParseAddr("10.0.1.2"), entries[0].Address)

	assert.True(t, tbl.Delete(1, netip.MustParseAddr("10.0.1.2")))
	assert.False(t, tbl.Delete(1, netip.MustParseAddr("10.0.1.2")))
}

func TestTableFindAddressByHardware(t *testing.T) {
	tbl := NewTable(time.Minute)
	require.NoError(t, tbl.Insert(netip.MustParseAddr("10.0.0.9"), 0, ProtocolIP, ether(1), Dynamic, 0, 0))
	require.NoError(t, tbl.Insert(netip.MustParseAddr("10.0.0.3"), 0, ProtocolIP, ether(1), Dynamic, 0, 0))

	addr, ok := tbl.FindAddressByHardware(ether(1), 0)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("10.0.0.3"), addr)

	_, ok = tbl.FindAddressByHardware(ether(2), 0)
	assert.False(t, ok)

	_, ok = tbl.FindAddressByHardware(ether(1), time.Hour)
	assert.False(t, ok)
}

func TestTableKeysByInterface(t *testing.T) {
	tbl := NewTable(time.Minute)
	addr := netip.MustParseAddr("10.0.0.2")
	atm := HardwareAddress{Type: HardwareATM, Addr: make(net.HardwareAddr, 20)}

	require.NoError(t, tbl.Insert(addr, 0, ProtocolIP, atm, Dynamic, 0, 0))
	_, ok := tbl.Lookup(1, addr, 0)
	assert.False(t, ok, "an entry learned on another interface is a miss")

	// the same address on a second interface is a separate binding
	require.NoError(t, tbl.Insert(addr, 1, ProtocolIP, ether(2), Dynamic, 0, 0))
	assert.Equal(t, 2, tbl.Len())

	assert.True(t, tbl.Update(1, addr, ether(3), time.Second))
	e, ok := tbl.Lookup(0, addr, time.Second)
	require.True(t, ok)
	assert.True(t, e.Hardware.Equal(atm), "updating one interface leaves the other alone")

	merged, created, err := tbl.Merge(addr, 0, ProtocolIP, atm, 2*time.Second, true)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.False(t, created)

	entries := tbl.Entries(2 * time.Second)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Interface)
	assert.Equal(t, 1, entries[1].Interface)

	assert.Equal(t, 1, tbl.FlushInterface(0))
	e, ok = tbl.Lookup(1, addr, 2*time.Second)
	require.True(t, ok)
	assert.True(t, e.Hardware.Equal(ether(3)))
}
