package arp

import (
	"net/netip"
	"sort"
	"time"

	"go-arp-sim/src/internal/errors"
)

// ====== Translation Table ======

// EntryKind distinguishes configured entries from learned ones.
type EntryKind int

const (
	Dynamic EntryKind = iota // learned from a packet, ages out
	Static                   // loaded from configuration, never expires
)

func (k EntryKind) String() string {
	if k == Static {
		return "Static"
	}
	return "Dynamic"
}

// Entry is one resolved protocol address.
type Entry struct {
	Address    netip.Addr
	Hardware   HardwareAddress
	Protocol   ProtocolType
	Interface  int
	Kind       EntryKind
	ExpireTime time.Duration // simulation time; for Static entries the configured timeout
}

func (e *Entry) expired(now time.Duration) bool {
	return e.Kind == Dynamic && now > e.ExpireTime
}

// ErrEntryExists is returned by Insert when the address already has a live
// entry on the interface. The existing entry keeps winning lookups.
var ErrEntryExists = errors.New("translation table entry already exists")

// tableKey scopes a binding to the interface it was learned or configured
// on. The same protocol address may resolve differently on two links.
type tableKey struct {
	ifIndex int
	addr    netip.Addr
}

// Table maps (interface, protocol address) pairs to hardware addresses.
// Expired dynamic entries are removed lazily by Lookup and eagerly by Sweep.
type Table struct {
	entries map[tableKey]*Entry
	expire  time.Duration
	stats   *statsSet
}

// NewTable returns an empty table whose dynamic entries live for expire.
func NewTable(expire time.Duration) *Table {
	return newTable(expire, newStatsSet())
}

func newTable(expire time.Duration, stats *statsSet) *Table {
	return &Table{
		entries: make(map[tableKey]*Entry),
		expire:  expire,
		stats:   stats,
	}
}

// Len returns the number of stored entries, expired or not.
func (t *Table) Len() int {
	return len(t.entries)
}

// Lookup returns the entry for addr on ifIndex. An expired dynamic entry is
// evicted and reported as a miss.
func (t *Table) Lookup(ifIndex int, addr netip.Addr, now time.Duration) (Entry, bool) {
	key := tableKey{ifIndex, addr}
	e, ok := t.entries[key]
	if !ok {
		return Entry{}, false
	}
	if e.expired(now) {
		delete(t.entries, key)
		t.stats.of(e.Interface).EntriesAgedOut.Add(1)
		return Entry{}, false
	}
	return *e, true
}

// Insert creates a new entry. Dynamic entries expire one expire interval
// from now whatever timeout says; Static entries store timeout as given and
// it must not be negative.
func (t *Table) Insert(addr netip.Addr, ifIndex int, proto ProtocolType, hw HardwareAddress,
	kind EntryKind, timeout time.Duration, now time.Duration) error {

	if proto != ProtocolIP {
		return errors.Configf("unsupported protocol type %s for %s", proto, addr)
	}
	if kind == Static && timeout < 0 {
		return errors.Configf("static entry for %s has negative timeout %v", addr, timeout)
	}
	key := tableKey{ifIndex, addr}
	if old, ok := t.entries[key]; ok && !old.expired(now) {
		return ErrEntryExists
	}

	e := &Entry{
		Address:   addr,
		Hardware:  hw.Clone(),
		Protocol:  proto,
		Interface: ifIndex,
		Kind:      kind,
	}
	if kind == Dynamic {
		e.ExpireTime = now + t.expire
	} else {
		e.ExpireTime = timeout
	}

	t.entries[key] = e
	t.stats.of(ifIndex).EntriesCreated.Add(1)
	return nil
}

// Update overwrites the hardware address of the entry for addr on ifIndex
// and pushes a dynamic entry's expiry to now plus the expire interval.
// Expiry never moves backwards. It reports whether an entry was found.
func (t *Table) Update(ifIndex int, addr netip.Addr, hw HardwareAddress, now time.Duration) bool {
	key := tableKey{ifIndex, addr}
	e, ok := t.entries[key]
	if !ok {
		return false
	}
	if e.expired(now) {
		delete(t.entries, key)
		t.stats.of(e.Interface).EntriesAgedOut.Add(1)
		return false
	}

	e.Hardware = hw.Clone()
	// static entries keep their never-expire timeout
	if e.Kind == Dynamic {
		e.ExpireTime = max(e.ExpireTime, now+t.expire)
	}
	t.stats.of(e.Interface).EntriesUpdated.Add(1)
	return true
}

// Merge folds an observed (addr, hw) binding into the table: an existing
// entry is always updated first, and a new dynamic entry is created only if
// none existed and create is set. Insert is never reached while an entry is
// live, which keeps keys unique.
func (t *Table) Merge(addr netip.Addr, ifIndex int, proto ProtocolType, hw HardwareAddress,
	now time.Duration, create bool) (merged bool, created bool, err error) {

	if t.Update(ifIndex, addr, hw, now) {
		return true, false, nil
	}
	if !create {
		return false, false, nil
	}
	if err := t.Insert(addr, ifIndex, proto, hw, Dynamic, 0, now); err != nil {
		return false, false, err
	}
	return false, true, nil
}

// Delete removes the entry for addr on ifIndex.
func (t *Table) Delete(ifIndex int, addr netip.Addr) bool {
	key := tableKey{ifIndex, addr}
	e, ok := t.entries[key]
	if !ok {
		return false
	}
	delete(t.entries, key)
	t.stats.of(e.Interface).EntriesDeleted.Add(1)
	return true
}

// FlushInterface removes every entry owned by ifIndex and returns how many
// were removed.
func (t *Table) FlushInterface(ifIndex int) int {
	removed := 0
	for key := range t.entries {
		if key.ifIndex != ifIndex {
			continue
		}
		delete(t.entries, key)
		removed++
	}
	if removed > 0 {
		t.stats.of(ifIndex).EntriesDeleted.Add(uint64(removed))
	}
	return removed
}

// Sweep removes every expired dynamic entry and returns how many were
// removed.
func (t *Table) Sweep(now time.Duration) int {
	removed := 0
	for key, e := range t.entries {
		if !e.expired(now) {
			continue
		}
		delete(t.entries, key)
		t.stats.of(e.Interface).EntriesAgedOut.Add(1)
		removed++
	}
	return removed
}

// FindAddressByHardware is the reverse lookup. When several live entries
// share the hardware address the lowest protocol address wins.
func (t *Table) FindAddressByHardware(hw HardwareAddress, now time.Duration) (netip.Addr, bool) {
	var (
		found netip.Addr
		ok    bool
	)
	for _, e := range t.entries {
		if e.expired(now) || !e.Hardware.Equal(hw) {
			continue
		}
		if !ok || e.Address.Less(found) {
			found, ok = e.Address, true
		}
	}
	return found, ok
}

// Entries returns a copy of all live entries ordered by address, then
// interface.
func (t *Table) Entries(now time.Duration) []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.expired(now) {
			continue
		}
		cp := *e
		cp.Hardware = e.Hardware.Clone()
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address.Less(out[j].Address)
		}
		return out[i].Interface < out[j].Interface
	})
	return out
}
