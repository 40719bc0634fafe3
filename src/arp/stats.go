package arp

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Stats are the per-interface counters surfaced at end-of-run. They are
// written by the owning module's event handlers and may be read from any
// goroutine.
type Stats struct {
	RequestsSent     atomic.Uint64
	RequestsReceived atomic.Uint64
	RepliesSent      atomic.Uint64
	RepliesReceived  atomic.Uint64
	PacketsBuffered  atomic.Uint64
	PacketsReleased  atomic.Uint64
	PacketsDropped   atomic.Uint64
	PacketsDiscarded atomic.Uint64 // received ARP packets ignored (hardware type mismatch)
	EntriesCreated   atomic.Uint64
	EntriesUpdated   atomic.Uint64
	EntriesAgedOut   atomic.Uint64
	EntriesDeleted   atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Interface        int
	RequestsSent     uint64
	RequestsReceived uint64
	RepliesSent      uint64
	RepliesReceived  uint64
	PacketsBuffered  uint64
	PacketsReleased  uint64
	PacketsDropped   uint64
	PacketsDiscarded uint64
	EntriesCreated   uint64
	EntriesUpdated   uint64
	EntriesAgedOut   uint64
	EntriesDeleted   uint64
}

func (s *Stats) snapshot(ifIndex int) StatsSnapshot {
	return StatsSnapshot{
		Interface:        ifIndex,
		RequestsSent:     s.RequestsSent.Load(),
		RequestsReceived: s.RequestsReceived.Load(),
		RepliesSent:      s.RepliesSent.Load(),
		RepliesReceived:  s.RepliesReceived.Load(),
		PacketsBuffered:  s.PacketsBuffered.Load(),
		PacketsReleased:  s.PacketsReleased.Load(),
		PacketsDropped:   s.PacketsDropped.Load(),
		PacketsDiscarded: s.PacketsDiscarded.Load(),
		EntriesCreated:   s.EntriesCreated.Load(),
		EntriesUpdated:   s.EntriesUpdated.Load(),
		EntriesAgedOut:   s.EntriesAgedOut.Load(),
		EntriesDeleted:   s.EntriesDeleted.Load(),
	}
}

// statsSet hands out counters by interface index, creating them lazily so
// that entries owned by unknown interfaces (static config) still count.
type statsSet struct {
	mu   sync.RWMutex
	byIf map[int]*Stats
}

func newStatsSet() *statsSet {
	return &statsSet{byIf: make(map[int]*Stats)}
}

func (s *statsSet) of(ifIndex int) *Stats {
	s.mu.RLock()
	st, ok := s.byIf[ifIndex]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.byIf[ifIndex]; !ok {
		st = &Stats{}
		s.byIf[ifIndex] = st
	}
	return st
}

// snapshots returns one snapshot per interface, ordered by index.
func (s *statsSet) snapshots() []StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StatsSnapshot, 0, len(s.byIf))
	for idx, st := range s.byIf {
		out = append(out, st.snapshot(idx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interface < out[j].Interface })
	return out
}
