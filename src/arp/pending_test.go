package arp

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queued(payload string) QueuedPacket {
	return QueuedPacket{Payload: []byte(payload), NextHop: peerAddr}
}

func TestPendingBufferBound(t *testing.T) {
	p := &PendingRequest{}

	for i, s := range []string{"a", "b", "c", "d"} {
		evicted, ok := p.enqueue(queued(s), 3)
		assert.LessOrEqual(t, len(p.buffer), 3)
		if i < 3 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, "a", string(evicted.Payload))
	}

	var got []string
	for _, q := range p.Buffered() {
		got = append(got, string(q.Payload))
	}
	assert.Equal(t, []string{"b", "c", "d"}, got)

	assert.Len(t, p.drain(), 3)
	assert.Empty(t, p.Buffered())
}

func TestPendingBufferDisabled(t *testing.T) {
	p := &PendingRequest{}
	evicted, ok := p.enqueue(queued("a"), 0)
	require.True(t, ok)
	assert.Equal(t, "a", string(evicted.Payload))
	assert.Empty(t, p.buffer)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := netip.MustParseAddr("10.0.0.5")
	b := netip.MustParseAddr("10.0.0.2")

	r.Create(1, a, 0, 5, ForwardingMiss)
	r.Create(0, a, 0, 5, DuplicateAddressCheck)
	r.Create(1, b, 0, 5, ForwardingMiss)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 2, r.Outstanding(1))

	// same key replaces without double counting
	r.Create(1, b, 0, 3, ForwardingMiss)
	assert.Equal(t, 2, r.Outstanding(1))
	p, ok := r.Get(1, b)
	require.True(t, ok)
	assert.Equal(t, 3, p.RetriesRemaining)

	reqs := r.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, 0, reqs[0].Interface)
	assert.Equal(t, b, reqs[1].Address)
	assert.Equal(t, a, reqs[2].Address)

	removed := r.RemoveInterface(1)
	assert.Len(t, removed, 2)
	assert.Zero(t, r.Outstanding(1))
	assert.Equal(t, 1, r.Len())

	_, ok = r.Remove(0, a)
	assert.True(t, ok)
	_, ok = r.Remove(0, a)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}
