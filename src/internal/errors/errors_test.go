package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrors(t *testing.T) {
	cfg := Configf("unsupported hardware type %q", "FDDI")
	assert.True(t, IsConfig(cfg))
	assert.False(t, IsProtocol(cfg))
	assert.True(t, IsFatal(cfg))
	assert.Contains(t, cfg.Error(), "FDDI")

	proto := Protocolf("unknown opcode %d", 7)
	assert.True(t, IsProtocol(proto))
	assert.False(t, IsConfig(proto))

	// annotation keeps the class visible through Cause
	wrapped := Annotatef(cfg, "line %d", 3)
	assert.True(t, IsConfig(wrapped))
	assert.Contains(t, wrapped.Error(), "line 3")

	plain := New("link down")
	assert.False(t, IsFatal(plain))
	assert.False(t, IsFatal(nil))
}
