package apu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusReadsZero(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x1F)
	assert.Zero(t, a.ReadStatus())
}

func TestRegisterFileAbsorbsWrites(t *testing.T) {
	a := New()
	for addr := uint16(0x4000); addr <= 0x4017; addr++ {
		a.WriteRegister(addr, uint8(addr))
	}
	assert.Equal(t, uint8(0x00), a.Register(0x4000))
	assert.Equal(t, uint8(0x13), a.Register(0x4013))
}

func TestFrameCounterIRQInhibit(t *testing.T) {
	a := New()
	assert.True(t, a.FrameIRQInhibited())

	a.WriteRegister(0x4017, 0x40)
	assert.True(t, a.FrameIRQInhibited())

	// Clearing the inhibit bit is absorbed; nothing ever raises IRQ.
	a.WriteRegister(0x4017, 0x00)
	assert.False(t, a.FrameIRQInhibited())
}
