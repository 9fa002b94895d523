// Package apu provides the audio register file.
//
// Sound synthesis is out of scope; the APU absorbs register writes so games
// that program the channels keep running, and never asserts IRQ.
package apu

import "github.com/golang/glog"

// APU is the $4000-$4017 register file.
type APU struct {
	registers [0x18]uint8

	// Frame counter IRQ inhibit, $4017 bit 6. Mapper 0 titles that clear
	// it still run because nothing here raises the IRQ line.
	frameIRQInhibit bool
}

// New creates the register file with IRQs inhibited, matching power-up state.
func New() *APU {
	return &APU{frameIRQInhibit: true}
}

// ReadStatus services $4015 reads. The stub reports all channels silent.
func (a *APU) ReadStatus() uint8 {
	return 0
}

// WriteRegister stores a write to $4000-$4017.
func (a *APU) WriteRegister(addr uint16, value uint8) {
	if addr == 0x4017 {
		a.frameIRQInhibit = value&0x40 != 0
		if !a.frameIRQInhibit {
			glog.V(1).Infof("APU frame IRQ enabled ($4017=%#02x); IRQs are never asserted", value)
		}
	}
	a.registers[addr-0x4000] = value
}

// Register returns the last value written to addr, for the debugger.
func (a *APU) Register(addr uint16) uint8 {
	return a.registers[addr-0x4000]
}

// FrameIRQInhibited reports the $4017 bit 6 state.
func (a *APU) FrameIRQInhibited() bool {
	return a.frameIRQInhibit
}
