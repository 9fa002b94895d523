// Package bus implements the CPU address space: internal RAM, the PPU and
// APU register windows, controller ports, OAM DMA, and cartridge PRG.
package bus

import (
	"fmt"

	"github.com/golang/glog"

	"famigo/internal/apu"
	"famigo/internal/cartridge"
	"famigo/internal/input"
	"famigo/internal/ppu"
)

// Bus decodes CPU reads and writes onto the attached components. It holds the
// 2 KiB internal RAM; every other region belongs to the component behind it.
type Bus struct {
	ram [0x0800]uint8

	ppu         *ppu.PPU
	apu         *apu.APU
	controllers *input.Controllers
	cart        *cartridge.Cartridge

	// onOAMDMA, when set by the console, performs the $4014 transfer with
	// cycle accounting. Without it the copy still happens, unaccounted.
	onOAMDMA func(page uint8)
}

// New wires a bus over the given components.
func New(cart *cartridge.Cartridge, p *ppu.PPU, a *apu.APU, ctrl *input.Controllers) *Bus {
	return &Bus{
		ppu:         p,
		apu:         a,
		controllers: ctrl,
		cart:        cart,
	}
}

// SetOAMDMAHandler installs the console's DMA executor.
func (b *Bus) SetOAMDMAHandler(f func(page uint8)) {
	b.onOAMDMA = f
}

// Read returns the byte visible at addr. Unmapped regions read as zero.
func (b *Bus) Read(addr uint16) uint8 {
	switch {
	case addr < 0x2000:
		return b.ram[addr&0x07FF]

	case addr < 0x4000:
		return b.ppu.ReadRegister(0x2000 + addr&0x0007)

	case addr == 0x4015:
		return b.apu.ReadStatus()

	case addr == 0x4016 || addr == 0x4017:
		return b.controllers.Read(addr)

	case addr < 0x8000:
		// APU write-only ports, test registers, expansion area.
		return 0

	default:
		return b.cart.ReadPRG(addr)
	}
}

// Read16 fetches a little-endian word.
func (b *Bus) Read16(addr uint16) uint16 {
	low := uint16(b.Read(addr))
	high := uint16(b.Read(addr + 1))
	return high<<8 | low
}

// Write stores value at addr. Writes below $8000 into unmapped regions are
// silently accepted; PRG is read-only on NROM.
func (b *Bus) Write(addr uint16, value uint8) error {
	switch {
	case addr < 0x2000:
		b.ram[addr&0x07FF] = value

	case addr < 0x4000:
		return b.ppu.WriteRegister(0x2000+addr&0x0007, value)

	case addr == 0x4014:
		b.oamDMA(value)

	case addr == 0x4016:
		b.controllers.Write(value)

	case addr <= 0x4013 || addr == 0x4015 || addr == 0x4017:
		b.apu.WriteRegister(addr, value)

	case addr < 0x8000:
		// Test registers and expansion area absorb writes.

	default:
		return fmt.Errorf("%w: PRG write %#02x at %#04x",
			cartridge.ErrUnsupportedMapperFeature, value, addr)
	}
	return nil
}

// oamDMA services a $4014 write: 256 bytes from page<<8 into OAM, starting
// at the current OAMADDR.
func (b *Bus) oamDMA(page uint8) {
	glog.V(2).Infof("OAM DMA from $%02x00", page)
	if b.onOAMDMA != nil {
		b.onOAMDMA(page)
		return
	}
	b.CopyOAM(page)
}

// CopyOAM performs the DMA byte transfer without cycle accounting.
func (b *Bus) CopyOAM(page uint8) {
	base := uint16(page) << 8
	for i := 0; i < 256; i++ {
		b.ppu.WriteOAMByte(uint8(i), b.Read(base+uint16(i)))
	}
}

// RAM exposes internal RAM to the debugger.
func (b *Bus) RAM() *[0x0800]uint8 { return &b.ram }
