// Package ppu implements the Picture Processing Unit: the scanline-granular
// clock, the CPU-visible register file, and the PPU-internal memory map
// (nametable RAM, palette RAM, OAM).
package ppu

import (
	"fmt"

	"github.com/golang/glog"

	"famigo/internal/cartridge"
)

const (
	// Clock grid. 341 dots per row, 262 rows per frame, 3 dots per CPU cycle.
	DotsPerRow   = 341
	RowsPerFrame = 262

	// Row-boundary events. The hardware transitions one dot after the row
	// boundary; the core uses row granularity.
	VBlankStartRow = 240
	VBlankEndRow   = 260

	VisibleRows = 240
	VisibleCols = 256
)

// PPUCTRL bits.
const (
	ctrlNametableMask   = 0x03
	ctrlIncrement32     = 0x04
	ctrlSpriteTable     = 0x08
	ctrlBackgroundTable = 0x10
	ctrlSpriteTall      = 0x20
	ctrlNMIEnable       = 0x80
)

// PPUMASK bits.
const (
	maskShowBackgroundLeft = 0x02
	maskShowSpritesLeft    = 0x04
	maskShowBackground     = 0x08
	maskShowSprites        = 0x10
)

// PPUSTATUS bits.
const (
	statusSpriteOverflow = 0x20
	statusSpriteZeroHit  = 0x40
	statusVBlank         = 0x80
)

// PPU holds all PPU state. It is driven by TickFromCPU at exactly three dots
// per CPU cycle and signals the CPU through the NMI callback.
type PPU struct {
	// CPU-visible registers.
	ctrl    uint8
	mask    uint8
	status  uint8
	oamAddr uint8

	// Internal address state (loopy model): current and temporary VRAM
	// address, fine X, and the shared $2005/$2006 write toggle.
	v uint16
	t uint16
	x uint8
	w bool

	readBuffer uint8

	// Memory owned by the PPU.
	vram    [2048]uint8
	palette [32]uint8
	oam     [256]uint8

	cart  *cartridge.Cartridge
	tiles *TileSet

	// Clock state.
	frameCount uint64
	row        int
	col        int
	oddFrame   bool

	nmiLine bool

	// Predicted sprite-zero hit for the current frame, compared each
	// scanline. Recomputed at pre-render and after rendering-affecting
	// register writes.
	hit HitPrediction

	// Callbacks, fired from row-boundary processing. The console owns all
	// of them; the PPU never calls back into the CPU directly.
	onNMI            func()
	onVBlankStart    func()
	onVBlankEnd      func()
	onRenderBoundary func(row int)
}

// New creates a PPU wired to the cartridge's CHR and mirroring.
func New(cart *cartridge.Cartridge) *PPU {
	p := &PPU{
		cart:  cart,
		tiles: BakeTiles(cart.CHR()),
	}
	p.hit = p.predictSpriteZeroHit()
	return p
}

// Callback wiring, console-owned.

func (p *PPU) SetNMICallback(f func()) { p.onNMI = f }

func (p *PPU) SetVBlankStartCallback(f func()) { p.onVBlankStart = f }

func (p *PPU) SetVBlankEndCallback(f func()) { p.onVBlankEnd = f }

func (p *PPU) SetRenderBoundaryCallback(f func(int)) { p.onRenderBoundary = f }

// Clock accessors.

func (p *PPU) FrameCount() uint64 { return p.frameCount }

func (p *PPU) Row() int { return p.row }

func (p *PPU) Col() int { return p.col }

func (p *PPU) OddFrame() bool { return p.oddFrame }

// VBlank reports PPUSTATUS bit 7.
func (p *PPU) VBlank() bool { return p.status&statusVBlank != 0 }

// InVBlankRows reports whether the clock is inside the vblank row span.
func (p *PPU) InVBlankRows() bool {
	return p.row > VBlankStartRow && p.row <= VBlankEndRow
}

// NMILine reports the current level of the NMI line, for the debugger.
func (p *PPU) NMILine() bool { return p.nmiLine }

// TickFromCPU advances the PPU clock by three dots per CPU cycle.
func (p *PPU) TickFromCPU(cpuCycles int) {
	p.Tick(3 * cpuCycles)
}

// Tick advances the dot clock, finishing rows as col wraps.
func (p *PPU) Tick(dots int) {
	p.col += dots
	for p.col >= DotsPerRow {
		p.col -= DotsPerRow
		p.finishRow(p.row)
		p.row = (p.row + 1) % RowsPerFrame
		if p.row == 0 {
			p.frameCount++
			if p.oddFrame {
				// Pre-render dot skip on odd frames.
				p.col++
			}
			p.oddFrame = !p.oddFrame
		}
	}
}

// finishRow processes the event attached to the end of row.
func (p *PPU) finishRow(row int) {
	switch {
	case row < VisibleRows:
		if p.hit.Valid && row == p.hit.Row && p.status&statusSpriteZeroHit == 0 {
			p.status |= statusSpriteZeroHit
			glog.V(2).Infof("Frame %d: sprite 0 hit at (%d,%d)", p.frameCount, p.hit.Row, p.hit.Col)
		}

	case row == VBlankStartRow:
		p.status |= statusVBlank
		if p.ctrl&ctrlNMIEnable != 0 {
			p.raiseNMI()
		}
		glog.V(2).Infof("Frame %d: vblank start (NMI %t)", p.frameCount, p.ctrl&ctrlNMIEnable != 0)
		if p.onVBlankStart != nil {
			p.onVBlankStart()
		}

	case row == VBlankEndRow:
		p.status &^= statusVBlank | statusSpriteZeroHit | statusSpriteOverflow
		p.nmiLine = false
		p.hit = p.predictSpriteZeroHit()
		if p.onVBlankEnd != nil {
			p.onVBlankEnd()
		}
	}
}

// raiseNMI drives one edge on the NMI line.
func (p *PPU) raiseNMI() {
	if p.nmiLine {
		return
	}
	p.nmiLine = true
	if p.onNMI != nil {
		p.onNMI()
	}
}

// TickToNextStatusChange advances the clock, in one accounted jump, to the
// end of the earliest future row at which PPUSTATUS will change: vblank start
// at row 240, the clears at row 260, or the predicted sprite-zero row.
// Used by the CPU's idle-loop acceleration.
func (p *PPU) TickToNextStatusChange() {
	k := p.rowsUntilStatusChange()
	p.Tick(k*DotsPerRow - p.col)
}

// rowsUntilStatusChange returns how many row completions away the next
// PPUSTATUS change is. Finishing the current row counts as one.
func (p *PPU) rowsUntilStatusChange() int {
	distance := func(target int) int {
		return (target-p.row+RowsPerFrame)%RowsPerFrame + 1
	}

	// Row 240 changes status only when vblank is clear; row 260 only when
	// any of the top three bits are set to clear. One of the two always
	// applies, so best always receives a candidate.
	best := RowsPerFrame + 1
	if p.status&statusVBlank == 0 {
		best = min(best, distance(VBlankStartRow))
	}
	if p.status&(statusVBlank|statusSpriteZeroHit|statusSpriteOverflow) != 0 {
		best = min(best, distance(VBlankEndRow))
	}
	if p.hit.Valid && p.status&statusSpriteZeroHit == 0 {
		best = min(best, distance(p.hit.Row))
	}
	return best
}

// renderingEnabled reports whether background or sprite rendering is on.
func (p *PPU) renderingEnabled() bool {
	return p.mask&(maskShowBackground|maskShowSprites) != 0
}

// rendering reports whether the PPU is actively rendering: not in vblank and
// rendering enabled. Register writes in this window move the mid-frame
// render boundary.
func (p *PPU) rendering() bool {
	return !p.VBlank() && p.row < VisibleRows && p.renderingEnabled()
}

// ReadRegister services CPU reads of $2000-$2007.
func (p *PPU) ReadRegister(addr uint16) uint8 {
	switch addr {
	case 0x2002: // PPUSTATUS
		status := p.status
		p.status &^= statusVBlank
		p.w = false
		return status

	case 0x2004: // OAMDATA
		return p.oam[p.oamAddr]

	case 0x2007: // PPUDATA
		return p.readData()

	default:
		// Write-only ports; approximate open bus as zero.
		return 0
	}
}

// WriteRegister services CPU writes to $2000-$2007.
func (p *PPU) WriteRegister(addr uint16, value uint8) error {
	switch addr {
	case 0x2000: // PPUCTRL
		// Bits other than the increment mode and NMI enable affect how
		// the current frame renders.
		if p.rendering() && (p.ctrl^value)&^uint8(ctrlIncrement32|ctrlNMIEnable) != 0 {
			p.publishRenderBoundary()
		}
		rising := p.ctrl&ctrlNMIEnable == 0 && value&ctrlNMIEnable != 0
		p.ctrl = value
		p.t = p.t&0xF3FF | uint16(value&ctrlNametableMask)<<10
		if rising && p.VBlank() {
			p.raiseNMI()
		}
		p.recomputeHitPrediction()

	case 0x2001: // PPUMASK
		if p.rendering() && p.mask != value {
			p.publishRenderBoundary()
		}
		p.mask = value
		p.recomputeHitPrediction()

	case 0x2003: // OAMADDR
		p.oamAddr = value

	case 0x2004: // OAMDATA
		p.oam[p.oamAddr] = value
		p.oamAddr++

	case 0x2005: // PPUSCROLL
		if p.rendering() {
			p.publishRenderBoundary()
		}
		if !p.w {
			p.t = p.t&0xFFE0 | uint16(value)>>3
			p.x = value & 0x07
		} else {
			p.t = p.t&0x8FFF | uint16(value&0x07)<<12
			p.t = p.t&0xFC1F | uint16(value&0xF8)<<2
		}
		p.w = !p.w
		p.recomputeHitPrediction()

	case 0x2006: // PPUADDR
		if !p.w {
			p.t = p.t&0x80FF | uint16(value&0x3F)<<8
		} else {
			p.t = p.t&0xFF00 | uint16(value)
			p.v = p.t
		}
		p.w = !p.w

	case 0x2007: // PPUDATA
		if err := p.writeVRAM(p.v, value); err != nil {
			return err
		}
		p.incrementV()
	}
	return nil
}

// publishRenderBoundary lets the renderer flush scanlines already produced
// under the old register state.
func (p *PPU) publishRenderBoundary() {
	glog.V(2).Infof("Frame %d: mid-frame render boundary at row %d", p.frameCount, p.row)
	if p.onRenderBoundary != nil {
		p.onRenderBoundary(p.row)
	}
}

// recomputeHitPrediction refreshes the sprite-zero forecast after a
// rendering-affecting write.
func (p *PPU) recomputeHitPrediction() {
	p.hit = p.predictSpriteZeroHit()
}

// readData implements the buffered $2007 read. Palette reads bypass the
// buffer, which is refilled from the nametable underneath.
func (p *PPU) readData() uint8 {
	var data uint8
	if p.v&0x3FFF >= 0x3F00 {
		data = p.readVRAM(p.v)
		p.readBuffer = p.readVRAM(p.v & 0x2FFF)
	} else {
		data = p.readBuffer
		p.readBuffer = p.readVRAM(p.v)
	}
	p.incrementV()
	return data
}

// incrementV steps the VRAM address by 1 or 32 per PPUCTRL bit 2.
func (p *PPU) incrementV() {
	if p.ctrl&ctrlIncrement32 != 0 {
		p.v += 32
	} else {
		p.v++
	}
	p.v &= 0x3FFF
}

// WriteOAMByte is the OAM DMA entry point; the copy starts at OAMADDR.
func (p *PPU) WriteOAMByte(offset uint8, value uint8) {
	p.oam[p.oamAddr+offset] = value
}

// readVRAM reads the PPU address space: CHR, nametables (with their $3000
// mirror), and palette RAM.
func (p *PPU) readVRAM(addr uint16) uint8 {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		return p.cart.ReadCHR(addr)
	case addr < 0x3F00:
		return p.vram[p.nametableIndex(addr)]
	default:
		return p.palette[paletteIndex(addr)]
	}
}

// writeVRAM writes the PPU address space. CHR is ROM on NROM.
func (p *PPU) writeVRAM(addr uint16, value uint8) error {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		return fmt.Errorf("%w: CHR write at %#04x", cartridge.ErrUnsupportedMapperFeature, addr)
	case addr < 0x3F00:
		p.vram[p.nametableIndex(addr)] = value
	default:
		p.palette[paletteIndex(addr)] = value
	}
	return nil
}

// nametableIndex maps a $2000-$3EFF address into the 2 KiB nametable RAM
// according to the cartridge mirroring: horizontal wires logical tables
// {0,1,2,3} to physical halves {A,A,B,B}, vertical to {A,B,A,B}.
func (p *PPU) nametableIndex(addr uint16) uint16 {
	addr &= 0x0FFF
	table := addr >> 10
	offset := addr & 0x03FF

	switch p.cart.Mirroring() {
	case cartridge.MirrorVertical:
		if table == 1 || table == 3 {
			return 0x400 + offset
		}
		return offset
	default: // horizontal
		if table >= 2 {
			return 0x400 + offset
		}
		return offset
	}
}

// paletteIndex folds a $3F00-$3FFF address into the 32-byte palette RAM;
// $3F10/$14/$18/$1C alias their background counterparts.
func paletteIndex(addr uint16) uint16 {
	index := addr & 0x1F
	if index == 0x10 || index == 0x14 || index == 0x18 || index == 0x1C {
		index &= 0x0F
	}
	return index
}

// Snapshot accessors used by the renderer and debugger between frames.

func (p *PPU) CTRL() uint8 { return p.ctrl }

func (p *PPU) MASK() uint8 { return p.mask }

// STATUS returns PPUSTATUS without the read side effects.
func (p *PPU) STATUS() uint8 { return p.status }

// ScrollX returns the horizontal scroll derived from t and fine X.
func (p *PPU) ScrollX() int {
	return int(p.t&0x001F)<<3 | int(p.x)
}

// ScrollY returns the vertical scroll derived from t.
func (p *PPU) ScrollY() int {
	return int(p.t>>5&0x001F)<<3 | int(p.t>>12&0x07)
}

// BaseNametable returns the nametable select bits from t.
func (p *PPU) BaseNametable() int {
	return int(p.t >> 10 & 0x03)
}

// OAM returns the object attribute memory. Callers must not write it.
func (p *PPU) OAM() *[256]uint8 { return &p.oam }

// PaletteRAM returns the 32-byte palette RAM. Callers must not write it.
func (p *PPU) PaletteRAM() *[32]uint8 { return &p.palette }

// NametableByte reads nametable RAM through the mirroring map.
func (p *PPU) NametableByte(addr uint16) uint8 {
	return p.vram[p.nametableIndex(addr)]
}

// Tiles returns the pre-baked CHR tile set.
func (p *PPU) Tiles() *TileSet { return p.tiles }

// SpriteHeight returns 8 or 16 per PPUCTRL bit 5.
func (p *PPU) SpriteHeight() int {
	if p.ctrl&ctrlSpriteTall != 0 {
		return 16
	}
	return 8
}

// PredictedHit exposes the current sprite-zero forecast.
func (p *PPU) PredictedHit() HitPrediction { return p.hit }
