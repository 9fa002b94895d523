// Package render composes 256x240 RGBA frames from PPU state between frames,
// scanline by scanline so mid-frame register changes apply only to the rows
// rendered after the boundary.
package render

import (
	"image"

	"famigo/internal/ppu"
)

// Renderer owns the frame buffer being composed for the current frame.
type Renderer struct {
	frame      *image.RGBA
	flushedRow int
}

// New creates a renderer with a black frame.
func New() *Renderer {
	return &Renderer{
		frame: image.NewRGBA(image.Rect(0, 0, ppu.VisibleCols, ppu.VisibleRows)),
	}
}

// Frame returns the most recently completed frame.
func (r *Renderer) Frame() *image.RGBA { return r.frame }

// FlushTo renders up to (excluding) row with the PPU's current register
// state. Fired from the mid-frame render boundary.
func (r *Renderer) FlushTo(p *ppu.PPU, row int) {
	if row > ppu.VisibleRows {
		row = ppu.VisibleRows
	}
	r.renderRows(p, r.flushedRow, row)
	if row > r.flushedRow {
		r.flushedRow = row
	}
}

// FinishFrame renders the remaining rows and resets for the next frame.
// Call at vblank start.
func (r *Renderer) FinishFrame(p *ppu.PPU) *image.RGBA {
	r.renderRows(p, r.flushedRow, ppu.VisibleRows)
	r.flushedRow = 0
	return r.frame
}

func (r *Renderer) renderRows(p *ppu.PPU, from, to int) {
	if from < 0 {
		from = 0
	}
	mask := p.MASK()
	showBG := mask&0x08 != 0
	showSprites := mask&0x10 != 0
	backdrop := lookupColor(p.PaletteRAM()[0])

	for y := from; y < to; y++ {
		sprites := spritesOnRow(p, y)
		for x := 0; x < ppu.VisibleCols; x++ {
			bgColor, bgOpaque := uint8(0), false
			if showBG && !(x < 8 && mask&0x02 == 0) {
				bgColor, bgOpaque = backgroundPixel(p, x, y)
			}
			spColor, spOpaque, spBehind := uint8(0), false, false
			if showSprites && !(x < 8 && mask&0x04 == 0) {
				spColor, spOpaque, spBehind = spritePixel(p, sprites, x, y)
			}

			var c pixelColor
			switch {
			case !bgOpaque && !spOpaque:
				c = backdrop
			case !spOpaque:
				c = lookupColor(bgColor)
			case !bgOpaque:
				c = lookupColor(spColor)
			case spBehind:
				c = lookupColor(bgColor)
			default:
				c = lookupColor(spColor)
			}

			i := r.frame.PixOffset(x, y)
			r.frame.Pix[i+0] = c.r
			r.frame.Pix[i+1] = c.g
			r.frame.Pix[i+2] = c.b
			r.frame.Pix[i+3] = 0xFF
		}
	}
}

// backgroundPixel resolves the palette RAM index of the background at screen
// (x, y), honoring scroll and nametable wrapping.
func backgroundPixel(p *ppu.PPU, x, y int) (color uint8, opaque bool) {
	worldX := p.ScrollX() + x
	worldY := p.ScrollY() + y
	table := p.BaseNametable()

	if worldX >= 512 {
		worldX -= 512
	}
	if worldX >= 256 {
		table ^= 1
		worldX -= 256
	}
	if worldY >= 480 {
		worldY -= 480
	}
	if worldY >= 240 {
		table ^= 2
		worldY -= 240
	}

	tileX := worldX >> 3
	tileY := worldY >> 3
	if tileX >= 32 || tileY >= 30 {
		return 0, false
	}

	base := uint16(0x2000 | table<<10)
	tileIndex := int(p.NametableByte(base | uint16(tileY<<5|tileX)))
	if p.CTRL()&0x10 != 0 {
		tileIndex += 256
	}

	pixel := p.Tiles().At(tileIndex)[worldY&7][worldX&7]
	if pixel == 0 {
		return 0, false
	}

	// Attribute byte: one per 32x32 block, two bits per 16x16 quadrant.
	attr := p.NametableByte(base | 0x03C0 | uint16(tileY>>2<<3|tileX>>2))
	quadrant := (tileY & 0x02) | ((tileX & 0x02) >> 1)
	palette := attr >> (quadrant << 1) & 0x03

	return p.PaletteRAM()[uint16(palette)<<2|uint16(pixel)], true
}

// rowSprite is one OAM entry visible on the current scanline.
type rowSprite struct {
	index int
	y     int
	tile  int
	flags uint8
	x     int
}

// spritesOnRow returns the first eight sprites covering screen row y, in OAM
// order. The effective Y of a sprite is its OAM byte plus one.
func spritesOnRow(p *ppu.PPU, y int) []rowSprite {
	oam := p.OAM()
	height := p.SpriteHeight()
	var out []rowSprite
	for i := 0; i < 64 && len(out) < 8; i++ {
		spriteY := int(oam[i*4]) + 1
		if y < spriteY || y >= spriteY+height {
			continue
		}
		out = append(out, rowSprite{
			index: i,
			y:     spriteY,
			tile:  int(oam[i*4+1]),
			flags: oam[i*4+2],
			x:     int(oam[i*4+3]),
		})
	}
	return out
}

// spritePixel resolves the front-most opaque sprite pixel at (x, y).
func spritePixel(p *ppu.PPU, sprites []rowSprite, x, y int) (color uint8, opaque, behind bool) {
	height := p.SpriteHeight()
	for _, s := range sprites {
		if x < s.x || x >= s.x+8 {
			continue
		}
		q := x - s.x
		r := y - s.y
		if s.flags&0x40 != 0 {
			q = 7 - q
		}
		if s.flags&0x80 != 0 {
			r = height - 1 - r
		}

		var tileIndex int
		if height == 16 {
			tileIndex = (s.tile&0x01)*256 + (s.tile &^ 0x01)
			if r >= 8 {
				tileIndex++
				r -= 8
			}
		} else {
			tileIndex = s.tile
			if p.CTRL()&0x08 != 0 {
				tileIndex += 256
			}
		}

		pixel := p.Tiles().At(tileIndex)[r][q]
		if pixel == 0 {
			continue
		}
		palette := s.flags & 0x03
		color := p.PaletteRAM()[0x10|uint16(palette)<<2|uint16(pixel)]
		return color, true, s.flags&0x20 != 0
	}
	return 0, false, false
}
