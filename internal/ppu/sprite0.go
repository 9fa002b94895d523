package ppu

// Sprite-zero hit prediction. Instead of testing overlap dot by dot, the PPU
// forecasts the pixel where PPUSTATUS bit 6 will next be set: the first
// opaque sprite-0 pixel, in row-major screen order, that lands on an opaque
// background pixel. finishRow compares each visible row against the forecast.
// The forecast is refreshed at pre-render and after any rendering-affecting
// register write.

// HitPrediction is a predicted sprite-zero collision coordinate.
type HitPrediction struct {
	Valid bool
	Row   int // screen Y
	Col   int // screen X
}

func (p *PPU) predictSpriteZeroHit() HitPrediction {
	// Both layers must be on for a hit to be possible.
	if p.mask&maskShowBackground == 0 || p.mask&maskShowSprites == 0 {
		return HitPrediction{}
	}

	spriteY := int(p.oam[0]) + 1
	tileIndex := int(p.oam[1])
	flags := p.oam[2]
	spriteX := int(p.oam[3])

	// An x of 255 never hits on hardware; a sprite below the frame never
	// renders.
	if spriteY >= VisibleRows || spriteX >= 255 {
		return HitPrediction{}
	}

	flipV := flags&0x80 != 0
	flipH := flags&0x40 != 0
	height := p.SpriteHeight()

	if p.spriteTileEmpty(tileIndex, height) {
		return HitPrediction{}
	}

	// Leftmost-8-pixel clipping applies unless both layers render there.
	clipLeft := p.mask&maskShowBackgroundLeft == 0 || p.mask&maskShowSpritesLeft == 0

	for r := 0; r < height; r++ {
		screenY := spriteY + r
		if screenY >= VisibleRows {
			break
		}
		for q := 0; q < 8; q++ {
			screenX := spriteX + q
			if clipLeft && screenX < 8 {
				continue
			}
			if p.spritePixel(tileIndex, r, q, height, flipV, flipH) == 0 {
				continue
			}
			if !p.backgroundOpaque(screenX, screenY) {
				continue
			}
			// First overlapping bit decides. The hardware cannot
			// report a hit at x=255 or beyond the frame.
			if screenX >= VisibleCols || screenX == 255 || screenY >= VisibleRows {
				return HitPrediction{}
			}
			return HitPrediction{Valid: true, Row: screenY, Col: screenX}
		}
	}
	return HitPrediction{}
}

// spriteTileEmpty reports whether sprite 0's pattern has no opaque pixels,
// which short-circuits the mask intersection.
func (p *PPU) spriteTileEmpty(tileIndex, height int) bool {
	if height == 16 {
		base := (tileIndex&0x01)*256 + (tileIndex &^ 0x01)
		return p.tiles.Empty(base) && p.tiles.Empty(base+1)
	}
	if p.ctrl&ctrlSpriteTable != 0 {
		tileIndex += 256
	}
	return p.tiles.Empty(tileIndex)
}

// spritePixel returns the 2-bit color of sprite 0 at (row r, column q) after
// flips. In 8x16 mode OAM byte 1 selects the pattern bank with bit 0 and the
// top tile with the remaining bits.
func (p *PPU) spritePixel(tileIndex, r, q, height int, flipV, flipH bool) uint8 {
	if flipV {
		r = height - 1 - r
	}
	if flipH {
		q = 7 - q
	}

	var index int
	if height == 16 {
		index = (tileIndex&0x01)*256 + (tileIndex &^ 0x01)
		if r >= 8 {
			index++
			r -= 8
		}
	} else {
		index = tileIndex
		if p.ctrl&ctrlSpriteTable != 0 {
			index += 256
		}
	}
	return p.tiles.At(index)[r][q]
}

// backgroundOpaque reports whether the background pixel under screen
// coordinates (x, y) is opaque, following scroll and nametable wrapping.
func (p *PPU) backgroundOpaque(x, y int) bool {
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
		return false
	}

	addr := uint16(0x2000 | table<<10 | tileY<<5 | tileX)
	index := int(p.NametableByte(addr))
	if p.ctrl&ctrlBackgroundTable != 0 {
		index += 256
	}
	return p.tiles.At(index)[worldY&7][worldX&7] != 0
}
