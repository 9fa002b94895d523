package ppu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupHitScene builds the canonical collision: sprite 0 uses solid tile 1 at
// (x, y_raw), and the background shows solid tile 2 everywhere.
func setupHitScene(t *testing.T, yRaw, x uint8) *PPU {
	t.Helper()
	p := newTestPPU(t, false, map[int][8][8]uint8{
		1: solidTile(),
		2: solidTile(),
	})

	// Fill nametable A with tile 2.
	for i := 0; i < 960; i++ {
		p.vram[i] = 2
	}

	p.oam[0] = yRaw
	p.oam[1] = 1
	p.oam[2] = 0
	p.oam[3] = x

	// Enable both layers including the left columns.
	writeReg(t, p, 0x2001, maskShowBackground|maskShowSprites|maskShowBackgroundLeft|maskShowSpritesLeft)
	return p
}

func TestPredictionBasicHit(t *testing.T) {
	p := setupHitScene(t, 119, 120)
	hit := p.PredictedHit()
	require.True(t, hit.Valid)
	assert.Equal(t, 120, hit.Row) // effective Y is y_raw + 1
	assert.Equal(t, 120, hit.Col)
}

func TestPredictionRequiresBothLayers(t *testing.T) {
	p := setupHitScene(t, 119, 120)

	writeReg(t, p, 0x2001, maskShowBackground)
	assert.False(t, p.PredictedHit().Valid)

	writeReg(t, p, 0x2001, maskShowSprites)
	assert.False(t, p.PredictedHit().Valid)
}

func TestPredictionHardwareEdgeCases(t *testing.T) {
	// x=255 never hits.
	p := setupHitScene(t, 119, 255)
	assert.False(t, p.PredictedHit().Valid)

	// A sprite fully below the visible frame never hits.
	p = setupHitScene(t, 240, 120)
	assert.False(t, p.PredictedHit().Valid)
}

func TestPredictionTransparentSprite(t *testing.T) {
	p := setupHitScene(t, 119, 120)
	p.oam[1] = 3 // tile 3 is all zeroes in CHR
	p.recomputeHitPrediction()
	assert.False(t, p.PredictedHit().Valid)
}

func TestPredictionTransparentBackground(t *testing.T) {
	p := setupHitScene(t, 119, 120)
	for i := 0; i < 960; i++ {
		p.vram[i] = 0 // empty tile
	}
	p.recomputeHitPrediction()
	assert.False(t, p.PredictedHit().Valid)
}

func TestPredictionLeftEdgeClipping(t *testing.T) {
	// Sprite at x=0: with left-column clipping the first eight screen
	// columns cannot hit, so the hit shifts to x=8... which is outside
	// the 8-pixel sprite, so there is no hit at all.
	p := setupHitScene(t, 119, 0)
	writeReg(t, p, 0x2001, maskShowBackground|maskShowSprites)
	assert.False(t, p.PredictedHit().Valid)

	// Showing both left columns restores the hit at x=0.
	writeReg(t, p, 0x2001, maskShowBackground|maskShowSprites|maskShowBackgroundLeft|maskShowSpritesLeft)
	hit := p.PredictedHit()
	require.True(t, hit.Valid)
	assert.Equal(t, 0, hit.Col)

	// A sprite straddling the clip boundary hits at its first visible column.
	p = setupHitScene(t, 119, 4)
	writeReg(t, p, 0x2001, maskShowBackground|maskShowSprites)
	hit = p.PredictedHit()
	require.True(t, hit.Valid)
	assert.Equal(t, 8, hit.Col)
}

func TestPredictionPartialSpritePattern(t *testing.T) {
	// Only the bottom-right pixel of the sprite tile is opaque.
	var corner [8][8]uint8
	corner[7][7] = 1
	p := newTestPPU(t, false, map[int][8][8]uint8{
		1: corner,
		2: solidTile(),
	})
	for i := 0; i < 960; i++ {
		p.vram[i] = 2
	}
	p.oam[0] = 99
	p.oam[1] = 1
	p.oam[3] = 50
	writeReg(t, p, 0x2001, maskShowBackground|maskShowSprites|maskShowBackgroundLeft|maskShowSpritesLeft)

	hit := p.PredictedHit()
	require.True(t, hit.Valid)
	assert.Equal(t, 107, hit.Row)
	assert.Equal(t, 57, hit.Col)

	// Horizontal flip moves the opaque pixel to the left edge.
	p.oam[2] = 0x40
	p.recomputeHitPrediction()
	hit = p.PredictedHit()
	require.True(t, hit.Valid)
	assert.Equal(t, 107, hit.Row)
	assert.Equal(t, 50, hit.Col)

	// Vertical flip moves it to the top row.
	p.oam[2] = 0x80
	p.recomputeHitPrediction()
	hit = p.PredictedHit()
	require.True(t, hit.Valid)
	assert.Equal(t, 100, hit.Row)
	assert.Equal(t, 57, hit.Col)
}

func TestPredictionFollowsScroll(t *testing.T) {
	// Background is opaque only in the rightmost tile column of
	// nametable A; with scroll the sprite lands on it.
	p := newTestPPU(t, false, map[int][8][8]uint8{
		1: solidTile(),
		2: solidTile(),
	})
	for tileY := 0; tileY < 30; tileY++ {
		p.vram[tileY*32+31] = 2 // world x in [248,256)
	}
	p.oam[0] = 99
	p.oam[1] = 1
	p.oam[3] = 100

	writeReg(t, p, 0x2001, maskShowBackground|maskShowSprites|maskShowBackgroundLeft|maskShowSpritesLeft)
	assert.False(t, p.PredictedHit().Valid)

	// Scroll x=148: screen 100 maps to world 248.
	p.ReadRegister(0x2002)
	writeReg(t, p, 0x2005, 148)
	writeReg(t, p, 0x2005, 0)
	hit := p.PredictedHit()
	require.True(t, hit.Valid)
	assert.Equal(t, 100, hit.Col)
	assert.Equal(t, 100, hit.Row)
}

func TestPredictionStable(t *testing.T) {
	p := setupHitScene(t, 119, 120)
	first := p.predictSpriteZeroHit()
	second := p.predictSpriteZeroHit()
	assert.Equal(t, first, second)
}

func TestPredictionRecomputedAtPreRender(t *testing.T) {
	p := setupHitScene(t, 119, 120)
	p.hit = HitPrediction{} // stale

	p.Tick(261 * DotsPerRow) // through pre-render
	assert.True(t, p.PredictedHit().Valid)
}

func TestHitFlagSetOnPredictedRow(t *testing.T) {
	p := setupHitScene(t, 119, 120)
	require.True(t, p.PredictedHit().Valid)

	// Rows before the hit row leave the flag clear.
	p.Tick(120 * DotsPerRow)
	assert.Zero(t, p.STATUS()&statusSpriteZeroHit)

	// Finishing row 120 sets it.
	p.Tick(DotsPerRow)
	assert.NotZero(t, p.STATUS()&statusSpriteZeroHit)

	// Row 260 clears it again.
	p.Tick(141 * DotsPerRow)
	assert.Zero(t, p.STATUS()&statusSpriteZeroHit)
}

func TestFastForwardStopsAtPredictedHit(t *testing.T) {
	p := setupHitScene(t, 119, 120)
	p.TickToNextStatusChange()
	assert.NotZero(t, p.STATUS()&statusSpriteZeroHit)
	assert.Equal(t, 121, p.Row())
}

func TestPredictionTallSprites(t *testing.T) {
	// 8x16 sprite: OAM tile 2 selects pattern bank 0, tiles 2 and 3.
	// Tile 2 is transparent, tile 3 solid, so the hit is 8 rows down.
	var blank [8][8]uint8
	p := newTestPPU(t, false, map[int][8][8]uint8{
		2: blank,
		3: solidTile(),
		4: solidTile(),
	})
	for i := 0; i < 960; i++ {
		p.vram[i] = 4
	}
	p.oam[0] = 99
	p.oam[1] = 2
	p.oam[3] = 60
	writeReg(t, p, 0x2000, ctrlSpriteTall)
	writeReg(t, p, 0x2001, maskShowBackground|maskShowSprites|maskShowBackgroundLeft|maskShowSpritesLeft)

	hit := p.PredictedHit()
	require.True(t, hit.Valid)
	assert.Equal(t, 108, hit.Row)
	assert.Equal(t, 60, hit.Col)
}
