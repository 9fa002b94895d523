package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famigo/internal/apu"
	"famigo/internal/cartridge"
	"famigo/internal/input"
	"famigo/internal/ppu"
)

// newTestBus builds a bus over a minimal NROM cartridge.
func newTestBus(t *testing.T) *Bus {
	t.Helper()
	header := make([]byte, 16)
	copy(header, "NES\x1A")
	header[4] = 1
	header[5] = 1
	prg := make([]byte, 16384)
	for i := range prg {
		prg[i] = uint8(i) ^ uint8(i>>8)
	}
	rom := append(header, prg...)
	rom = append(rom, make([]byte, 8192)...)

	cart, err := cartridge.Load(rom)
	require.NoError(t, err)
	return New(cart, ppu.New(cart), apu.New(), input.New())
}

func write(t *testing.T, b *Bus, addr uint16, value uint8) {
	t.Helper()
	require.NoError(t, b.Write(addr, value))
}

func TestRAMMirroring(t *testing.T) {
	b := newTestBus(t)
	mirrors := []uint16{0x0000, 0x0800, 0x1000, 0x1800}

	for _, writeAddr := range mirrors {
		write(t, b, writeAddr, 0x5A)
		for _, readAddr := range mirrors {
			assert.Equal(t, uint8(0x5A), b.Read(readAddr),
				"write $%04X read $%04X", writeAddr, readAddr)
		}
		write(t, b, writeAddr, 0x00)
	}
}

func TestPPURegisterMirroring(t *testing.T) {
	b := newTestBus(t)

	// Every eighth address up to $3FFF decodes to the same register file:
	// set OAMADDR and write OAMDATA through a mirror, rewind OAMADDR at the
	// base $2003, read OAMDATA back through the mirror.
	for _, k := range []uint16{0, 1, 7, 512, 1023} {
		base := 0x2000 + 8*k
		write(t, b, base+3, 0x20) // OAMADDR
		write(t, b, base+4, 0x77) // OAMDATA, increments OAMADDR
		write(t, b, 0x2003, 0x20)
		assert.Equal(t, uint8(0x77), b.Read(base+4), "mirror +%d", k)
	}
}

func TestStatusReadThenAddressWrite(t *testing.T) {
	b := newTestBus(t)

	// $2002 read resets the address toggle so $2006 starts a fresh pair.
	b.Read(0x2002)
	write(t, b, 0x2006, 0x3F)
	write(t, b, 0x2006, 0x01)
	write(t, b, 0x2007, 0x2C)

	b.Read(0x2002)
	write(t, b, 0x2006, 0x3F)
	write(t, b, 0x2006, 0x01)
	assert.Equal(t, uint8(0x2C), b.Read(0x2007)) // palette reads are unbuffered
}

func TestAPUAndUnmappedReads(t *testing.T) {
	b := newTestBus(t)
	assert.Zero(t, b.Read(0x4015))
	assert.Zero(t, b.Read(0x4000)) // write-only APU port
	assert.Zero(t, b.Read(0x4018)) // test registers
	assert.Zero(t, b.Read(0x5123)) // expansion area
	assert.Zero(t, b.Read(0x6FFF)) // would-be PRG RAM, not present on NROM
}

func TestUnmappedWritesAccepted(t *testing.T) {
	b := newTestBus(t)
	write(t, b, 0x4000, 0x3F) // APU channel register
	write(t, b, 0x4018, 0x01)
	write(t, b, 0x5000, 0x02)
	write(t, b, 0x7FFF, 0x03)
}

func TestPRGWriteRejected(t *testing.T) {
	b := newTestBus(t)
	err := b.Write(0x8000, 0x00)
	assert.ErrorIs(t, err, cartridge.ErrUnsupportedMapperFeature)
	err = b.Write(0xFFFF, 0x00)
	assert.ErrorIs(t, err, cartridge.ErrUnsupportedMapperFeature)
}

func TestPRGReads(t *testing.T) {
	b := newTestBus(t)
	assert.Equal(t, uint8(0x00), b.Read(0x8000))
	assert.Equal(t, uint8(0x01), b.Read(0x8001))
	// 16 KiB image mirrored into the upper bank.
	assert.Equal(t, b.Read(0x8123), b.Read(0xC123))
}

func TestRead16LittleEndian(t *testing.T) {
	b := newTestBus(t)
	write(t, b, 0x0010, 0x34)
	write(t, b, 0x0011, 0x12)
	assert.Equal(t, uint16(0x1234), b.Read16(0x0010))
}

func TestControllerPortRoundTrip(t *testing.T) {
	b := newTestBus(t)
	b.controllers.SetButton(1, input.ButtonA, true)
	write(t, b, 0x4016, 0x01)
	write(t, b, 0x4016, 0x00)

	got := make([]uint8, 0, 8)
	for i := 0; i < 8; i++ {
		got = append(got, b.Read(0x4016)&0x01)
	}
	assert.Equal(t, []uint8{1, 0, 0, 0, 0, 0, 0, 0}, got)
	assert.Equal(t, uint8(1), b.Read(0x4016)&0x01) // ninth read returns 1
}

func TestOAMDMAFallbackCopy(t *testing.T) {
	b := newTestBus(t)
	for i := 0; i < 256; i++ {
		write(t, b, uint16(0x0200+i), uint8(i))
	}

	write(t, b, 0x4014, 0x02)

	oam := b.ppu.OAM()
	for i := 0; i < 256; i++ {
		require.Equal(t, uint8(i), oam[i], "OAM[%d]", i)
	}
}

func TestOAMDMAHandlerPreferred(t *testing.T) {
	b := newTestBus(t)
	var page uint8 = 0xFF
	b.SetOAMDMAHandler(func(p uint8) { page = p })
	write(t, b, 0x4014, 0x03)
	assert.Equal(t, uint8(0x03), page)
	// Handler owns the copy; the fallback did not run.
	assert.Zero(t, b.ppu.OAM()[0])
}
