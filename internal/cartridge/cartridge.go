// Package cartridge implements iNES ROM loading and the NROM (mapper 0) address views.
package cartridge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"
)

// Load-time error taxonomy. All are fatal; nothing is retried.
var (
	ErrInvalidHeader     = errors.New("cartridge: invalid iNES header")
	ErrTruncatedROM      = errors.New("cartridge: truncated ROM image")
	ErrUnsupportedMapper = errors.New("cartridge: unsupported mapper")

	// ErrUnsupportedMapperFeature flags accesses NROM cannot honor, such as
	// PRG-ROM or CHR-ROM writes. Surfaced on the first offending access.
	ErrUnsupportedMapperFeature = errors.New("cartridge: unsupported mapper feature")
)

// MirrorMode represents the nametable mirroring wiring.
type MirrorMode uint8

const (
	MirrorHorizontal MirrorMode = iota
	MirrorVertical
)

func (m MirrorMode) String() string {
	if m == MirrorVertical {
		return "vertical"
	}
	return "horizontal"
}

// iNES header layout. Bytes 8-9 carry iNES 2.0 extensions when flag 7 marks them.
type inesHeader struct {
	Magic      [4]uint8
	PRGChunks  uint8 // 16 KiB units
	CHRChunks  uint8 // 8 KiB units
	Flags6     uint8
	Flags7     uint8
	Ines2Byte8 uint8
	Ines2Byte9 uint8
	Padding    [6]uint8
}

const (
	headerSize  = 16
	trainerSize = 512
	prgChunk    = 16384
	chrChunk    = 8192
)

// Cartridge holds a parsed ROM image. It is immutable after load.
type Cartridge struct {
	prg []uint8
	chr []uint8

	mapperID  int
	submapper int
	mirror    MirrorMode

	hasTrainer    bool
	batteryBacked bool
}

// LoadFile reads and parses an iNES file from disk.
func LoadFile(path string) (*Cartridge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cartridge: %w", err)
	}
	return Load(data)
}

// Load parses an iNES image from a byte blob.
//
// Layout: 16-byte header, optional 512-byte trainer, PRG payload, CHR payload.
// The remaining length must match the header exactly.
func Load(data []byte) (*Cartridge, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedROM, len(data))
	}

	var header inesHeader
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	if string(header.Magic[:]) != "NES\x1A" {
		return nil, fmt.Errorf("%w: magic %q", ErrInvalidHeader, header.Magic[:])
	}

	cart := &Cartridge{
		mapperID:      int(header.Flags7&0xF0) | int(header.Flags6>>4),
		hasTrainer:    header.Flags6&0x04 != 0,
		batteryBacked: header.Flags6&0x02 != 0,
	}

	if header.Flags6&0x01 != 0 {
		cart.mirror = MirrorVertical
	} else {
		cart.mirror = MirrorHorizontal
	}

	prgChunks := int(header.PRGChunks)
	chrChunks := int(header.CHRChunks)

	// iNES 2.0: high mapper bits, submapper, and size high-nibbles in bytes 8-9.
	if (header.Flags7>>2)&0x03 == 0x02 {
		cart.mapperID |= int(header.Ines2Byte8&0x0F) << 8
		cart.submapper = int(header.Ines2Byte8 >> 4)
		prgChunks |= int(header.Ines2Byte9&0x0F) << 8
		chrChunks |= int(header.Ines2Byte9>>4) << 8
	}

	body := data[headerSize:]
	if cart.hasTrainer {
		if len(body) < trainerSize {
			return nil, fmt.Errorf("%w: trainer cut short", ErrTruncatedROM)
		}
		body = body[trainerSize:]
	}

	prgLen := prgChunks * prgChunk
	chrLen := chrChunks * chrChunk
	if len(body) != prgLen+chrLen {
		return nil, fmt.Errorf("%w: expected %d data bytes, have %d",
			ErrTruncatedROM, prgLen+chrLen, len(body))
	}
	if prgLen == 0 {
		return nil, fmt.Errorf("%w: zero PRG chunks", ErrInvalidHeader)
	}

	if cart.mapperID != 0 {
		return nil, fmt.Errorf("%w: mapper %d", ErrUnsupportedMapper, cart.mapperID)
	}

	cart.prg = append([]uint8(nil), body[:prgLen]...)
	cart.chr = append([]uint8(nil), body[prgLen:]...)

	glog.V(1).Infof("Loaded ROM: mapper %d, PRG %d KiB, CHR %d KiB, %s mirroring",
		cart.mapperID, prgLen/1024, chrLen/1024, cart.mirror)

	return cart, nil
}

// ReadPRG returns the PRG byte visible at CPU address addr ($8000-$FFFF).
// A 16 KiB image is mirrored into both banks.
func (c *Cartridge) ReadPRG(addr uint16) uint8 {
	return c.prg[int(addr-0x8000)%len(c.prg)]
}

// ReadCHR returns the CHR byte at PPU address addr ($0000-$1FFF).
// A cartridge without CHR reads as zero.
func (c *Cartridge) ReadCHR(addr uint16) uint8 {
	if len(c.chr) == 0 {
		return 0
	}
	return c.chr[int(addr)%len(c.chr)]
}

// CHR returns the raw CHR payload for tile pre-decoding. Callers must not mutate it.
func (c *Cartridge) CHR() []uint8 { return c.chr }

// PRGSize returns the PRG payload length in bytes.
func (c *Cartridge) PRGSize() int { return len(c.prg) }

// CHRSize returns the CHR payload length in bytes.
func (c *Cartridge) CHRSize() int { return len(c.chr) }

// MapperID returns the iNES mapper number.
func (c *Cartridge) MapperID() int { return c.mapperID }

// Submapper returns the iNES 2.0 submapper number, 0 for iNES 1.0 images.
func (c *Cartridge) Submapper() int { return c.submapper }

// Mirroring returns the nametable mirroring mode.
func (c *Cartridge) Mirroring() MirrorMode { return c.mirror }

// HasTrainer reports whether the image carried a 512-byte trainer.
func (c *Cartridge) HasTrainer() bool { return c.hasTrainer }

// BatteryBacked reports the battery flag from the header.
func (c *Cartridge) BatteryBacked() bool { return c.batteryBacked }
