package cpu

// AddressingMode selects how an instruction's operand is resolved.
type AddressingMode int

const (
	Implied AddressingMode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Relative
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect
	IndexedIndirect // (zp,X)
	IndirectIndexed // (zp),Y
)

// operandAddress resolves the effective address for mode, advancing PC past
// the operand bytes. The second return reports a page-boundary crossing,
// which costs an extra cycle on indexed reads and taken branches.
func (c *CPU) operandAddress(mode AddressingMode) (uint16, bool) {
	switch mode {
	case Implied, Accumulator:
		return 0, false

	case Immediate:
		addr := c.PC
		c.PC++
		return addr, false

	case ZeroPage:
		addr := uint16(c.bus.Read(c.PC))
		c.PC++
		return addr, false

	case ZeroPageX:
		base := c.bus.Read(c.PC)
		c.PC++
		return uint16(base+c.X) & zeroPageMask, false

	case ZeroPageY:
		base := c.bus.Read(c.PC)
		c.PC++
		return uint16(base+c.Y) & zeroPageMask, false

	case Relative:
		offset := int8(c.bus.Read(c.PC))
		c.PC++
		target := uint16(int32(c.PC) + int32(offset))
		return target, c.PC&pageMask != target&pageMask

	case Absolute:
		addr := c.read16(c.PC)
		c.PC += 2
		return addr, false

	case AbsoluteX:
		base := c.read16(c.PC)
		c.PC += 2
		addr := base + uint16(c.X)
		return addr, base&pageMask != addr&pageMask

	case AbsoluteY:
		base := c.read16(c.PC)
		c.PC += 2
		addr := base + uint16(c.Y)
		return addr, base&pageMask != addr&pageMask

	case Indirect:
		// JMP only. The hardware never carries into the pointer's high
		// byte: ($xxFF) reads its high byte from $xx00.
		ptr := c.read16(c.PC)
		c.PC += 2
		low := uint16(c.bus.Read(ptr))
		var high uint16
		if ptr&zeroPageMask == zeroPageMask {
			high = uint16(c.bus.Read(ptr & pageMask))
		} else {
			high = uint16(c.bus.Read(ptr + 1))
		}
		return high<<8 | low, false

	case IndexedIndirect:
		zp := (c.bus.Read(c.PC) + c.X) & zeroPageMask
		c.PC++
		low := uint16(c.bus.Read(uint16(zp)))
		high := uint16(c.bus.Read(uint16((zp + 1) & zeroPageMask)))
		return high<<8 | low, false

	case IndirectIndexed:
		zp := c.bus.Read(c.PC)
		c.PC++
		low := uint16(c.bus.Read(uint16(zp)))
		high := uint16(c.bus.Read(uint16((zp + 1) & zeroPageMask)))
		base := high<<8 | low
		addr := base + uint16(c.Y)
		return addr, base&pageMask != addr&pageMask

	default:
		return 0, false
	}
}
