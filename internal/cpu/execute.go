package cpu

// execute performs the operation for opcode. addr is the resolved effective
// address (operand address for immediate, branch target for relative).
// Returns extra cycles beyond the base count: branch penalties only; the
// indexed-read page-cross penalty is applied by Step.
func (c *CPU) execute(opcode uint8, opPC, addr uint16, pageCrossed bool) (uint8, error) {
	switch opcode {

	// Load / store
	case 0xA9, 0xA5, 0xB5, 0xAD, 0xBD, 0xB9, 0xA1, 0xB1: // LDA
		c.A = c.bus.Read(addr)
		c.setZN(c.A)
	case 0xA2, 0xA6, 0xB6, 0xAE, 0xBE: // LDX
		c.X = c.bus.Read(addr)
		c.setZN(c.X)
	case 0xA0, 0xA4, 0xB4, 0xAC, 0xBC: // LDY
		c.Y = c.bus.Read(addr)
		c.setZN(c.Y)
	case 0x85, 0x95, 0x8D, 0x9D, 0x99, 0x81, 0x91: // STA
		return 0, c.write(addr, c.A)
	case 0x86, 0x96, 0x8E: // STX
		return 0, c.write(addr, c.X)
	case 0x84, 0x94, 0x8C: // STY
		return 0, c.write(addr, c.Y)

	// Arithmetic
	case 0x69, 0x65, 0x75, 0x6D, 0x7D, 0x79, 0x61, 0x71: // ADC
		c.adc(c.bus.Read(addr))
	case 0xE9, 0xE5, 0xF5, 0xED, 0xFD, 0xF9, 0xE1, 0xF1: // SBC
		// Subtraction is addition of the complement; carry-in is the
		// inverted borrow.
		c.adc(^c.bus.Read(addr))

	// Logic
	case 0x29, 0x25, 0x35, 0x2D, 0x3D, 0x39, 0x21, 0x31: // AND
		c.A &= c.bus.Read(addr)
		c.setZN(c.A)
	case 0x09, 0x05, 0x15, 0x0D, 0x1D, 0x19, 0x01, 0x11: // ORA
		c.A |= c.bus.Read(addr)
		c.setZN(c.A)
	case 0x49, 0x45, 0x55, 0x4D, 0x5D, 0x59, 0x41, 0x51: // EOR
		c.A ^= c.bus.Read(addr)
		c.setZN(c.A)

	// Shifts and rotates
	case 0x0A: // ASL A
		c.C = c.A&0x80 != 0
		c.A <<= 1
		c.setZN(c.A)
	case 0x06, 0x16, 0x0E, 0x1E: // ASL
		return 0, c.modify(addr, func(v uint8) uint8 {
			c.C = v&0x80 != 0
			return v << 1
		})
	case 0x4A: // LSR A
		c.C = c.A&0x01 != 0
		c.A >>= 1
		c.setZN(c.A)
	case 0x46, 0x56, 0x4E, 0x5E: // LSR
		return 0, c.modify(addr, func(v uint8) uint8 {
			c.C = v&0x01 != 0
			return v >> 1
		})
	case 0x2A: // ROL A
		c.A = c.rol(c.A)
		c.setZN(c.A)
	case 0x26, 0x36, 0x2E, 0x3E: // ROL
		return 0, c.modify(addr, c.rol)
	case 0x6A: // ROR A
		c.A = c.ror(c.A)
		c.setZN(c.A)
	case 0x66, 0x76, 0x6E, 0x7E: // ROR
		return 0, c.modify(addr, c.ror)

	// Compare
	case 0xC9, 0xC5, 0xD5, 0xCD, 0xDD, 0xD9, 0xC1, 0xD1: // CMP
		c.compare(c.A, c.bus.Read(addr))
	case 0xE0, 0xE4, 0xEC: // CPX
		c.compare(c.X, c.bus.Read(addr))
	case 0xC0, 0xC4, 0xCC: // CPY
		c.compare(c.Y, c.bus.Read(addr))

	// Increment / decrement
	case 0xE6, 0xF6, 0xEE, 0xFE: // INC
		return 0, c.modify(addr, func(v uint8) uint8 { return v + 1 })
	case 0xC6, 0xD6, 0xCE, 0xDE: // DEC
		return 0, c.modify(addr, func(v uint8) uint8 { return v - 1 })
	case 0xE8: // INX
		c.X++
		c.setZN(c.X)
	case 0xC8: // INY
		c.Y++
		c.setZN(c.Y)
	case 0xCA: // DEX
		c.X--
		c.setZN(c.X)
	case 0x88: // DEY
		c.Y--
		c.setZN(c.Y)

	// Transfers
	case 0xAA: // TAX
		c.X = c.A
		c.setZN(c.X)
	case 0xA8: // TAY
		c.Y = c.A
		c.setZN(c.Y)
	case 0x8A: // TXA
		c.A = c.X
		c.setZN(c.A)
	case 0x98: // TYA
		c.A = c.Y
		c.setZN(c.A)
	case 0xBA: // TSX
		c.X = c.SP
		c.setZN(c.X)
	case 0x9A: // TXS
		c.SP = c.X

	// Stack
	case 0x48: // PHA
		c.push(c.A)
	case 0x68: // PLA
		c.A = c.pull()
		c.setZN(c.A)
	case 0x08: // PHP
		c.push(c.status(true))
	case 0x28: // PLP
		c.setStatus(c.pull())

	// Flags
	case 0x18: // CLC
		c.C = false
	case 0x38: // SEC
		c.C = true
	case 0x58: // CLI
		c.I = false
	case 0x78: // SEI
		c.I = true
	case 0xB8: // CLV
		c.V = false
	case 0xD8: // CLD
		c.D = false
	case 0xF8: // SED
		c.D = true

	// Control flow
	case 0x4C, 0x6C: // JMP
		c.PC = addr
		if c.PC == opPC {
			// A jump to itself is the canonical wait-for-NMI spin.
			c.onBranchTaken()
		}
	case 0x20: // JSR pushes the address of its own last operand byte.
		c.push16(c.PC - 1)
		c.PC = addr
	case 0x60: // RTS
		c.PC = c.pull16() + 1
	case 0x40: // RTI
		c.setStatus(c.pull())
		c.PC = c.pull16()
	case 0x00: // BRK pushes PC+2 relative to the opcode, B set on the stack.
		c.push16(c.PC + 1)
		c.push(c.status(true))
		c.I = true
		c.PC = c.irqAddr

	// Branches
	case 0x90: // BCC
		return c.branch(!c.C, addr, pageCrossed), nil
	case 0xB0: // BCS
		return c.branch(c.C, addr, pageCrossed), nil
	case 0xD0: // BNE
		return c.branch(!c.Z, addr, pageCrossed), nil
	case 0xF0: // BEQ
		return c.branch(c.Z, addr, pageCrossed), nil
	case 0x10: // BPL
		return c.branch(!c.N, addr, pageCrossed), nil
	case 0x30: // BMI
		return c.branch(c.N, addr, pageCrossed), nil
	case 0x50: // BVC
		return c.branch(!c.V, addr, pageCrossed), nil
	case 0x70: // BVS
		return c.branch(c.V, addr, pageCrossed), nil

	case 0x24, 0x2C: // BIT
		v := c.bus.Read(addr)
		c.N = v&nFlagMask != 0
		c.V = v&vFlagMask != 0
		c.Z = c.A&v == 0

	case 0xEA: // NOP
	}

	return 0, nil
}

// adc adds value and carry into A with the 6502 overflow rule: V is set when
// the operands share a sign that the result does not.
func (c *CPU) adc(value uint8) {
	carry := uint16(0)
	if c.C {
		carry = 1
	}
	sum := uint16(c.A) + uint16(value) + carry
	result := uint8(sum)
	c.V = (c.A^result)&(value^result)&0x80 != 0
	c.C = sum > 0xFF
	c.A = result
	c.setZN(c.A)
}

func (c *CPU) compare(reg, value uint8) {
	c.C = reg >= value
	c.setZN(reg - value)
}

func (c *CPU) rol(v uint8) uint8 {
	carryIn := c.C
	c.C = v&0x80 != 0
	v <<= 1
	if carryIn {
		v |= 0x01
	}
	return v
}

func (c *CPU) ror(v uint8) uint8 {
	carryIn := c.C
	c.C = v&0x01 != 0
	v >>= 1
	if carryIn {
		v |= 0x80
	}
	return v
}

// modify implements read-modify-write memory instructions.
func (c *CPU) modify(addr uint16, f func(uint8) uint8) error {
	v := f(c.bus.Read(addr))
	c.setZN(v)
	return c.write(addr, v)
}

// branch takes target when cond holds: +1 cycle taken, +2 across a page.
func (c *CPU) branch(cond bool, target uint16, pageCrossed bool) uint8 {
	if !cond {
		c.onBranchNotTaken()
		return 0
	}
	c.PC = target
	c.onBranchTaken()
	if pageCrossed {
		return 2
	}
	return 1
}
