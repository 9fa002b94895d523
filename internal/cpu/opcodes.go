package cpu

// instruction carries the static decode data for one opcode. Base cycle
// counts come verbatim from the 6502 timing table; page-crossing and branch
// penalties are added at execution time.
type instruction struct {
	name   string
	mode   AddressingMode
	cycles uint8
}

// opcodes maps every official opcode. A zero cycle count marks an undefined
// opcode (either JAM or an unofficial instruction the core rejects).
var opcodes [256]instruction

// jamOpcodes are the opcodes that halt a real 6502 until reset.
var jamOpcodes = map[uint8]bool{
	0x02: true, 0x12: true, 0x22: true, 0x32: true,
	0x42: true, 0x52: true, 0x62: true, 0x72: true,
	0x92: true, 0xB2: true, 0xD2: true, 0xF2: true,
}

// pageCrossPenalty marks the read instructions that cost one extra cycle when
// indexing crosses a page boundary. Stores always pay the fixed cost already
// in their base count.
var pageCrossPenalty = map[uint8]bool{
	0xBD: true, 0xB9: true, 0xB1: true, // LDA
	0xBE: true, // LDX
	0xBC: true, // LDY
	0x7D: true, 0x79: true, 0x71: true, // ADC
	0xFD: true, 0xF9: true, 0xF1: true, // SBC
	0x3D: true, 0x39: true, 0x31: true, // AND
	0x1D: true, 0x19: true, 0x11: true, // ORA
	0x5D: true, 0x59: true, 0x51: true, // EOR
	0xDD: true, 0xD9: true, 0xD1: true, // CMP
}

func init() {
	def := func(op uint8, name string, mode AddressingMode, cycles uint8) {
		opcodes[op] = instruction{name: name, mode: mode, cycles: cycles}
	}

	// Load
	def(0xA9, "LDA", Immediate, 2)
	def(0xA5, "LDA", ZeroPage, 3)
	def(0xB5, "LDA", ZeroPageX, 4)
	def(0xAD, "LDA", Absolute, 4)
	def(0xBD, "LDA", AbsoluteX, 4)
	def(0xB9, "LDA", AbsoluteY, 4)
	def(0xA1, "LDA", IndexedIndirect, 6)
	def(0xB1, "LDA", IndirectIndexed, 5)

	def(0xA2, "LDX", Immediate, 2)
	def(0xA6, "LDX", ZeroPage, 3)
	def(0xB6, "LDX", ZeroPageY, 4)
	def(0xAE, "LDX", Absolute, 4)
	def(0xBE, "LDX", AbsoluteY, 4)

	def(0xA0, "LDY", Immediate, 2)
	def(0xA4, "LDY", ZeroPage, 3)
	def(0xB4, "LDY", ZeroPageX, 4)
	def(0xAC, "LDY", Absolute, 4)
	def(0xBC, "LDY", AbsoluteX, 4)

	// Store
	def(0x85, "STA", ZeroPage, 3)
	def(0x95, "STA", ZeroPageX, 4)
	def(0x8D, "STA", Absolute, 4)
	def(0x9D, "STA", AbsoluteX, 5)
	def(0x99, "STA", AbsoluteY, 5)
	def(0x81, "STA", IndexedIndirect, 6)
	def(0x91, "STA", IndirectIndexed, 6)

	def(0x86, "STX", ZeroPage, 3)
	def(0x96, "STX", ZeroPageY, 4)
	def(0x8E, "STX", Absolute, 4)

	def(0x84, "STY", ZeroPage, 3)
	def(0x94, "STY", ZeroPageX, 4)
	def(0x8C, "STY", Absolute, 4)

	// Arithmetic
	def(0x69, "ADC", Immediate, 2)
	def(0x65, "ADC", ZeroPage, 3)
	def(0x75, "ADC", ZeroPageX, 4)
	def(0x6D, "ADC", Absolute, 4)
	def(0x7D, "ADC", AbsoluteX, 4)
	def(0x79, "ADC", AbsoluteY, 4)
	def(0x61, "ADC", IndexedIndirect, 6)
	def(0x71, "ADC", IndirectIndexed, 5)

	def(0xE9, "SBC", Immediate, 2)
	def(0xE5, "SBC", ZeroPage, 3)
	def(0xF5, "SBC", ZeroPageX, 4)
	def(0xED, "SBC", Absolute, 4)
	def(0xFD, "SBC", AbsoluteX, 4)
	def(0xF9, "SBC", AbsoluteY, 4)
	def(0xE1, "SBC", IndexedIndirect, 6)
	def(0xF1, "SBC", IndirectIndexed, 5)

	// Logic
	def(0x29, "AND", Immediate, 2)
	def(0x25, "AND", ZeroPage, 3)
	def(0x35, "AND", ZeroPageX, 4)
	def(0x2D, "AND", Absolute, 4)
	def(0x3D, "AND", AbsoluteX, 4)
	def(0x39, "AND", AbsoluteY, 4)
	def(0x21, "AND", IndexedIndirect, 6)
	def(0x31, "AND", IndirectIndexed, 5)

	def(0x09, "ORA", Immediate, 2)
	def(0x05, "ORA", ZeroPage, 3)
	def(0x15, "ORA", ZeroPageX, 4)
	def(0x0D, "ORA", Absolute, 4)
	def(0x1D, "ORA", AbsoluteX, 4)
	def(0x19, "ORA", AbsoluteY, 4)
	def(0x01, "ORA", IndexedIndirect, 6)
	def(0x11, "ORA", IndirectIndexed, 5)

	def(0x49, "EOR", Immediate, 2)
	def(0x45, "EOR", ZeroPage, 3)
	def(0x55, "EOR", ZeroPageX, 4)
	def(0x4D, "EOR", Absolute, 4)
	def(0x5D, "EOR", AbsoluteX, 4)
	def(0x59, "EOR", AbsoluteY, 4)
	def(0x41, "EOR", IndexedIndirect, 6)
	def(0x51, "EOR", IndirectIndexed, 5)

	// Shifts and rotates
	def(0x0A, "ASL", Accumulator, 2)
	def(0x06, "ASL", ZeroPage, 5)
	def(0x16, "ASL", ZeroPageX, 6)
	def(0x0E, "ASL", Absolute, 6)
	def(0x1E, "ASL", AbsoluteX, 7)

	def(0x4A, "LSR", Accumulator, 2)
	def(0x46, "LSR", ZeroPage, 5)
	def(0x56, "LSR", ZeroPageX, 6)
	def(0x4E, "LSR", Absolute, 6)
	def(0x5E, "LSR", AbsoluteX, 7)

	def(0x2A, "ROL", Accumulator, 2)
	def(0x26, "ROL", ZeroPage, 5)
	def(0x36, "ROL", ZeroPageX, 6)
	def(0x2E, "ROL", Absolute, 6)
	def(0x3E, "ROL", AbsoluteX, 7)

	def(0x6A, "ROR", Accumulator, 2)
	def(0x66, "ROR", ZeroPage, 5)
	def(0x76, "ROR", ZeroPageX, 6)
	def(0x6E, "ROR", Absolute, 6)
	def(0x7E, "ROR", AbsoluteX, 7)

	// Compare
	def(0xC9, "CMP", Immediate, 2)
	def(0xC5, "CMP", ZeroPage, 3)
	def(0xD5, "CMP", ZeroPageX, 4)
	def(0xCD, "CMP", Absolute, 4)
	def(0xDD, "CMP", AbsoluteX, 4)
	def(0xD9, "CMP", AbsoluteY, 4)
	def(0xC1, "CMP", IndexedIndirect, 6)
	def(0xD1, "CMP", IndirectIndexed, 5)

	def(0xE0, "CPX", Immediate, 2)
	def(0xE4, "CPX", ZeroPage, 3)
	def(0xEC, "CPX", Absolute, 4)

	def(0xC0, "CPY", Immediate, 2)
	def(0xC4, "CPY", ZeroPage, 3)
	def(0xCC, "CPY", Absolute, 4)

	// Increment / decrement
	def(0xE6, "INC", ZeroPage, 5)
	def(0xF6, "INC", ZeroPageX, 6)
	def(0xEE, "INC", Absolute, 6)
	def(0xFE, "INC", AbsoluteX, 7)

	def(0xC6, "DEC", ZeroPage, 5)
	def(0xD6, "DEC", ZeroPageX, 6)
	def(0xCE, "DEC", Absolute, 6)
	def(0xDE, "DEC", AbsoluteX, 7)

	def(0xE8, "INX", Implied, 2)
	def(0xC8, "INY", Implied, 2)
	def(0xCA, "DEX", Implied, 2)
	def(0x88, "DEY", Implied, 2)

	// Branches
	def(0x90, "BCC", Relative, 2)
	def(0xB0, "BCS", Relative, 2)
	def(0xF0, "BEQ", Relative, 2)
	def(0xD0, "BNE", Relative, 2)
	def(0x30, "BMI", Relative, 2)
	def(0x10, "BPL", Relative, 2)
	def(0x50, "BVC", Relative, 2)
	def(0x70, "BVS", Relative, 2)

	// Jumps and subroutines
	def(0x4C, "JMP", Absolute, 3)
	def(0x6C, "JMP", Indirect, 5)
	def(0x20, "JSR", Absolute, 6)
	def(0x60, "RTS", Implied, 6)
	def(0x40, "RTI", Implied, 6)

	// Stack
	def(0x48, "PHA", Implied, 3)
	def(0x08, "PHP", Implied, 3)
	def(0x68, "PLA", Implied, 4)
	def(0x28, "PLP", Implied, 4)

	// Flags
	def(0x18, "CLC", Implied, 2)
	def(0x38, "SEC", Implied, 2)
	def(0x58, "CLI", Implied, 2)
	def(0x78, "SEI", Implied, 2)
	def(0xB8, "CLV", Implied, 2)
	def(0xD8, "CLD", Implied, 2)
	def(0xF8, "SED", Implied, 2)

	// Transfers
	def(0xAA, "TAX", Implied, 2)
	def(0xA8, "TAY", Implied, 2)
	def(0x8A, "TXA", Implied, 2)
	def(0x98, "TYA", Implied, 2)
	def(0xBA, "TSX", Implied, 2)
	def(0x9A, "TXS", Implied, 2)

	// Miscellaneous
	def(0x24, "BIT", ZeroPage, 3)
	def(0x2C, "BIT", Absolute, 4)
	def(0xEA, "NOP", Implied, 2)
	def(0x00, "BRK", Implied, 7)
}

// OpcodeWidth returns the instruction length in bytes, 1 for undefined
// opcodes. Used by the debugger's disassembly pane.
func OpcodeWidth(op uint8) int {
	switch opcodes[op].mode {
	case Absolute, AbsoluteX, AbsoluteY, Indirect:
		return 3
	case Implied, Accumulator:
		// Undefined opcodes also land here via the zero-valued mode.
		return 1
	default:
		return 2
	}
}

// OpcodeName returns the mnemonic for an opcode, or "???" if undefined.
// Used by the debugger's disassembly pane.
func OpcodeName(op uint8) string {
	if opcodes[op].cycles == 0 {
		if jamOpcodes[op] {
			return "JAM"
		}
		return "???"
	}
	return opcodes[op].name
}
