// Package cpu implements the 6502 core used in the NES.
package cpu

import (
	"fmt"

	"github.com/golang/glog"
)

const (
	stackBase = 0x0100

	nFlagMask  = 0x80
	vFlagMask  = 0x40
	unusedMask = 0x20
	bFlagMask  = 0x10
	dFlagMask  = 0x08
	iFlagMask  = 0x04
	zFlagMask  = 0x02
	cFlagMask  = 0x01

	zeroPageMask = 0xFF
	pageMask     = 0xFF00

	nmiVector   = 0xFFFA
	resetVector = 0xFFFC
	irqVector   = 0xFFFE
)

// Bus is the CPU's view of the system bus. Reads of unmapped regions return
// zero and never fail; writes can fail on regions the mapper cannot accept.
type Bus interface {
	Read(addr uint16) uint8
	Write(addr uint16, value uint8) error
}

// StatusTicker lets the idle-loop accelerator fast-forward the PPU clock to
// its next observable PPUSTATUS change.
type StatusTicker interface {
	TickToNextStatusChange()
}

// JamError reports execution of a JAM opcode, which halts a real 6502.
type JamError struct {
	PC     uint16
	Opcode uint8
}

func (e *JamError) Error() string {
	return fmt.Sprintf("cpu: JAM opcode %#02x at %#04x", e.Opcode, e.PC)
}

// UnimplementedError reports an opcode outside the official instruction set.
type UnimplementedError struct {
	PC     uint16
	Opcode uint8
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("cpu: unimplemented opcode %#02x at %#04x", e.Opcode, e.PC)
}

// CPU holds the register file and drives instruction execution.
type CPU struct {
	A  uint8
	X  uint8
	Y  uint8
	SP uint8
	PC uint16

	// Status flags. B and the unused bit are not state; they only exist on
	// values pushed to the stack.
	N bool
	V bool
	D bool
	I bool
	Z bool
	C bool

	bus Bus

	// Vectors cached at reset.
	nmiAddr uint16
	irqAddr uint16

	nmiPending bool

	cycles uint64

	// Idle-loop acceleration (see branchLoopCache).
	ticker   StatusTicker
	sleep    bool
	loopSeen bool
	loop     branchLoopCache
}

// branchLoopCache is a snapshot of the register file at a taken branch. If a
// later taken branch reproduces it exactly with no intervening bus write, the
// CPU is spinning on PPUSTATUS and the PPU can be fast-forwarded.
type branchLoopCache struct {
	pc               uint16
	sp, a, x, y      uint8
	n, v, d, i, z, c bool
}

// New creates a CPU attached to bus and runs the reset sequence.
func New(bus Bus) *CPU {
	c := &CPU{bus: bus}
	c.Reset()
	return c
}

// Reset loads the reset vector and forces the power-up register state.
func (c *CPU) Reset() {
	c.A, c.X, c.Y = 0, 0, 0
	c.SP = 0xFD
	c.N, c.V, c.D, c.Z, c.C = false, false, false, false, false
	c.I = true

	c.nmiAddr = c.read16(nmiVector)
	c.irqAddr = c.read16(irqVector)
	c.PC = c.read16(resetVector)

	c.nmiPending = false
	c.loopSeen = false
	c.cycles = 0

	glog.V(1).Infof("CPU reset: PC=%#04x NMI=%#04x IRQ=%#04x", c.PC, c.nmiAddr, c.irqAddr)
}

// SetStatusTicker wires the PPU fast-forward hook and enables idle-loop
// acceleration. Behavior stays observationally identical to straight-line
// execution; only the PPU clock is advanced in one jump.
func (c *CPU) SetStatusTicker(t StatusTicker) {
	c.ticker = t
	c.sleep = t != nil
}

// SignalNMI latches one NMI edge. The CPU samples it at the top of the next
// Step, so each assertion is serviced exactly once.
func (c *CPU) SignalNMI() {
	c.nmiPending = true
}

// Cycles returns the total CPU cycles consumed since reset.
func (c *CPU) Cycles() uint64 { return c.cycles }

// AddCycles accounts externally consumed cycles (OAM DMA suspension).
func (c *CPU) AddCycles(n uint64) { c.cycles += n }

// Step executes one instruction and returns the cycles it consumed.
//
// Order: sample the NMI edge, fetch, decode, resolve the addressing mode,
// execute, account cycles.
func (c *CPU) Step() (int, error) {
	if c.nmiPending {
		c.nmiPending = false
		c.serviceNMI()
		c.cycles += 7
		return 7, nil
	}

	opPC := c.PC
	opcode := c.bus.Read(c.PC)
	c.PC++

	instr := &opcodes[opcode]
	if instr.cycles == 0 {
		if jamOpcodes[opcode] {
			return 0, &JamError{PC: opPC, Opcode: opcode}
		}
		return 0, &UnimplementedError{PC: opPC, Opcode: opcode}
	}

	addr, pageCrossed := c.operandAddress(instr.mode)

	extra, err := c.execute(opcode, opPC, addr, pageCrossed)
	if err != nil {
		return 0, fmt.Errorf("at %#04x (opcode %#02x): %w", opPC, opcode, err)
	}

	if pageCrossed && pageCrossPenalty[opcode] {
		extra++
	}

	total := int(instr.cycles) + int(extra)
	c.cycles += uint64(total)
	return total, nil
}

// serviceNMI pushes PC and status (B clear) and jumps through $FFFA.
func (c *CPU) serviceNMI() {
	c.push16(c.PC)
	c.push(c.status(false))
	c.I = true
	c.PC = c.nmiAddr
	glog.V(2).Infof("NMI -> %#04x", c.PC)
}

// Status register serialization. The pushed byte carries bit 5 always set and
// bit 4 per the push source: set for PHP/BRK, clear for NMI/IRQ.

func (c *CPU) status(brk bool) uint8 {
	var sr uint8 = unusedMask
	if c.N {
		sr |= nFlagMask
	}
	if c.V {
		sr |= vFlagMask
	}
	if brk {
		sr |= bFlagMask
	}
	if c.D {
		sr |= dFlagMask
	}
	if c.I {
		sr |= iFlagMask
	}
	if c.Z {
		sr |= zFlagMask
	}
	if c.C {
		sr |= cFlagMask
	}
	return sr
}

// setStatus restores flags from a pulled byte. Bits 4 and 5 are ignored.
func (c *CPU) setStatus(sr uint8) {
	c.N = sr&nFlagMask != 0
	c.V = sr&vFlagMask != 0
	c.D = sr&dFlagMask != 0
	c.I = sr&iFlagMask != 0
	c.Z = sr&zFlagMask != 0
	c.C = sr&cFlagMask != 0
}

// Stack helpers. The 6502 stack lives in page $01 and grows downward.

func (c *CPU) push(value uint8) {
	// Stack writes target internal RAM and cannot fail. Like any store they
	// invalidate the branch-loop cache.
	c.loopSeen = false
	_ = c.bus.Write(stackBase+uint16(c.SP), value)
	c.SP--
}

func (c *CPU) pull() uint8 {
	c.SP++
	return c.bus.Read(stackBase + uint16(c.SP))
}

func (c *CPU) push16(value uint16) {
	c.push(uint8(value >> 8))
	c.push(uint8(value & 0xFF))
}

func (c *CPU) pull16() uint16 {
	low := uint16(c.pull())
	high := uint16(c.pull())
	return high<<8 | low
}

func (c *CPU) read16(addr uint16) uint16 {
	low := uint16(c.bus.Read(addr))
	high := uint16(c.bus.Read(addr + 1))
	return high<<8 | low
}

// write routes a store through the bus and invalidates the branch-loop cache:
// a loop that writes memory is not an idle wait.
func (c *CPU) write(addr uint16, value uint8) error {
	c.loopSeen = false
	return c.bus.Write(addr, value)
}

func (c *CPU) setZN(value uint8) {
	c.Z = value == 0
	c.N = value&nFlagMask != 0
}

// onBranchTaken feeds the idle-loop accelerator. A taken branch that leaves
// the register file bit-identical to the previous taken branch, with no bus
// write in between, is a PPUSTATUS polling loop.
func (c *CPU) onBranchTaken() {
	if !c.sleep {
		return
	}
	snapshot := branchLoopCache{
		pc: c.PC, sp: c.SP, a: c.A, x: c.X, y: c.Y,
		n: c.N, v: c.V, d: c.D, i: c.I, z: c.Z, c: c.C,
	}
	if c.loopSeen && snapshot == c.loop {
		c.ticker.TickToNextStatusChange()
	}
	c.loop = snapshot
	c.loopSeen = true
}

// onBranchNotTaken drops the cache; the loop made progress another way.
func (c *CPU) onBranchNotTaken() {
	c.loopSeen = false
}
