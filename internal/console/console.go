// Package console wires the CPU, PPU, APU, controllers, and bus into a
// runnable machine and drives the run loop at the frame boundary.
package console

import (
	"fmt"

	"github.com/golang/glog"

	"famigo/internal/apu"
	"famigo/internal/bus"
	"famigo/internal/cartridge"
	"famigo/internal/cpu"
	"famigo/internal/input"
	"famigo/internal/ppu"
)

// Options tune console construction.
type Options struct {
	// DisableIdleSleep turns off the CPU's idle-loop fast-forward, forcing
	// straight-line emulation of PPUSTATUS polling loops.
	DisableIdleSleep bool
}

// Console owns all components. The Bus holds a capability over them for the
// duration of a CPU step; everything runs on the caller's goroutine.
type Console struct {
	Cart        *cartridge.Cartridge
	CPU         *cpu.CPU
	PPU         *ppu.PPU
	APU         *apu.APU
	Controllers *input.Controllers
	Bus         *bus.Bus

	Timer *FrameTimer

	stopped bool
}

// New builds and wires a console around the loaded cartridge.
func New(cart *cartridge.Cartridge, opts Options) *Console {
	c := &Console{
		Cart:        cart,
		PPU:         ppu.New(cart),
		APU:         apu.New(),
		Controllers: input.New(),
		Timer:       NewFrameTimer(),
	}
	c.Bus = bus.New(cart, c.PPU, c.APU, c.Controllers)
	c.CPU = cpu.New(c.Bus)

	// The PPU signals the CPU only through this edge; the CPU samples it
	// at the top of its next step.
	c.PPU.SetNMICallback(c.CPU.SignalNMI)

	if !opts.DisableIdleSleep {
		c.CPU.SetStatusTicker(c.PPU)
	}

	c.Bus.SetOAMDMAHandler(c.oamDMA)

	return c
}

// oamDMA copies the page and charges the transfer: 513 CPU cycles, 514 when
// triggered on an odd cycle. The PPU keeps ticking through the stall.
func (c *Console) oamDMA(page uint8) {
	c.Bus.CopyOAM(page)
	cycles := 513
	if c.CPU.Cycles()%2 == 1 {
		cycles = 514
	}
	c.CPU.AddCycles(uint64(cycles))
	c.PPU.TickFromCPU(cycles)
}

// Step executes one CPU instruction and advances the PPU three dots per
// consumed cycle. Failures carry PC and the PPU clock position.
func (c *Console) Step() error {
	cycles, err := c.CPU.Step()
	if err != nil {
		return fmt.Errorf("frame %d (%d,%d): %w",
			c.PPU.FrameCount(), c.PPU.Row(), c.PPU.Col(), err)
	}
	c.PPU.TickFromCPU(cycles)
	return nil
}

// RunUntilVBlankStart steps past any vblank in progress, then steps until
// the next vblank begins. On return the renderer may read PPU state.
func (c *Console) RunUntilVBlankStart() error {
	for c.PPU.VBlank() {
		if err := c.Step(); err != nil {
			return err
		}
	}
	for !c.PPU.VBlank() {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Run loops frames until Stop, maxFrames (when positive), or an error.
// onFrame, when set, runs at each vblank start.
func (c *Console) Run(maxFrames int, onFrame func() error) error {
	c.stopped = false
	frames := 0
	for !c.stopped {
		if err := c.RunUntilVBlankStart(); err != nil {
			return err
		}
		if onFrame != nil {
			if err := onFrame(); err != nil {
				return err
			}
		}
		frames++
		if maxFrames > 0 && frames >= maxFrames {
			glog.V(1).Infof("Stopping after %d frames", frames)
			return nil
		}
	}
	return nil
}

// Stop requests loop exit; checked once per frame by Run.
func (c *Console) Stop() {
	c.stopped = true
}

// OnVBlankStart registers the per-frame notification.
func (c *Console) OnVBlankStart(f func()) {
	c.PPU.SetVBlankStartCallback(f)
}

// OnVBlankEnd registers the end-of-vblank notification.
func (c *Console) OnVBlankEnd(f func()) {
	c.PPU.SetVBlankEndCallback(f)
}

// OnRenderBoundary registers the mid-frame flush notification.
func (c *Console) OnRenderBoundary(f func(row int)) {
	c.PPU.SetRenderBoundaryCallback(f)
}

// SetButton forwards a host input event to the controller bank.
func (c *Console) SetButton(player int, button input.Button, pressed bool) {
	c.Controllers.SetButton(player, button, pressed)
}
