// Package app is the ebitengine front-end: window, frame blit, and keyboard
// to controller mapping.
package app

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/hajimehoshi/ebiten/v2"

	"famigo/internal/console"
	"famigo/internal/input"
	"famigo/internal/ppu"
	"famigo/internal/render"
)

// keyBinding maps one keyboard key to one pad button.
type keyBinding struct {
	key    ebiten.Key
	player int
	button input.Button
}

var keyBindings = []keyBinding{
	{ebiten.KeyX, 1, input.ButtonA},
	{ebiten.KeyZ, 1, input.ButtonB},
	{ebiten.KeyShiftRight, 1, input.ButtonSelect},
	{ebiten.KeyEnter, 1, input.ButtonStart},
	{ebiten.KeyArrowUp, 1, input.ButtonUp},
	{ebiten.KeyArrowDown, 1, input.ButtonDown},
	{ebiten.KeyArrowLeft, 1, input.ButtonLeft},
	{ebiten.KeyArrowRight, 1, input.ButtonRight},

	{ebiten.KeyPeriod, 2, input.ButtonA},
	{ebiten.KeyComma, 2, input.ButtonB},
	{ebiten.KeyG, 2, input.ButtonSelect},
	{ebiten.KeyH, 2, input.ButtonStart},
	{ebiten.KeyI, 2, input.ButtonUp},
	{ebiten.KeyK, 2, input.ButtonDown},
	{ebiten.KeyJ, 2, input.ButtonLeft},
	{ebiten.KeyL, 2, input.ButtonRight},
}

// App runs one emulated frame per ebiten update and blits the rendered frame.
type App struct {
	console  *console.Console
	renderer *render.Renderer

	title     string
	maxFrames int
	frames    int
	lastFPS   string
}

// New wires the front-end over a console.
func New(c *console.Console, title string, maxFrames int) *App {
	a := &App{
		console:   c,
		renderer:  render.New(),
		title:     title,
		maxFrames: maxFrames,
	}
	// Flush scanlines rendered under the outgoing register state when a
	// game reprograms the PPU mid-frame.
	c.OnRenderBoundary(func(row int) {
		a.renderer.FlushTo(c.PPU, row)
	})
	return a
}

// Run opens the window and drives the game loop until the window closes, the
// frame limit is reached, or emulation fails.
func (a *App) Run(scale int) error {
	if scale < 1 {
		scale = 2
	}
	ebiten.SetWindowSize(ppu.VisibleCols*scale, ppu.VisibleRows*scale)
	ebiten.SetWindowTitle(a.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(a); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

// Update emulates until the next vblank start and finishes the frame.
func (a *App) Update() error {
	timer := a.console.Timer
	timer.StartFrame()

	a.pollInput()
	timer.Checkin("input")

	if err := a.console.RunUntilVBlankStart(); err != nil {
		return err
	}
	timer.Checkin("emu")

	a.renderer.FinishFrame(a.console.PPU)
	timer.Checkin("render")
	timer.EndFrame()

	if fps := timer.FPSString(); fps != "" && fps != a.lastFPS {
		a.lastFPS = fps
		glog.V(1).Info(fps)
		ebiten.SetWindowTitle(fmt.Sprintf("%s (%s)", a.title, fps))
	}

	a.frames++
	if a.maxFrames > 0 && a.frames >= a.maxFrames {
		return ebiten.Termination
	}
	return nil
}

// pollInput pushes the current keyboard state to the controller bank.
func (a *App) pollInput() {
	for _, b := range keyBindings {
		a.console.SetButton(b.player, b.button, ebiten.IsKeyPressed(b.key))
	}
}

// Draw blits the last finished frame.
func (a *App) Draw(screen *ebiten.Image) {
	screen.WritePixels(a.renderer.Frame().Pix)
}

// Layout renders at native NES resolution; ebiten scales to the window.
func (a *App) Layout(int, int) (int, int) {
	return ppu.VisibleCols, ppu.VisibleRows
}
