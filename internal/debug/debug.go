// Package debug provides the interactive terminal debugger: single-step,
// frame-step, and state inspection over a running console.
package debug

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"famigo/internal/console"
	"famigo/internal/cpu"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	paneStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const maxLog = 8

// Run drives the debugger UI over the console until quit. Emulation advances
// only in response to commands, on this goroutine.
func Run(c *console.Console) error {
	_, err := tea.NewProgram(newModel(c)).Run()
	return err
}

type model struct {
	console *console.Console
	log     []string
	dump    string
	err     error

	// breakOnReturn stops run commands at the next BRK or RTI fetch.
	breakOnReturn bool
}

func newModel(c *console.Console) model {
	return model{console: c}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.err != nil && key.String() != "q" && key.String() != "ctrl+c" {
		return m, nil
	}

	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s":
		m.step(1)
	case "n":
		m.step(100)
	case "v":
		m.runToVBlank()
	case "f":
		m.runFrames(1)
	case "F":
		m.runFrames(60)
	case "b":
		m.breakOnReturn = !m.breakOnReturn
		m.addLog(fmt.Sprintf("break on BRK/RTI: %t", m.breakOnReturn))
	case "o":
		m.dump = strings.TrimSpace(spew.Sdump(m.console.PPU.PredictedHit()))
		m.addLog("dumped sprite-0 prediction")
	case "d":
		m.dump = m.dumpZeroPage()
		m.addLog("dumped zero page")
	}
	return m, nil
}

func (m *model) step(n int) {
	for i := 0; i < n; i++ {
		pc := m.console.CPU.PC
		op := m.console.Bus.Read(pc)
		if err := m.console.Step(); err != nil {
			m.err = err
			return
		}
		if n == 1 {
			m.addLog(fmt.Sprintf("$%04X  %s", pc, cpu.OpcodeName(op)))
		}
	}
	if n > 1 {
		m.addLog(fmt.Sprintf("stepped %d instructions", n))
	}
}

// atBreakpoint reports whether the next fetch is a BRK or RTI in PRG.
func (m *model) atBreakpoint() bool {
	pc := m.console.CPU.PC
	if pc < 0x8000 {
		return false
	}
	op := m.console.Cart.ReadPRG(pc)
	return op == 0x00 || op == 0x40
}

// runUntil steps until done reports true, a breakpoint fetches, or a fault.
func (m *model) runUntil(done func() bool) bool {
	for {
		if m.breakOnReturn && m.atBreakpoint() {
			m.addLog(fmt.Sprintf("breakpoint: %s at $%04X",
				cpu.OpcodeName(m.console.Cart.ReadPRG(m.console.CPU.PC)), m.console.CPU.PC))
			return false
		}
		if err := m.console.Step(); err != nil {
			m.err = err
			return false
		}
		if done() {
			return true
		}
	}
}

func (m *model) runToVBlank() {
	p := m.console.PPU
	for p.VBlank() {
		if err := m.console.Step(); err != nil {
			m.err = err
			return
		}
	}
	if m.runUntil(p.VBlank) {
		m.addLog("ran to vblank start")
	}
}

func (m *model) runFrames(n int) {
	p := m.console.PPU
	target := p.FrameCount() + uint64(n)
	if m.runUntil(func() bool { return p.FrameCount() >= target }) {
		m.addLog(fmt.Sprintf("ran %d frame(s)", n))
	}
}

func (m *model) addLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLog {
		m.log = m.log[len(m.log)-maxLog:]
	}
}

func (m *model) dumpZeroPage() string {
	ram := m.console.Bus.RAM()
	var b strings.Builder
	for row := 0; row < 16; row++ {
		fmt.Fprintf(&b, "$%02X:", row*16)
		for col := 0; col < 16; col++ {
			fmt.Fprintf(&b, " %02X", ram[row*16+col])
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) View() string {
	c := m.console

	flags := func(set bool, name string) string {
		if set {
			return name
		}
		return "-"
	}
	cpuPane := paneStyle.Render(fmt.Sprintf(
		"%s\nPC=$%04X  A=$%02X X=$%02X Y=$%02X SP=$%02X\n%s%s%s%s%s%s",
		titleStyle.Render("CPU"),
		c.CPU.PC, c.CPU.A, c.CPU.X, c.CPU.Y, c.CPU.SP,
		flags(c.CPU.N, "N"), flags(c.CPU.V, "V"), flags(c.CPU.D, "D"),
		flags(c.CPU.I, "I"), flags(c.CPU.Z, "Z"), flags(c.CPU.C, "C"),
	))

	hit := "none"
	if pred := c.PPU.PredictedHit(); pred.Valid {
		hit = fmt.Sprintf("(%d,%d)", pred.Row, pred.Col)
	}
	ppuPane := paneStyle.Render(fmt.Sprintf(
		"%s\nframe=%d row=%d col=%d\nCTRL=$%02X MASK=$%02X STATUS=$%02X\nscroll=(%d,%d) sprite0=%s",
		titleStyle.Render("PPU"),
		c.PPU.FrameCount(), c.PPU.Row(), c.PPU.Col(),
		c.PPU.CTRL(), c.PPU.MASK(), c.PPU.STATUS(),
		c.PPU.ScrollX(), c.PPU.ScrollY(), hit,
	))

	sections := []string{
		lipgloss.JoinHorizontal(lipgloss.Top, cpuPane, ppuPane),
	}
	sections = append(sections, m.disassemblyPane())
	if len(m.log) > 0 {
		sections = append(sections, paneStyle.Render(strings.Join(m.log, "\n")))
	}
	if m.dump != "" {
		sections = append(sections, paneStyle.Render(m.dump))
	}
	if m.err != nil {
		sections = append(sections, errStyle.Render("fault: "+m.err.Error()))
	}
	sections = append(sections, helpStyle.Render(
		"s step  n step100  f frame  F 60 frames  v to-vblank  b brk/rti stop  d zero page  o sprite0  q quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// disassemblyPane lists upcoming opcodes. Only PRG addresses are shown;
// disassembling through registers would perturb the machine.
func (m model) disassemblyPane() string {
	pc := m.console.CPU.PC
	if pc < 0x8000 {
		return paneStyle.Render(titleStyle.Render("next") + "\n(PC outside PRG)")
	}
	var lines []string
	lines = append(lines, titleStyle.Render("next"))
	addr := pc
	for i := 0; i < 6; i++ {
		op := m.console.Cart.ReadPRG(addr)
		lines = append(lines, fmt.Sprintf("$%04X  %02X %s", addr, op, cpu.OpcodeName(op)))
		addr += uint16(cpu.OpcodeWidth(op))
	}
	return paneStyle.Render(strings.Join(lines, "\n"))
}
