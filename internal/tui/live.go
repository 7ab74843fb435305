package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/tmolteno/openEMS/internal/sim"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// ProgressMsg carries one status report into the view.
type ProgressMsg sim.Progress

// DoneMsg ends the view once the run finishes.
type DoneMsg struct {
	Result *sim.Result
}

// LiveView renders a running simulation. Quitting the view cancels the
// run's context; the engine stops at the next burst boundary.
type LiveView struct {
	prog *tea.Program
}

func NewLiveView(cancel context.CancelFunc) *LiveView {
	m := model{cancel: cancel, width: 80, height: 24}
	return &LiveView{prog: tea.NewProgram(m)}
}

// Run blocks until the view exits.
func (v *LiveView) Run() error {
	_, err := v.prog.Run()
	return err
}

func (v *LiveView) Send(p sim.Progress) { v.prog.Send(ProgressMsg(p)) }
func (v *LiveView) Done(r *sim.Result)  { v.prog.Send(DoneMsg{Result: r}) }

type model struct {
	cancel context.CancelFunc

	last    sim.Progress
	decay   []float64
	started time.Time
	done    bool
	result  *sim.Result

	width  int
	height int
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case ProgressMsg:
		m.last = sim.Progress(msg)
		m.decay = append(m.decay, -m.last.DecayDB)
		if len(m.decay) > 120 {
			m.decay = m.decay[1:]
		}
	case DoneMsg:
		m.done = true
		m.result = msg.Result
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(cyan.Render("openEMS") + dim.Render("  fdtd time-stepping") + "\n\n")

	if m.last.TotalTimesteps > 0 {
		frac := float64(m.last.Timestep) / float64(m.last.TotalTimesteps)
		b.WriteString("  " + progressBar(frac, 50) + fmt.Sprintf(" %5.1f%%\n\n", 100*frac))
	}

	b.WriteString(fmt.Sprintf("  %s %s\n", dim.Render("elapsed:"), white.Render(sim.FormatTime(m.last.Elapsed))))
	b.WriteString(fmt.Sprintf("  %s %s / %d\n", dim.Render("timestep:"),
		white.Render(fmt.Sprintf("%d", m.last.Timestep)), m.last.TotalTimesteps))
	b.WriteString(fmt.Sprintf("  %s %s\n", dim.Render("speed:"),
		white.Render(fmt.Sprintf("%.1f MC/s", m.last.SpeedMCells))))
	b.WriteString(fmt.Sprintf("  %s %s\n", dim.Render("energy:"),
		white.Render(fmt.Sprintf("%.3e (-%.2f dB)", m.last.Energy, m.last.DecayDB))))

	if len(m.decay) > 1 {
		b.WriteString("\n" + dim.Render("  energy decay (dB)") + "\n")
		graph := asciigraph.Plot(m.decay,
			asciigraph.Height(8),
			asciigraph.Width(min(m.width-12, 70)),
		)
		for _, line := range strings.Split(graph, "\n") {
			b.WriteString("  " + line + "\n")
		}
	}

	b.WriteString("\n")
	if m.done {
		status := green.Render(m.result.Reason.String())
		if m.result.Reason == sim.ReasonAborted {
			status = yellow.Render(m.result.Reason.String())
		}
		b.WriteString("  " + status + dim.Render("  press enter to exit") + "\n")
	} else {
		b.WriteString(dim.Render("  q: abort run") + "\n")
	}
	return b.String()
}

func progressBar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	return green.Render(strings.Repeat("█", filled)) + dim.Render(strings.Repeat("░", width-filled))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
