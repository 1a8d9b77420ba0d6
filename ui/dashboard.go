// Package ui is a thin bubbletea/lipgloss dashboard over
// repository.StatsSnapshot (spec §1: the terminal renderer itself is
// specified only at the snapshot-consumer interface, out of scope for
// layout/paging detail). Grounded on the teacher's ui.Model/NewModel
// tick-and-render loop (ui/app.go), stripped down from its 17 page/layout
// files to one view proving the snapshot contract is renderable.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/netwatch/netwatch/model"
	"github.com/netwatch/netwatch/repository"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	critStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type tickMsg time.Time

type snapMsg model.StatsSnapshot

// Model is the bubbletea model for the dashboard.
type Model struct {
	repo     *repository.Repository
	interval time.Duration
	snap     model.StatsSnapshot
	target   string
}

// NewModel creates a dashboard model reading repo on interval.
func NewModel(repo *repository.Repository, target string, interval time.Duration) Model {
	return Model{repo: repo, target: target, interval: interval}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), collect(m.repo))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func collect(repo *repository.Repository) tea.Cmd {
	return func() tea.Msg { return snapMsg(repo.Snapshot()) }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(tick(m.interval), collect(m.repo))
	case snapMsg:
		m.snap = model.StatsSnapshot(msg)
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n\n", headerStyle.Render("netwatch"), dimStyle.Render(m.target))

	status := okStyle.Render("CONNECTED")
	if m.snap.ConnectionLost {
		status = critStyle.Render("CONNECTION LOST")
	}
	fmt.Fprintf(&b, "status:   %s\n", status)
	fmt.Fprintf(&b, "latency:  avg %.1fms  min %.1fms  max %.1fms  jitter %.1fms\n",
		m.snap.Latency.Avg, m.snap.Latency.Min, m.snap.Latency.Max, m.snap.Latency.Jitter)
	fmt.Fprintf(&b, "loss:     %d/%d sent (30m ratio %.2f%%)\n",
		m.snap.Counters.Lost, m.snap.Counters.Sent, m.snap.LossRatio30m*100)

	if m.snap.MTU.PathMTUEstimate > 0 {
		fmt.Fprintf(&b, "path mtu: %d bytes\n", m.snap.MTU.PathMTUEstimate)
	}
	if m.snap.PublicIP.Address != "" {
		fmt.Fprintf(&b, "public ip: %s (%s)\n", m.snap.PublicIP.Address, m.snap.PublicIP.Geo.Country)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "diagnosis: %s\n", diagnosisLine(m.snap.Diagnosis))

	if len(m.snap.Hops) > 0 {
		b.WriteString("\nroute:\n")
		for _, hop := range m.snap.Hops {
			lossRatio := 0.0
			if hop.Total > 0 {
				lossRatio = float64(hop.Lost) / float64(hop.Total)
			}
			fmt.Fprintf(&b, "  %2d  %-15s  %6.1fms  loss %.0f%%\n", hop.Index, hopAddr(hop), hop.Latency.Avg, lossRatio*100)
		}
	}

	if n := len(m.snap.ActiveAlerts); n > 0 {
		fmt.Fprintf(&b, "\n%s (%d)\n", warnStyle.Render("active alerts"), n)
		for _, a := range m.snap.ActiveAlerts {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", a.Priority, a.Kind, a.Message)
		}
	}

	b.WriteString(dimStyle.Render("\nq to quit\n"))
	return b.String()
}

func hopAddr(h model.HopSnapshot) string {
	if h.IP == "" {
		return "*"
	}
	return h.IP
}

func diagnosisLine(d model.ProblemDiagnosis) string {
	if d.Kind == model.ProblemNone {
		return okStyle.Render("none")
	}
	return warnStyle.Render(fmt.Sprintf("%s — %s", d.Kind, d.CauseSummary))
}
