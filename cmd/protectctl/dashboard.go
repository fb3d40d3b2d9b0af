package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/protect-bridge/bridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(22)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	denyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0E68C"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type dashboardModel struct {
	err      error
	cancel   context.CancelFunc
	progress progress.Model
	opts     stressOptions
	report   stressReport
	done     bool
}

type reportMsg stressReport

type finishedMsg struct {
	err    error
	report stressReport
}

func newDashboardModel(opts stressOptions, cancel context.CancelFunc) *dashboardModel {
	return &dashboardModel{
		cancel:   cancel,
		opts:     opts,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m *dashboardModel) Init() tea.Cmd {
	return nil
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancel()
			if m.done {
				return m, tea.Quit
			}
		}

	case reportMsg:
		if !m.done {
			m.report = stressReport(msg)
		}

	case finishedMsg:
		m.report = msg.report
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *dashboardModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Protect Bridge Stress"))
	fmt.Fprintf(&b, " %d workers × %d calls, policy %s\n\n", m.opts.workers, m.opts.calls, m.opts.policy)

	percent := 0.0
	if m.report.total > 0 {
		percent = float64(m.report.completed()) / float64(m.report.total)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n\n")

	for _, o := range bridge.Outcomes {
		n := m.report.outcomes[o]
		style := errorStyle
		switch o {
		case bridge.OutcomeProtected:
			style = okStyle
		case bridge.OutcomeDenied, bridge.OutcomeNoTarget:
			style = denyStyle
		}
		b.WriteString(labelStyle.Render(o.String()))
		b.WriteString(style.Render(fmt.Sprintf("%d", n)))
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render("swaps"))
	fmt.Fprintf(&b, "%d\n", m.report.swaps)
	b.WriteString(labelStyle.Render("elapsed"))
	fmt.Fprintf(&b, "%s\n\n", m.report.elapsed.Round(time.Millisecond))

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	case m.done:
		b.WriteString(okStyle.Render("done"))
		b.WriteString("\n")
	default:
		b.WriteString(helpStyle.Render("q stop"))
		b.WriteString("\n")
	}
	return b.String()
}

// runDashboard runs the stress test under a live view.
func (a *app) runDashboard(ctx context.Context, opts stressOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newDashboardModel(opts, cancel))

	go func() {
		stopTicks := make(chan struct{})
		report, err := a.runStress(ctx, opts, func(c *stressCounters) {
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-stopTicks:
						return
					case <-ticker.C:
						p.Send(reportMsg(c.snapshot()))
					}
				}
			}()
		})
		close(stopTicks)
		if ctx.Err() != nil && err != nil {
			err = fmt.Errorf("stopped: %w", err)
		}
		p.Send(finishedMsg{report: report, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(*dashboardModel); ok {
		return m.err
	}
	return nil
}
