// Package tui provides the interactive terminal watch view for a
// draft-PR job.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ticketops/tickctl/internal/api"
	"github.com/ticketops/tickctl/internal/draftpr"
	"github.com/ticketops/tickctl/internal/notify"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	selectedPlanStyle = lipgloss.NewStyle().
				Foreground(cyanColor).
				Bold(true)
)

type tickMsg time.Time

type hubNotificationMsg notify.Notification

type actionDoneMsg struct{ err error }

// App is the watch-view TUI model for a single draft-PR job.
type App struct {
	controller *draftpr.Controller
	hub        *notify.Hub
	events     <-chan notify.Notification
	jobID      string

	input    textinput.Model
	width    int
	height   int
	mode     string // "view", "revise"
	acting   bool
	finished bool
}

// New creates a watch view over an already constructed controller. The
// hub must be the notifier the controller reports through.
func New(controller *draftpr.Controller, hub *notify.Hub, jobID string) *App {
	ti := textinput.New()
	ti.Placeholder = "Describe what should change in the plan"
	ti.CharLimit = 512
	ti.Width = 80

	return &App{
		controller: controller,
		hub:        hub,
		events:     hub.Subscribe(),
		jobID:      jobID,
		input:      ti,
		mode:       "view",
	}
}

// Run starts the watch view and blocks until the user quits.
func (a *App) Run(ctx context.Context) error {
	a.controller.Start(ctx)
	defer a.controller.Stop()

	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.tickCmd(),
		a.waitForNotification(),
	)
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) waitForNotification() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-a.events
		if !ok {
			return nil
		}
		return hubNotificationMsg(n)
	}
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.mode == "revise" {
			switch msg.String() {
			case "esc":
				a.mode = "view"
				a.input.SetValue("")
				return a, nil
			case "enter":
				feedback := strings.TrimSpace(a.input.Value())
				a.mode = "view"
				a.input.SetValue("")
				if feedback != "" {
					return a, a.reviseCmd(feedback)
				}
				return a, nil
			}
			var cmd tea.Cmd
			a.input, cmd = a.input.Update(msg)
			return a, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit

		case "a":
			if !a.acting {
				if latest := a.controller.LatestPlan(); latest != nil {
					a.acting = true
					return a, a.approveCmd(latest.Hash)
				}
			}

		case "r":
			if !a.acting && a.controller.Stage() == api.StageWaitingForApproval {
				a.mode = "revise"
				a.input.Focus()
				return a, textinput.Blink
			}

		case "c":
			if !a.acting {
				a.acting = true
				return a, a.cancelCmd()
			}

		case "R":
			return a, a.refreshCmd()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6

	case tickMsg:
		if job := a.controller.Poller().Job(); job != nil && job.Status.Terminal() {
			a.finished = true
		}
		cmds = append(cmds, a.tickCmd())

	case hubNotificationMsg:
		// The hub already tracks active notifications; this wakeup just
		// forces a redraw, then resubscribes.
		cmds = append(cmds, a.waitForNotification())

	case actionDoneMsg:
		a.acting = false
	}

	return a, tea.Batch(cmds...)
}

func (a *App) approveCmd(hash string) tea.Cmd {
	return func() tea.Msg {
		_, err := a.controller.Approve(context.Background(), hash)
		return actionDoneMsg{err: err}
	}
}

func (a *App) reviseCmd(feedback string) tea.Cmd {
	return func() tea.Msg {
		_, err := a.controller.Revise(context.Background(), feedback)
		return actionDoneMsg{err: err}
	}
}

func (a *App) cancelCmd() tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{err: a.controller.Cancel(context.Background())}
	}
}

func (a *App) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		a.controller.Refresh(context.Background())
		return actionDoneMsg{}
	}
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	header := titleStyle.Render("TICKCTL Draft PR Watch")
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(shortID(a.jobID))
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 20)) + "\n")

	b.WriteString(a.renderJobPanel())
	b.WriteString(a.renderPlansPanel())
	b.WriteString(a.renderNotifications())

	if a.mode == "revise" {
		b.WriteString("\n")
		b.WriteString(inputBoxStyle.Render(a.input.View()))
		b.WriteString("\n" + helpStyle.Render("Enter:submit | Esc:cancel"))
	}

	var status string
	switch {
	case a.finished:
		status = " Job finished | q:quit"
	case a.mode == "revise":
		status = " Revising plan"
	default:
		status = " a:approve | r:revise | c:cancel | R:refresh | q:quit"
	}
	b.WriteString("\n" + statusBarStyle.Width(max(a.width, 20)).Render(status))

	return b.String()
}

func (a *App) renderJobPanel() string {
	job := a.controller.Poller().Job()
	if job == nil {
		return "\n  Loading job...\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n  Status: %s\n", formatStatus(job.Status)))
	if stage := a.controller.Stage(); stage != "" {
		b.WriteString(fmt.Sprintf("  Stage:  %s\n", string(stage)))
	}
	if keys := job.TicketKeys; len(keys) > 0 {
		b.WriteString(fmt.Sprintf("  Tickets: %s\n", strings.Join(keys, ", ")))
	} else if job.TicketKey != "" {
		b.WriteString(fmt.Sprintf("  Ticket: %s\n", job.TicketKey))
	}
	if a.controller.YoloMode() {
		b.WriteString("  Mode:   " + lipgloss.NewStyle().Foreground(warningColor).Render("yolo (auto-approve)") + "\n")
	}
	if url := a.controller.PRURL(); url != "" {
		b.WriteString("  PR:     " + lipgloss.NewStyle().Foreground(successColor).Render(url) + "\n")
	}
	if msg := a.controller.ErrorMessage(); msg != "" {
		b.WriteString("  Error:  " + lipgloss.NewStyle().Foreground(errorColor).Render(msg) + "\n")
	}
	return b.String()
}

func (a *App) renderPlansPanel() string {
	versions := a.controller.PlanVersions()
	if len(versions) == 0 {
		return ""
	}

	approved := a.controller.ApprovedPlanHash()

	var b strings.Builder
	b.WriteString("\n  Plan versions\n")
	for i, v := range versions {
		label := fmt.Sprintf("v%d %s", v.Version, shortID(v.Hash))
		switch {
		case v.Hash == approved && approved != "":
			label = lipgloss.NewStyle().Foreground(successColor).Render(label + "  approved")
		case i == len(versions)-1:
			label = selectedPlanStyle.Render(label + "  latest")
		}
		b.WriteString("    " + label + "\n")
	}
	return panelStyle.Render(b.String()) + "\n"
}

func (a *App) renderNotifications() string {
	active := a.hub.Active()
	if len(active) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, n := range active {
		style := lipgloss.NewStyle().Foreground(mutedColor)
		switch n.Severity {
		case notify.SeveritySuccess:
			style = lipgloss.NewStyle().Foreground(successColor)
		case notify.SeverityError:
			style = lipgloss.NewStyle().Foreground(errorColor)
		case notify.SeverityWarning:
			style = lipgloss.NewStyle().Foreground(warningColor)
		}
		b.WriteString("  " + style.Render(n.Message) + "\n")
	}
	return b.String()
}

func formatStatus(status api.JobStatus) string {
	switch status {
	case api.JobStatusCompleted:
		return lipgloss.NewStyle().Foreground(successColor).Render(string(status))
	case api.JobStatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render(string(status))
	case api.JobStatusCancelled:
		return lipgloss.NewStyle().Foreground(mutedColor).Render(string(status))
	default:
		return lipgloss.NewStyle().Foreground(warningColor).Render(string(status))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
