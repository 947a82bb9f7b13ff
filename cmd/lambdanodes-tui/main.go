package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
	"github.com/rmax-ai/lambdanodes/pkg/client"
	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

const (
	pollRate       = time.Second
	fetchTimeout   = 800 * time.Millisecond
	maxLogs        = 20
	maxPipelines   = 10
	viewportHeight = 20
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(49)

	logTimeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	internalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
)

type tickMsg time.Time

type dataMsg struct {
	nodes     []catalog.NodeDefinition
	pipelines []pipeline.Record
	logs      []client.LogEntry
	err       error
}

type model struct {
	api       *client.Client
	spinner   spinner.Model
	viewport  viewport.Model
	nodes     []catalog.NodeDefinition
	pipelines []pipeline.Record
	logs      []client.LogEntry
	err       error
	ready     bool
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func initialModel(api *client.Client) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		api:      api,
		spinner:  s,
		viewport: newViewport(100),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchData(m.api),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchData(m.api), tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.nodes = msg.nodes
			m.pipelines = msg.pipelines
			m.logs = msg.logs
			m.updateViewportContent()
		}
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
		m.ready = true
	}

	return m, tea.Batch(cmds...)
}

// updateViewportContent renders the request log, oldest at the top.
func (m *model) updateViewportContent() {
	var sb strings.Builder
	for i := len(m.logs) - 1; i >= 0; i-- {
		e := m.logs[i]
		style := infoStyle
		if e.Level != "info" {
			style = warnStyle
		}
		fmt.Fprintf(&sb, "%s %s\n", logTimeStyle.Render(e.CreateAt.Format("15:04:05")), style.Render(e.Message))
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Initializing...", m.spinner.View())
	}

	var nodes strings.Builder
	nodes.WriteString(titleStyle.Render("Node Catalog") + "\n\n")
	if len(m.nodes) == 0 {
		nodes.WriteString(subtleStyle.Render("No nodes."))
	}
	for _, d := range m.nodes {
		name := d.Name
		if d.IsInternal {
			name = internalStyle.Render(name)
		}
		fmt.Fprintf(&nodes, "• %s (%d in / %d out)\n", name, len(d.Inputs), len(d.Outputs))
	}

	var pipes strings.Builder
	pipes.WriteString(titleStyle.Render("Pipelines") + "\n\n")
	if len(m.pipelines) == 0 {
		pipes.WriteString(subtleStyle.Render("No pipelines stored."))
	}
	for _, r := range m.pipelines {
		route := subtleStyle.Render("no route")
		if r.URL != "" {
			route = fmt.Sprintf("%s %s", r.Method, r.URL)
		}
		fmt.Fprintf(&pipes, "• %s  %s\n", r.Name, route)
	}

	topPane := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(nodes.String()),
		paneStyle.Render(pipes.String()),
	)

	header := headerStyle.Render(fmt.Sprintf("%s Request Log", m.spinner.View()))

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %d Nodes • %d Pipelines", len(m.nodes), len(m.pipelines)))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, m.viewport.View(), footer)
}

// Commands

func fetchData(api *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		nodes, err := api.Catalog().List(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		pipelines, err := api.ListPipelines(ctx, client.Page{Limit: maxPipelines})
		if err != nil {
			return dataMsg{err: err}
		}
		logs, err := api.ListLogs(ctx, client.Page{Limit: maxLogs})
		if err != nil {
			return dataMsg{err: err}
		}

		return dataMsg{nodes: nodes, pipelines: pipelines, logs: logs}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	endpoint := flag.String("endpoint", envOrDefault("LAMBDANODES_ENDPOINT", client.DefaultEndpoint), "daemon base URL")
	flag.Parse()

	p := tea.NewProgram(initialModel(client.NewClient(*endpoint)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
