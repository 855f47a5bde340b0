// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The OpenLumen Authors

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/openlumen/lumend/internal/artnet"
	"github.com/openlumen/lumend/internal/network"
)

var monitorAddr string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live status dashboard for a running node",
	Long: `Poll a node's HTTP status endpoint and render a terminal dashboard:
connectivity state, ArtNet traffic, active mode, and safe-mode warnings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newMonitorModel(monitorAddr)
		_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monitorAddr, "addr", "http://127.0.0.1:8080", "Node HTTP API base URL")
	rootCmd.AddCommand(monitorCmd)
}

// nodeStatus mirrors the GET /api/status body.
type nodeStatus struct {
	Network       network.Status `json:"network"`
	Mode          string         `json:"mode"`
	Brightness    uint8          `json:"brightness"`
	SafeMode      bool           `json:"safeMode"`
	UptimeSeconds uint32         `json:"uptimeSeconds"`
	ArtNet        artnet.Stats   `json:"artnet"`
}

type statusMsg nodeStatus
type statusErrMsg struct{ err error }
type pollMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1).
			MarginRight(1)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type monitorModel struct {
	addr    string
	client  *http.Client
	spin    spinner.Model
	status  *nodeStatus
	lastErr error
}

func newMonitorModel(addr string) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return monitorModel{
		addr:   strings.TrimRight(addr, "/"),
		client: &http.Client{Timeout: 2 * time.Second},
		spin:   s,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.fetch)
}

func (m monitorModel) fetch() tea.Msg {
	resp, err := m.client.Get(m.addr + "/api/status")
	if err != nil {
		return statusErrMsg{err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusErrMsg{fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	var st nodeStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return statusErrMsg{err}
	}
	return statusMsg(st)
}

func schedulePoll() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case statusMsg:
		st := nodeStatus(msg)
		m.status = &st
		m.lastErr = nil
		return m, schedulePoll()

	case statusErrMsg:
		m.lastErr = msg.err
		return m, schedulePoll()

	case pollMsg:
		return m, m.fetch

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m monitorModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Lumend Node Monitor"))
	b.WriteString("  " + m.addr + "\n\n")

	if m.lastErr != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("unreachable: %v", m.lastErr)))
		b.WriteString("\n\nPress q to quit.\n")
		return b.String()
	}
	if m.status == nil {
		b.WriteString(m.spin.View() + " connecting...\n")
		return b.String()
	}

	st := m.status
	netPanel := panelStyle.Render(
		titleStyle.Render("Connectivity") + "\n" +
			row("State", renderState(st.Network.State)) +
			row("IP", st.Network.IP) +
			row("SSID", st.Network.SSID) +
			row("Attempts", fmt.Sprintf("%d", st.Network.Attempts)) +
			row("Last error", st.Network.LastError),
	)
	artnetPanel := panelStyle.Render(
		titleStyle.Render("ArtNet") + "\n" +
			row("Packets", fmt.Sprintf("%d", st.ArtNet.Packets)) +
			row("Rejected", fmt.Sprintf("%d", st.ArtNet.Rejected)) +
			row("Sequence", fmt.Sprintf("%d", st.ArtNet.LastSequence)) +
			row("Last packet", renderLastReceived(st.ArtNet.LastReceived)),
	)
	nodePanel := panelStyle.Render(
		titleStyle.Render("Node") + "\n" +
			row("Mode", st.Mode) +
			row("Brightness", fmt.Sprintf("%d", st.Brightness)) +
			row("Uptime", (time.Duration(st.UptimeSeconds)*time.Second).String()) +
			row("Safe mode", renderSafeMode(st.SafeMode)),
	)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, netPanel, artnetPanel, nodePanel))
	b.WriteString("\n\nPress q to quit.\n")
	return b.String()
}

func row(label, value string) string {
	if value == "" {
		value = "-"
	}
	return labelStyle.Render(label) + value + "\n"
}

func renderState(s network.State) string {
	switch s {
	case network.StateConnected:
		return okStyle.Render(s.String())
	case network.StateDisabled:
		return errStyle.Render(s.String())
	default:
		return warnStyle.Render(s.String())
	}
}

func renderSafeMode(on bool) string {
	if on {
		return errStyle.Render("ACTIVE")
	}
	return okStyle.Render("off")
}

func renderLastReceived(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}
