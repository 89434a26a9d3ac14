package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"packetscope/internal/capture"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m Model) View() string {
	header := "packetscope"
	if iface := m.session.ActiveInterface(); iface != "" {
		header += " - " + iface
	}
	title := titleStyle.Render(header)

	if m.screen == screenInterfaces {
		body := infoStyle.Render("Interfaces\n" + m.ifaceTable.View())
		note := ""
		if m.ifaceErr != "" {
			note = errStyle.Render("enumeration failed: " + m.ifaceErr)
		}
		help := helpStyle.Render("enter: capture on selection • r: refresh • esc: back • q: quit")
		return lipgloss.JoinVertical(lipgloss.Left, title, body, note, help)
	}

	status := m.statusLine()
	filters := m.filterLine()
	body := infoStyle.Render(m.pktTable.View())
	help := helpStyle.Render("s: start/stop • /: filter • i: interfaces • q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, title, status, filters, body, help)
}

func (m Model) statusLine() string {
	state := m.session.State()
	var parts []string

	switch state {
	case capture.Capturing:
		parts = append(parts, okStyle.Render("● capturing"))
	case capture.Failed:
		parts = append(parts, errStyle.Render("● failed"))
	default:
		parts = append(parts, dimStyle.Render("● "+state.String()))
	}

	parts = append(parts, fmt.Sprintf("%d/%d records", m.shown, m.retained))
	if m.stats.Received > 0 || m.stats.Dropped > 0 {
		parts = append(parts, fmt.Sprintf("recv %d drop %d", m.stats.Received, m.stats.Dropped))
	}

	if m.lastErr != "" {
		parts = append(parts, errStyle.Render(m.lastErr))
	} else if m.haveStatus {
		msg := m.lastStatus.Message
		if m.lastStatus.Success {
			parts = append(parts, dimStyle.Render(msg))
		} else {
			parts = append(parts, errStyle.Render(msg))
		}
	}

	return infoStyle.Render(strings.Join(parts, "  |  "))
}

func (m Model) filterLine() string {
	labels := [filterCount]string{"proto", "src", "dst"}
	var cells []string
	for i := range m.inputs {
		cells = append(cells, fmt.Sprintf("%s %s", dimStyle.Render(labels[i]), m.inputs[i].View()))
	}
	line := strings.Join(cells, "  ")
	if m.filtering {
		line += "  " + helpStyle.Render("(tab: next field, enter: apply)")
	}
	return infoStyle.Render(line)
}
