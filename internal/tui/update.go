package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"packetscope/internal/capture"
	"packetscope/internal/filter"
	"packetscope/internal/models"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusMsg:
		m.lastStatus = models.CaptureStatus(msg)
		m.haveStatus = true
		m.lastErr = ""
		// Keep draining so statuses arrive in emission order.
		return m, waitStatus(m.session)

	case TickMsg:
		m.refreshPackets()
		m.stats = m.session.Stats()
		return m, tickCmd()
	}

	switch m.screen {
	case screenInterfaces:
		m.ifaceTable, cmd = m.ifaceTable.Update(msg)
	default:
		m.pktTable, cmd = m.pktTable.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		if m.session.State() == capture.Capturing {
			// Release the device on the way out; errors fall out of
			// scope with the process.
			_ = m.session.Stop()
		}
		return m, tea.Quit

	case "/":
		m.filtering = true
		m.focused = filterProtocol
		return m, m.focusInput(filterProtocol)

	case "i":
		m.screen = screenInterfaces
		m.refreshInterfaces()
		return m, nil

	case "s":
		return m.toggleCapture("")

	case "r":
		if m.screen == screenInterfaces {
			m.refreshInterfaces()
		}
		return m, nil

	case "enter":
		if m.screen == screenInterfaces {
			row := m.ifaceTable.SelectedRow()
			if row != nil {
				m.screen = screenPackets
				return m.toggleCapture(row[0])
			}
		}

	case "esc":
		if m.screen == screenInterfaces {
			m.screen = screenPackets
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.screen {
	case screenInterfaces:
		m.ifaceTable, cmd = m.ifaceTable.Update(msg)
	default:
		m.pktTable, cmd = m.pktTable.Update(msg)
	}
	return m, cmd
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter":
		m.filtering = false
		for i := range m.inputs {
			m.inputs[i].Blur()
		}
		m.refreshPackets()
		return m, nil

	case "tab":
		m.focused = (m.focused + 1) % filterCount
		return m, m.focusInput(m.focused)

	case "shift+tab":
		m.focused = (m.focused + filterCount - 1) % filterCount
		return m, m.focusInput(m.focused)
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

func (m *Model) focusInput(idx int) tea.Cmd {
	var cmd tea.Cmd
	for i := range m.inputs {
		if i == idx {
			cmd = m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return cmd
}

// toggleCapture starts or stops the session. Synchronous misuse errors
// surface in the status line; lifecycle outcomes arrive as statusMsg.
func (m Model) toggleCapture(iface string) (tea.Model, tea.Cmd) {
	var err error
	if m.session.State() == capture.Capturing {
		err = m.session.Stop()
	} else {
		err = m.session.Start(iface)
	}
	if err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastErr = ""
	}
	return m, nil
}

func (m *Model) spec() filter.Spec {
	return filter.Spec{
		Protocol:    m.inputs[filterProtocol].Value(),
		Source:      m.inputs[filterSource].Value(),
		Destination: m.inputs[filterDestination].Value(),
	}
}

func (m *Model) refreshPackets() {
	snap := m.buf.Snapshot()
	m.retained = len(snap)

	visible := filter.Apply(snap, m.spec())
	m.shown = len(visible)

	rows := make([]table.Row, len(visible))
	for i, r := range visible {
		rows[i] = table.Row{
			r.Timestamp.Format("15:04:05.000"),
			r.Protocol,
			r.Source,
			port(r.SrcPort),
			r.Destination,
			port(r.DstPort),
			fmt.Sprintf("%d", r.Length),
			dash(r.Flags),
			fmt.Sprintf("%d", r.TTL),
		}
	}
	m.pktTable.SetRows(rows)
}

func port(p uint16) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", p)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
