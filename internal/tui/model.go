package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"packetscope/internal/capture"
	"packetscope/internal/models"
	"packetscope/internal/ring"
)

// TickMsg drives the periodic view refresh.
type TickMsg time.Time

// statusMsg wraps a CaptureStatus delivered by the session.
type statusMsg models.CaptureStatus

type screen int

const (
	screenPackets screen = iota
	screenInterfaces
)

const (
	filterProtocol = iota
	filterSource
	filterDestination
	filterCount
)

// Model is the bubbletea model for the live capture view. It only ever
// reads the pipeline's boundary surface: buffer snapshots, the status
// stream, the interface catalog, and session state.
type Model struct {
	session *capture.Session
	catalog capture.Catalog
	buf     *ring.Buffer
	logger  *zap.Logger

	screen     screen
	pktTable   table.Model
	ifaceTable table.Model
	inputs     [filterCount]textinput.Model
	filtering  bool
	focused    int

	ifaces   []models.Interface
	ifaceErr string

	lastStatus models.CaptureStatus
	haveStatus bool
	lastErr    string
	stats      capture.Stats
	shown      int
	retained   int
}

// New builds the TUI over an idle session and its retention buffer.
func New(session *capture.Session, catalog capture.Catalog, buf *ring.Buffer, logger *zap.Logger) Model {
	pkt := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 12},
			{Title: "Proto", Width: 9},
			{Title: "Source", Width: 21},
			{Title: "SPort", Width: 6},
			{Title: "Destination", Width: 21},
			{Title: "DPort", Width: 6},
			{Title: "Len", Width: 6},
			{Title: "Flags", Width: 15},
			{Title: "TTL", Width: 4},
		}),
		table.WithFocused(true),
		table.WithHeight(16),
	)

	ifc := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 16},
			{Title: "Description", Width: 30},
			{Title: "MAC", Width: 18},
			{Title: "IPv4", Width: 18},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	pkt.SetStyles(s)
	ifc.SetStyles(s)

	m := Model{
		session:    session,
		catalog:    catalog,
		buf:        buf,
		logger:     logger,
		pktTable:   pkt,
		ifaceTable: ifc,
	}

	placeholders := [filterCount]string{"protocol", "source", "destination"}
	for i := range m.inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.CharLimit = 48
		in.Width = 18
		m.inputs[i] = in
	}

	m.refreshInterfaces()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitStatus(m.session))
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// waitStatus blocks on the session's status stream and feeds each event
// into the update loop, preserving emission order.
func waitStatus(s *capture.Session) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-s.Events())
	}
}

func (m *Model) refreshInterfaces() {
	ifaces, err := m.catalog.List()
	if err != nil {
		// Non-fatal: render an empty catalog and log the reason.
		m.logger.Error("interface enumeration failed", zap.Error(err))
		m.ifaces = nil
		m.ifaceErr = err.Error()
	} else {
		m.ifaces = ifaces
		m.ifaceErr = ""
	}

	rows := make([]table.Row, len(m.ifaces))
	for i, iface := range m.ifaces {
		addr := "-"
		if len(iface.IPv4) > 0 {
			addr = iface.IPv4[0]
		}
		mac := iface.MAC
		if mac == "" {
			mac = "-"
		}
		rows[i] = table.Row{iface.Name, iface.Description, mac, addr}
	}
	m.ifaceTable.SetRows(rows)
}
