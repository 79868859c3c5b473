package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// Tabs.
const (
	TabTrades = iota
	TabSignals
	TabEquity
)

// signalLimit caps how many signal records one load pulls in.
const signalLimit = 500

// JournalSource is the slice of the journal the browser reads.
type JournalSource interface {
	Trades(filter types.TradeFilter) ([]types.Trade, error)
	Signals(limit int) ([]types.SignalRecord, error)
	EquityCurve() ([]types.EquityPoint, error)
}

// Model is the main Bubble Tea model for the journal browser.
type Model struct {
	tab          int
	source       JournalSource
	journalPath  string
	tradesTable  table.Model
	signalsTable table.Model
	equityTable  table.Model
	trades       []types.Trade
	signals      []types.SignalRecord
	equity       []types.EquityPoint
	loaded       bool
	err          error
	width        int
	height       int
}

// NewModel creates a Model reading from source. The path only labels the
// header.
func NewModel(source JournalSource, journalPath string) Model {
	return Model{
		tab:          TabTrades,
		source:       source,
		journalPath:  journalPath,
		tradesTable:  NewTradesTable(),
		signalsTable: NewSignalsTable(),
		equityTable:  NewEquityTable(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.loadJournal()
}

// loadJournal returns a command that reads all three journal sections.
func (m Model) loadJournal() tea.Cmd {
	source := m.source

	return func() tea.Msg {
		trades, err := source.Trades(types.TradeFilter{})
		if err != nil {
			return LoadErrorMsg{Err: err}
		}

		signals, err := source.Signals(signalLimit)
		if err != nil {
			return LoadErrorMsg{Err: err}
		}

		equity, err := source.EquityCurve()
		if err != nil {
			return LoadErrorMsg{Err: err}
		}

		return JournalLoadedMsg{Trades: trades, Signals: signals, Equity: equity}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab", "right":
			m.tab = (m.tab + 1) % 3
			return m, nil
		case "shift+tab", "left":
			m.tab = (m.tab + 2) % 3
			return m, nil
		case "1":
			m.tab = TabTrades
			return m, nil
		case "2":
			m.tab = TabSignals
			return m, nil
		case "3":
			m.tab = TabEquity
			return m, nil
		case "r":
			return m, m.loadJournal()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tradesTable.SetWidth(msg.Width)
		m.tradesTable.SetHeight(msg.Height - 6)
		m.signalsTable.SetWidth(msg.Width)
		m.signalsTable.SetHeight(msg.Height - 6)
		m.equityTable.SetWidth(msg.Width)
		m.equityTable.SetHeight(msg.Height - 6)
		return m, nil

	case JournalLoadedMsg:
		m.trades = msg.Trades
		m.signals = msg.Signals
		m.equity = msg.Equity
		m.loaded = true
		m.err = nil
		m.tradesTable = UpdateTradeRows(m.tradesTable, m.trades)
		m.signalsTable = UpdateSignalRows(m.signalsTable, m.signals)
		m.equityTable = UpdateEquityRows(m.equityTable, m.equity)
		return m, nil

	case LoadErrorMsg:
		m.err = msg.Err
		return m, nil
	}

	// Delegate scrolling to the active table
	var cmd tea.Cmd

	switch m.tab {
	case TabTrades:
		m.tradesTable, cmd = m.tradesTable.Update(msg)
	case TabSignals:
		m.signalsTable, cmd = m.signalsTable.Update(msg)
	case TabEquity:
		m.equityTable, cmd = m.equityTable.Update(msg)
	}

	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Meridian Trading - Run Journal"))
	s.WriteString("  ")
	s.WriteString(HelpStyle.Render(m.journalPath))
	s.WriteString("\n")
	s.WriteString(renderTabs(m.tab))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	switch m.tab {
	case TabTrades:
		if len(m.trades) == 0 {
			s.WriteString(m.emptyHint("No trades recorded"))
		} else {
			s.WriteString(m.tradesTable.View())
		}
	case TabSignals:
		if len(m.signals) == 0 {
			s.WriteString(m.emptyHint("No signals recorded"))
		} else {
			s.WriteString(m.signalsTable.View())
		}
	case TabEquity:
		if len(m.equity) == 0 {
			s.WriteString(m.emptyHint("No equity samples recorded"))
		} else {
			s.WriteString(m.equityTable.View())
		}
	}

	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("tab: switch view | r: reload | q: quit"))

	return s.String()
}

func (m Model) emptyHint(message string) string {
	if !m.loaded {
		return "Loading journal...\n"
	}

	return message + "\n"
}

// renderTabs draws the tab bar with the active tab highlighted.
func renderTabs(active int) string {
	names := []string{"Trades", "Signals", "Equity"}
	parts := make([]string, 0, len(names))

	for i, name := range names {
		label := fmt.Sprintf("%d %s", i+1, name)
		if i == active {
			parts = append(parts, ActiveTabStyle.Render(label))
		} else {
			parts = append(parts, TabStyle.Render(label))
		}
	}

	return strings.Join(parts, "   ")
}
