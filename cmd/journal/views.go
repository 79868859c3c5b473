package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// NewTradesTable creates the trades tab table.
func NewTradesTable() table.Model {
	columns := []table.Column{
		{Title: "Entry Time", Width: 13},
		{Title: "Instrument", Width: 10},
		{Title: "Side", Width: 6},
		{Title: "Lots", Width: 5},
		{Title: "Entry", Width: 12},
		{Title: "Exit", Width: 12},
		{Title: "PnL", Width: 13},
		{Title: "Reason", Width: 15},
	}

	return newTable(columns)
}

// NewSignalsTable creates the signals tab table.
func NewSignalsTable() table.Model {
	columns := []table.Column{
		{Title: "Time", Width: 13},
		{Title: "Instrument", Width: 10},
		{Title: "Action", Width: 6},
		{Title: "Conf", Width: 5},
		{Title: "Outcome", Width: 26},
		{Title: "Detail", Width: 30},
	}

	return newTable(columns)
}

// NewEquityTable creates the equity tab table.
func NewEquityTable() table.Model {
	columns := []table.Column{
		{Title: "Time", Width: 13},
		{Title: "Balance", Width: 14},
	}

	return newTable(columns)
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
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

	t.SetStyles(s)

	return t
}

// UpdateTradeRows fills the trades table.
func UpdateTradeRows(t table.Model, trades []types.Trade) table.Model {
	rows := make([]table.Row, 0, len(trades))

	for _, trade := range trades {
		exit := "-"
		if price, err := trade.ExitPrice.Take(); err == nil {
			exit = fmt.Sprintf("%.4f", price)
		}

		pnl := "open"
		if trade.Status == types.TradeStatusClosed {
			pnl = FormatPnL(trade.RealizedPnL)
		}

		rows = append(rows, table.Row{
			trade.EntryTime.Format("01-02 15:04"),
			trade.Instrument,
			string(trade.Side),
			fmt.Sprintf("%d", trade.Lots),
			fmt.Sprintf("%.4f", trade.EntryPrice),
			exit,
			pnl,
			string(trade.ExitReason.TakeOr("-")),
		})
	}

	t.SetRows(rows)

	return t
}

// UpdateSignalRows fills the signals table.
func UpdateSignalRows(t table.Model, signals []types.SignalRecord) table.Model {
	rows := make([]table.Row, 0, len(signals))

	for _, record := range signals {
		rows = append(rows, table.Row{
			record.Time.Format("01-02 15:04"),
			record.Instrument,
			string(record.Signal.Action),
			fmt.Sprintf("%.2f", record.Signal.Confidence),
			string(record.Outcome),
			record.Detail,
		})
	}

	t.SetRows(rows)

	return t
}

// UpdateEquityRows fills the equity table.
func UpdateEquityRows(t table.Model, points []types.EquityPoint) table.Model {
	rows := make([]table.Row, 0, len(points))

	for _, point := range points {
		rows = append(rows, table.Row{
			point.Time.Format("01-02 15:04"),
			fmt.Sprintf("%.2f", point.Balance),
		})
	}

	t.SetRows(rows)

	return t
}
