package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// stubSource serves canned journal contents.
type stubSource struct {
	trades  []types.Trade
	signals []types.SignalRecord
	equity  []types.EquityPoint
	err     error
}

func (s *stubSource) Trades(filter types.TradeFilter) ([]types.Trade, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.trades, nil
}

func (s *stubSource) Signals(limit int) ([]types.SignalRecord, error) {
	if s.err != nil {
		return nil, s.err
	}

	if limit > 0 && len(s.signals) > limit {
		return s.signals[:limit], nil
	}

	return s.signals, nil
}

func (s *stubSource) EquityCurve() ([]types.EquityPoint, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.equity, nil
}

func sampleSource() *stubSource {
	entry := time.Date(2025, 6, 15, 9, 45, 0, 0, time.UTC)

	return &stubSource{
		trades: []types.Trade{
			{
				ID:          "t-1",
				Instrument:  "BTCUSDT",
				Side:        types.SideLong,
				EntryPrice:  67000,
				EntryTime:   entry,
				Lots:        2,
				LotSize:     0.001,
				Status:      types.TradeStatusClosed,
				ExitPrice:   optional.Some(68200.0),
				ExitTime:    optional.Some(entry.Add(3 * time.Hour)),
				ExitReason:  optional.Some(types.ExitReasonTakeProfit),
				RealizedPnL: 24.0,
			},
			{
				ID:         "t-2",
				Instrument: "ETHUSDT",
				Side:       types.SideShort,
				EntryPrice: 3500,
				EntryTime:  entry.Add(time.Hour),
				Lots:       5,
				LotSize:    0.01,
				Status:     types.TradeStatusOpen,
				LastPrice:  3480,
			},
		},
		signals: []types.SignalRecord{
			{
				Time:       entry,
				Instrument: "ETHUSDT",
				Signal: types.Signal{
					Time:       entry,
					Instrument: "ETHUSDT",
					Action:     types.SignalActionShort,
					Price:      3500,
					Confidence: 0.42,
				},
				Outcome: types.SignalOutcomeBelowThreshold,
				Detail:  "confidence 0.42 below 0.60",
			},
		},
		equity: []types.EquityPoint{
			{Time: entry, Balance: 10000},
			{Time: entry.Add(3 * time.Hour), Balance: 10024},
		},
	}
}

func TestNewModel(t *testing.T) {
	m := NewModel(sampleSource(), "data/journal.duckdb")

	assert.Equal(t, TabTrades, m.tab)
	assert.False(t, m.loaded)
	assert.Empty(t, m.trades)
}

func TestJournalLoadedMessage(t *testing.T) {
	m := NewModel(sampleSource(), "data/journal.duckdb")

	msg := m.Init()()
	loaded, ok := msg.(JournalLoadedMsg)
	assert.True(t, ok)
	assert.Len(t, loaded.Trades, 2)

	newModel, _ := m.Update(loaded)
	updated := newModel.(Model)

	assert.True(t, updated.loaded)
	assert.NoError(t, updated.err)
	assert.Len(t, updated.trades, 2)
	assert.Len(t, updated.signals, 1)
	assert.Len(t, updated.equity, 2)
}

func TestLoadErrorMessage(t *testing.T) {
	source := sampleSource()
	source.err = errors.New("journal unavailable")

	m := NewModel(source, "data/journal.duckdb")

	msg := m.Init()()
	loadErr, ok := msg.(LoadErrorMsg)
	assert.True(t, ok)

	newModel, _ := m.Update(loadErr)
	updated := newModel.(Model)

	assert.Error(t, updated.err)
}

func TestTabSwitching(t *testing.T) {
	m := NewModel(sampleSource(), "data/journal.duckdb")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabSignals, next.(Model).tab)

	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabEquity, next.(Model).tab)

	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabTrades, next.(Model).tab)

	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, TabEquity, next.(Model).tab)

	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	assert.Equal(t, TabSignals, next.(Model).tab)
}

func TestReloadKey(t *testing.T) {
	m := NewModel(sampleSource(), "data/journal.duckdb")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	assert.NotNil(t, cmd)

	msg := cmd()
	assert.IsType(t, JournalLoadedMsg{}, msg)
}

func TestTradesDisplay(t *testing.T) {
	m := NewModel(sampleSource(), "data/journal.duckdb")

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(110, 30))

	// Wait for the loaded journal to render
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("Run Journal")) &&
			bytes.Contains(bts, []byte("BTCUSDT")) &&
			bytes.Contains(bts, []byte("take_profit"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestSignalsTab(t *testing.T) {
	m := NewModel(sampleSource(), "data/journal.duckdb")
	m.tab = TabSignals

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(110, 30))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("rejected_below_threshold"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestLoadErrorShown(t *testing.T) {
	source := sampleSource()
	source.err = errors.New("journal unavailable")

	m := NewModel(source, "data/journal.duckdb")

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(110, 30))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("journal unavailable"))
	}, teatest.WithDuration(2*time.Second))

	err := tm.Quit()
	assert.NoError(t, err)
}

func TestQuitBehavior(t *testing.T) {
	t.Run("ctrl+c quits", func(t *testing.T) {
		m := NewModel(sampleSource(), "data/journal.duckdb")
		tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

		tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
		tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
	})

	t.Run("q quits", func(t *testing.T) {
		m := NewModel(sampleSource(), "data/journal.duckdb")
		tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

		teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
			return bytes.Contains(bts, []byte("Run Journal"))
		}, teatest.WithDuration(2*time.Second))

		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
	})
}

func TestWindowResize(t *testing.T) {
	m := NewModel(sampleSource(), "data/journal.duckdb")

	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated := newModel.(Model)

	assert.Equal(t, 120, updated.width)
	assert.Equal(t, 40, updated.height)
}

func TestFormatPnL(t *testing.T) {
	assert.Contains(t, FormatPnL(24.5), "▲")
	assert.Contains(t, FormatPnL(24.5), "+24.50")
	assert.Contains(t, FormatPnL(-3.25), "▼")
	assert.Contains(t, FormatPnL(-3.25), "-3.25")
	assert.Equal(t, "+0.00", FormatPnL(0))
}
