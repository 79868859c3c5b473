package main

import "github.com/meridian-lab/meridian-trading/internal/types"

// JournalLoadedMsg carries the journal contents after a load.
type JournalLoadedMsg struct {
	Trades  []types.Trade
	Signals []types.SignalRecord
	Equity  []types.EquityPoint
}

// LoadErrorMsg indicates the journal could not be read.
type LoadErrorMsg struct {
	Err error
}
