// Package ledger holds the engine's authoritative in-memory state:
// balance mirror, trade history, signal history, cooldowns and the
// active instrument set. Every mutation happens under one lock and is
// followed by a snapshot write, so a crash between cycles loses at
// most the mutation in flight.
package ledger

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/internal/version"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

const (
	// MaxTradeHistory bounds the in-memory trade list. Oldest closed
	// trades are evicted first; the journal keeps the full history.
	MaxTradeHistory = 500

	// MaxSignalHistory bounds the in-memory signal record ring.
	MaxSignalHistory = 1000

	// MaxActiveInstruments bounds the watch list.
	MaxActiveInstruments = 5
)

// Ledger is safe for concurrent use by the signal, monitor and
// reconcile loops.
type Ledger struct {
	mu sync.Mutex

	balance     float64
	trades      []types.Trade
	signals     []types.SignalRecord
	cooldowns   map[string]types.Cooldown
	instruments []string
	equity      []types.EquityPoint
	running     bool

	snapshotPath string
	logger       *logger.Logger
}

// NewLedger creates an empty ledger. An empty snapshotPath disables
// persistence, which replay runs use.
func NewLedger(snapshotPath string, log *logger.Logger) *Ledger {
	return &Ledger{
		cooldowns:    make(map[string]types.Cooldown),
		snapshotPath: snapshotPath,
		logger:       log,
	}
}

// Load restores state from the snapshot file. A missing file starts
// fresh; a snapshot written under an incompatible schema version is an
// error so the operator decides instead of the engine guessing.
func (l *Ledger) Load() error {
	if l.snapshotPath == "" {
		return nil
	}

	snapshot, err := types.ReadStateSnapshot(l.snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return errors.Wrap(errors.ErrCodeSnapshotUnavailable, "failed to read state snapshot", err)
	}

	if err := version.CheckSchemaCompatibility(version.SnapshotSchemaVersion, snapshot.SchemaVersion); err != nil {
		return errors.Wrap(errors.ErrCodeSchemaIncompatible, "state snapshot is not loadable by this build", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = snapshot.Trades
	l.instruments = snapshot.ActiveInstruments

	l.cooldowns = make(map[string]types.Cooldown, len(snapshot.Cooldowns))
	for instrument, cooldown := range snapshot.Cooldowns {
		l.cooldowns[instrument] = cooldown
	}

	l.logger.Info("state snapshot restored",
		zap.Int("trades", len(l.trades)),
		zap.Int("cooldowns", len(l.cooldowns)),
		zap.Strings("instruments", l.instruments),
	)

	return nil
}

// SetRunning records whether the trading loops are live.
func (l *Ledger) SetRunning(running bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.running = running
	l.persistLocked()
}

func (l *Ledger) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.running
}

// Balance returns the tracked available balance. Live engines refresh
// it from the broker; between refreshes entries debit it so one cycle
// cannot commit the same margin twice.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balance
}

func (l *Ledger) SetBalance(balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = balance
}

// Activate adds an instrument to the watch list.
func (l *Ledger) Activate(instrument string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, active := range l.instruments {
		if active == instrument {
			return nil
		}
	}

	if len(l.instruments) >= MaxActiveInstruments {
		return errors.Newf(errors.ErrCodeInstrumentLimit, "active instrument limit of %d reached", MaxActiveInstruments)
	}

	l.instruments = append(l.instruments, instrument)
	l.persistLocked()

	return nil
}

// Deactivate removes an instrument from the watch list. An instrument
// with an open trade stays active until the trade is closed.
func (l *Ledger) Deactivate(instrument string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.openTradeLocked(instrument); ok {
		return errors.Newf(errors.ErrCodePositionExists, "instrument %s has an open trade", instrument)
	}

	for i, active := range l.instruments {
		if active == instrument {
			l.instruments = append(l.instruments[:i], l.instruments[i+1:]...)
			l.persistLocked()

			return nil
		}
	}

	return nil
}

func (l *Ledger) ActiveInstruments() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.instruments))
	copy(out, l.instruments)

	return out
}

// OpenTrade records a new open trade and debits its margin from the
// balance mirror. At most one open trade per instrument is allowed.
func (l *Ledger) OpenTrade(trade types.Trade) (types.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.openTradeInternalLocked(trade, true)
}

// AdoptTrade records a trade discovered at the broker. The broker
// balance already carries its margin, so nothing is debited here.
func (l *Ledger) AdoptTrade(trade types.Trade) (types.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.openTradeInternalLocked(trade, false)
}

func (l *Ledger) openTradeInternalLocked(trade types.Trade, debitMargin bool) (types.Trade, error) {
	if trade.Lots < 1 {
		return types.Trade{}, errors.Newf(errors.ErrCodeInvalidParameter, "trade lots must be at least 1, got %d", trade.Lots)
	}

	if existing, ok := l.openTradeLocked(trade.Instrument); ok {
		return types.Trade{}, errors.Newf(errors.ErrCodePositionExists,
			"instrument %s already has open trade %s", trade.Instrument, existing.ID)
	}

	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}

	trade.Status = types.TradeStatusOpen

	if debitMargin {
		l.balance -= trade.MarginUsed
	}

	l.trades = append(l.trades, trade)
	l.trimTradesLocked()
	l.persistLocked()

	return trade, nil
}

// OpenTradeFor returns a copy of the open trade for the instrument.
func (l *Ledger) OpenTradeFor(instrument string) (types.Trade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.openTradeLocked(instrument)
}

func (l *Ledger) openTradeLocked(instrument string) (types.Trade, bool) {
	for i := range l.trades {
		if l.trades[i].Instrument == instrument && l.trades[i].IsOpen() {
			return l.trades[i], true
		}
	}

	return types.Trade{}, false
}

// OpenTrades returns copies of all open trades.
func (l *Ledger) OpenTrades() []types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []types.Trade

	for i := range l.trades {
		if l.trades[i].IsOpen() {
			out = append(out, l.trades[i])
		}
	}

	return out
}

// UpdateTrade writes back a mutated copy of an open trade, typically
// after a mark price or excursion update.
func (l *Ledger) UpdateTrade(trade types.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.trades {
		if l.trades[i].ID == trade.ID {
			if !l.trades[i].IsOpen() {
				return errors.Newf(errors.ErrCodePositionNotFound, "trade %s is already closed", trade.ID)
			}

			l.trades[i] = trade
			l.persistLocked()

			return nil
		}
	}

	return errors.Newf(errors.ErrCodePositionNotFound, "trade %s not found", trade.ID)
}

// SettleTrade replaces an open trade with its settled form, credits
// the restitution (margin plus realized P&L) back to the balance and
// appends an equity curve point.
func (l *Ledger) SettleTrade(trade types.Trade, restitution float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.trades {
		if l.trades[i].ID == trade.ID {
			if !l.trades[i].IsOpen() {
				return errors.Newf(errors.ErrCodePositionNotFound, "trade %s is already closed", trade.ID)
			}

			l.trades[i] = trade
			l.balance += restitution

			l.equity = append(l.equity, types.EquityPoint{
				Time:    trade.ExitTime.TakeOr(time.Now()),
				Balance: l.balance,
			})

			l.persistLocked()

			return nil
		}
	}

	return errors.Newf(errors.ErrCodePositionNotFound, "trade %s not found", trade.ID)
}

// RemoveTrade drops a trade without settlement. Reconciliation uses it
// when a locally tracked trade turns out to be wrong.
func (l *Ledger) RemoveTrade(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.trades {
		if l.trades[i].ID == id {
			l.trades = append(l.trades[:i], l.trades[i+1:]...)
			l.persistLocked()

			return true
		}
	}

	return false
}

// Trades returns copies of trades matching the filter, oldest first.
// A positive Limit keeps the most recent matches.
func (l *Ledger) Trades(filter types.TradeFilter) []types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []types.Trade

	for i := range l.trades {
		if filter.Matches(&l.trades[i]) {
			out = append(out, l.trades[i])
		}
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}

	return out
}

// ConsecutiveLosses counts losing closed trades for the instrument
// walking backwards from the most recent until the first non-loss.
func (l *Ledger) ConsecutiveLosses(instrument string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	losses := 0

	for i := len(l.trades) - 1; i >= 0; i-- {
		trade := &l.trades[i]
		if trade.Instrument != instrument || trade.IsOpen() {
			continue
		}

		if trade.RealizedPnL >= 0 {
			break
		}

		losses++
	}

	return losses
}

// StartCooldown records a cooldown, replacing any existing one for the
// instrument.
func (l *Ledger) StartCooldown(cooldown types.Cooldown) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cooldowns[cooldown.Instrument] = cooldown
	l.persistLocked()
}

// CooldownFor returns the active cooldown for an instrument. Expired
// cooldowns are removed on the way out.
func (l *Ledger) CooldownFor(instrument string, now time.Time) (types.Cooldown, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cooldown, ok := l.cooldowns[instrument]
	if !ok {
		return types.Cooldown{}, false
	}

	if !cooldown.Active(now) {
		delete(l.cooldowns, instrument)
		l.persistLocked()

		return types.Cooldown{}, false
	}

	return cooldown, true
}

// ClearCooldown removes a cooldown ahead of its expiry.
func (l *Ledger) ClearCooldown(instrument string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.cooldowns[instrument]; !ok {
		return false
	}

	delete(l.cooldowns, instrument)
	l.persistLocked()

	return true
}

// Cooldowns returns the active cooldowns, pruning expired ones.
func (l *Ledger) Cooldowns(now time.Time) map[string]types.Cooldown {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]types.Cooldown, len(l.cooldowns))
	pruned := false

	for instrument, cooldown := range l.cooldowns {
		if !cooldown.Active(now) {
			delete(l.cooldowns, instrument)
			pruned = true

			continue
		}

		out[instrument] = cooldown
	}

	if pruned {
		l.persistLocked()
	}

	return out
}

// RecordSignal appends to the in-memory signal ring. Signal history is
// not part of the snapshot; the journal is its durable home.
func (l *Ledger) RecordSignal(record types.SignalRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.signals = append(l.signals, record)
	if len(l.signals) > MaxSignalHistory {
		l.signals = l.signals[len(l.signals)-MaxSignalHistory:]
	}
}

// SignalHistory returns the most recent limit records, oldest first.
// A non-positive limit returns everything retained.
func (l *Ledger) SignalHistory(limit int) []types.SignalRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := l.signals
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	out := make([]types.SignalRecord, len(records))
	copy(out, records)

	return out
}

// EquityHistory returns the equity curve points recorded this session.
func (l *Ledger) EquityHistory() []types.EquityPoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.EquityPoint, len(l.equity))
	copy(out, l.equity)

	return out
}

// Snapshot returns the current persistable state.
func (l *Ledger) Snapshot() types.StateSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() types.StateSnapshot {
	trades := make([]types.Trade, len(l.trades))
	copy(trades, l.trades)

	instruments := make([]string, len(l.instruments))
	copy(instruments, l.instruments)

	cooldowns := make(map[string]types.Cooldown, len(l.cooldowns))
	for instrument, cooldown := range l.cooldowns {
		cooldowns[instrument] = cooldown
	}

	return types.StateSnapshot{
		SchemaVersion:     version.SnapshotSchemaVersion,
		IsRunning:         l.running,
		ActiveInstruments: instruments,
		Trades:            trades,
		Cooldowns:         cooldowns,
		UpdatedAt:         time.Now().UTC(),
	}
}

// persistLocked writes the snapshot after a mutation. A failed write
// is logged and trading continues; the next mutation retries.
func (l *Ledger) persistLocked() {
	if l.snapshotPath == "" {
		return
	}

	if err := types.WriteStateSnapshot(l.snapshotPath, l.snapshotLocked()); err != nil {
		l.logger.Warn("failed to persist state snapshot",
			zap.String("path", l.snapshotPath),
			zap.Error(err),
		)
	}
}

// trimTradesLocked evicts the oldest closed trades once the history
// cap is exceeded. Open trades are never evicted.
func (l *Ledger) trimTradesLocked() {
	if len(l.trades) <= MaxTradeHistory {
		return
	}

	excess := len(l.trades) - MaxTradeHistory
	kept := make([]types.Trade, 0, MaxTradeHistory)

	for i := range l.trades {
		if excess > 0 && !l.trades[i].IsOpen() {
			excess--

			continue
		}

		kept = append(kept, l.trades[i])
	}

	l.trades = kept
}
