// Package reconcile keeps the ledger's open positions aligned with the
// broker's. The broker is authoritative: a trade the broker no longer
// holds is settled at its last marked price, a position the ledger never
// opened is adopted under time-limit-only management, and a size
// disagreement is surfaced to the operator without automatic repair.
package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/broker"
	"github.com/meridian-lab/meridian-trading/internal/ledger"
	"github.com/meridian-lab/meridian-trading/internal/lifecycle"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/margin"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// TradeRecorder receives trades whose state changed during a pass.
// A nil recorder disables journaling.
type TradeRecorder interface {
	RecordTrade(trade types.Trade) error
}

// Conflict is a position both sides hold but disagree about. It is
// reported every pass until the operator resolves it.
type Conflict struct {
	Instrument string     `json:"instrument"`
	LocalSide  types.Side `json:"localSide"`
	LocalLots  int        `json:"localLots"`
	BrokerSide types.Side `json:"brokerSide"`
	BrokerLots int        `json:"brokerLots"`
}

// Result summarizes one reconciliation pass.
type Result struct {
	Checked        int
	ExternalCloses []types.Trade
	Adopted        []types.Trade
	Conflicts      []Conflict
}

// Clean reports whether the pass changed nothing and found no
// disagreement.
func (r Result) Clean() bool {
	return len(r.ExternalCloses) == 0 && len(r.Adopted) == 0 && len(r.Conflicts) == 0
}

type Reconciler struct {
	broker   broker.Client
	ledger   *ledger.Ledger
	rules    *lifecycle.Ruleset
	oracle   margin.Oracle
	journal  TradeRecorder
	lotSizes map[string]float64
	logger   *logger.Logger
}

func NewReconciler(client broker.Client, led *ledger.Ledger, rules *lifecycle.Ruleset, oracle margin.Oracle, journal TradeRecorder, lotSizes map[string]float64, log *logger.Logger) *Reconciler {
	return &Reconciler{
		broker:   client,
		ledger:   led,
		rules:    rules,
		oracle:   oracle,
		journal:  journal,
		lotSizes: lotSizes,
		logger:   log,
	}
}

// Reconcile runs one pass against the broker's current positions. The
// pass is idempotent: a second run against an unchanged broker reports
// the same conflicts and changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	positions, err := r.broker.GetOpenPositions(ctx, optional.None[string]())
	if err != nil {
		return Result{}, err
	}

	now := time.Now().UTC()

	held := make(map[string]broker.Position, len(positions))
	for _, position := range positions {
		held[position.Instrument] = position
	}

	var result Result

	for _, trade := range r.ledger.OpenTrades() {
		result.Checked++

		position, ok := held[trade.Instrument]
		if !ok {
			closed, closeErr := r.closeExternal(trade, now)
			if closeErr != nil {
				r.logger.Warn("failed to settle externally closed trade",
					zap.String("instrument", trade.Instrument),
					zap.Error(closeErr))

				continue
			}

			result.ExternalCloses = append(result.ExternalCloses, closed)

			continue
		}

		delete(held, trade.Instrument)

		if position.Side != trade.Side || position.Lots != trade.Lots {
			conflict := Conflict{
				Instrument: trade.Instrument,
				LocalSide:  trade.Side,
				LocalLots:  trade.Lots,
				BrokerSide: position.Side,
				BrokerLots: position.Lots,
			}
			result.Conflicts = append(result.Conflicts, conflict)

			r.logger.Error("ledger disagrees with broker, manual intervention required",
				zap.String("instrument", conflict.Instrument),
				zap.Error(errors.Newf(errors.ErrCodeReconcileConflict,
					"ledger holds %d lots %s, broker reports %d lots %s",
					conflict.LocalLots, conflict.LocalSide, conflict.BrokerLots, conflict.BrokerSide)))
		}
	}

	for _, instrument := range sortedInstruments(held) {
		position := held[instrument]

		if position.Lots < 1 {
			r.logger.Debug("ignoring dust position", zap.String("instrument", instrument))

			continue
		}

		adopted, adoptErr := r.adopt(ctx, position, now)
		if adoptErr != nil {
			r.logger.Warn("failed to adopt broker position",
				zap.String("instrument", instrument),
				zap.Error(adoptErr))

			continue
		}

		result.Adopted = append(result.Adopted, adopted)
	}

	return result, nil
}

// closeExternal settles a trade the broker no longer holds. The fill is
// the monitor's last mark, or the entry price if the trade was never
// marked.
func (r *Reconciler) closeExternal(trade types.Trade, at time.Time) (types.Trade, error) {
	price := trade.LastPrice
	if price <= 0 {
		price = trade.EntryPrice
	}

	restitution := r.rules.Settle(&trade, price, types.ExitReasonExternal, at)

	if err := r.ledger.SettleTrade(trade, restitution); err != nil {
		return types.Trade{}, err
	}

	if trade.RealizedPnL < 0 {
		losses := r.ledger.ConsecutiveLosses(trade.Instrument)
		if cooldown, ok := lifecycle.CooldownAfterLoss(trade.Instrument, losses, at); ok {
			r.ledger.StartCooldown(cooldown)
		}
	}

	r.recordTrade(trade)

	r.logger.Info("position was closed outside the engine",
		zap.String("instrument", trade.Instrument),
		zap.Float64("exitPrice", price),
		zap.Float64("realizedPnl", trade.RealizedPnL))

	return trade, nil
}

// adopt registers a broker position the ledger never opened. Adopted
// trades carry no protective levels, so only the holding time limit
// will close them; margin is estimated from the oracle at adoption.
func (r *Reconciler) adopt(ctx context.Context, position broker.Position, at time.Time) (types.Trade, error) {
	marginPerLot, err := r.oracle.MarginPerLot(ctx, position.Instrument, position.EntryPrice)
	if err != nil {
		return types.Trade{}, err
	}

	lastPrice := position.MarkPrice
	if lastPrice <= 0 {
		lastPrice = position.EntryPrice
	}

	trade, err := r.ledger.AdoptTrade(types.Trade{
		Instrument: position.Instrument,
		Side:       position.Side,
		EntryPrice: position.EntryPrice,
		EntryTime:  at,
		Lots:       position.Lots,
		LotSize:    r.lotSize(position.Instrument),
		MarginUsed: marginPerLot * float64(position.Lots),
		LastPrice:  lastPrice,
		Adopted:    true,
	})
	if err != nil {
		return types.Trade{}, err
	}

	r.recordTrade(trade)

	r.logger.Info("adopted broker position",
		zap.String("instrument", trade.Instrument),
		zap.String("side", string(trade.Side)),
		zap.Int("lots", trade.Lots),
		zap.Float64("entryPrice", trade.EntryPrice))

	return trade, nil
}

func (r *Reconciler) recordTrade(trade types.Trade) {
	if r.journal == nil {
		return
	}

	if err := r.journal.RecordTrade(trade); err != nil {
		r.logger.Warn("failed to journal reconciled trade",
			zap.String("tradeId", trade.ID),
			zap.Error(err))
	}
}

func (r *Reconciler) lotSize(instrument string) float64 {
	if size, ok := r.lotSizes[instrument]; ok && size > 0 {
		return size
	}

	return 1
}

func sortedInstruments(positions map[string]broker.Position) []string {
	instruments := make([]string, 0, len(positions))
	for instrument := range positions {
		instruments = append(instruments, instrument)
	}

	sort.Strings(instruments)

	return instruments
}
