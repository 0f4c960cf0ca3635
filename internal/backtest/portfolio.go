package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backtester/internal/domain"
)

// quantityPlaces is the number of decimal places kept when sizing a
// position. The division remainder stays in cash so capital is conserved
// exactly.
const quantityPlaces = 16

// State is the portfolio's position state.
type State int

const (
	Flat State = iota
	InPosition
)

func (s State) String() string {
	if s == InPosition {
		return "in_position"
	}
	return "flat"
}

// Portfolio holds cash, at most one open position and the closed trades of
// a single run. It is not safe for concurrent use.
type Portfolio struct {
	cash     decimal.Decimal
	position *domain.Position
	trades   []domain.Trade
}

// NewPortfolio starts a flat portfolio holding capital in cash.
func NewPortfolio(capital decimal.Decimal) *Portfolio {
	return &Portfolio{cash: capital}
}

// State reports whether a position is open.
func (p *Portfolio) State() State {
	if p.position != nil {
		return InPosition
	}
	return Flat
}

// Cash is the uninvested balance.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// Position returns the open position, or nil when flat.
func (p *Portfolio) Position() *domain.Position { return p.position }

// Trades returns the closed trades in close order.
func (p *Portfolio) Trades() []domain.Trade { return p.trades }

// Apply executes sig at candle's close. BUY while flat opens a position with
// all cash; SELL while in position closes it. Every other combination is
// ignored. It reports whether the state changed.
func (p *Portfolio) Apply(sig domain.Signal, candle domain.Candle) (bool, error) {
	switch {
	case sig.Side == domain.SideBuy && p.position == nil:
		return true, p.open(candle)
	case sig.Side == domain.SideSell && p.position != nil:
		p.close(candle)
		return true, nil
	}
	return false, nil
}

// ForceClose closes any open position at candle's close.
func (p *Portfolio) ForceClose(candle domain.Candle) bool {
	if p.position == nil {
		return false
	}
	p.close(candle)
	return true
}

func (p *Portfolio) open(candle domain.Candle) error {
	if !candle.Close.IsPositive() {
		return fmt.Errorf("BUY at %d close %s: %w", candle.Timestamp, candle.Close, ErrInvalidPrice)
	}
	qty, rem := p.cash.QuoRem(candle.Close, quantityPlaces)
	p.position = &domain.Position{
		Symbol:     candle.Symbol,
		Quantity:   qty,
		EntryPrice: candle.Close,
		EntryTime:  candle.Timestamp,
	}
	p.cash = rem
	return nil
}

func (p *Portfolio) close(candle domain.Candle) {
	t := p.position.Close(candle.Close, candle.Timestamp)
	p.cash = p.cash.Add(t.Quantity.Mul(t.ExitPrice))
	p.trades = append(p.trades, t)
	p.position = nil
}
