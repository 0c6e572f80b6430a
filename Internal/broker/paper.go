package broker

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/coveport/tidebot/Internal/types"
)

// Paper is an in-memory connector used by the historical simulator.
// Orders fill immediately at the current mark price.
type Paper struct {
	mu           sync.Mutex
	balance      float64
	contractSize float64
	mark         float64
	series       map[string][]types.Candle // timeframe -> full feed so far
	positions    map[string]*OpenPosition
}

// NewPaper creates a paper connector with a starting balance. contractSize
// converts lots to units for profit calculation (100000 for a standard FX
// lot).
func NewPaper(balance, contractSize float64) *Paper {
	if contractSize <= 0 {
		contractSize = 100000
	}
	return &Paper{
		balance:      balance,
		contractSize: contractSize,
		series:       map[string][]types.Candle{},
		positions:    map[string]*OpenPosition{},
	}
}

// Append feeds one more candle into a timeframe series and moves the mark
// price to its close
func (p *Paper) Append(timeframe string, c types.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[timeframe] = append(p.series[timeframe], c)
	p.mark = c.Close
}

func (p *Paper) Connect() error { return nil }

func (p *Paper) GetHistoricalData(symbol, timeframe string, count int) ([]types.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	feed := p.series[timeframe]
	if len(feed) == 0 {
		return nil, fmt.Errorf("paper: no candles for timeframe %s", timeframe)
	}
	start := len(feed) - count
	if start < 0 {
		start = 0
	}
	out := make([]types.Candle, len(feed)-start)
	copy(out, feed[start:])
	return out, nil
}

func (p *Paper) GetAccountInfo() (types.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.AccountInfo{Equity: p.balance, Balance: p.balance, Currency: "USD"}, nil
}

func (p *Paper) PlaceOrder(symbol string, dir types.Direction, lot, sl, tp float64, tag string) (*types.OrderFill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lot <= 0 {
		return nil, fmt.Errorf("paper: invalid lot %.4f", lot)
	}
	ticket := uuid.NewString()
	p.positions[ticket] = &OpenPosition{
		Ticket:    ticket,
		Symbol:    symbol,
		Direction: dir,
		Lot:       lot,
		OpenPrice: p.mark,
	}
	return &types.OrderFill{Ticket: ticket, FillPrice: p.mark, FillVolume: lot}, nil
}

func (p *Paper) ClosePosition(ticket string, volume float64, comment string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return fmt.Errorf("paper: unknown ticket %s", ticket)
	}
	if volume > pos.Lot {
		volume = pos.Lot
	}
	p.balance += p.profit(pos.Direction, volume, pos.OpenPrice, p.mark)
	pos.Lot -= volume
	if pos.Lot <= 1e-9 {
		delete(p.positions, ticket)
	}
	return nil
}

func (p *Paper) ModifyPosition(ticket string, sl, tp float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.positions[ticket]; !ok {
		return fmt.Errorf("paper: unknown ticket %s", ticket)
	}
	return nil
}

func (p *Paper) GetAllOpenPositions() ([]OpenPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OpenPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *Paper) CalculateProfit(symbol string, dir types.Direction, lot, openPrice, closePrice float64) float64 {
	return p.profit(dir, lot, openPrice, closePrice)
}

func (p *Paper) profit(dir types.Direction, lot, openPrice, closePrice float64) float64 {
	diff := closePrice - openPrice
	if dir == types.DirectionShort {
		diff = -diff
	}
	return diff * lot * p.contractSize
}

// Balance returns the current simulated account balance
func (p *Paper) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

// SetMark overrides the mark price, used when closing at an exact SL/TP
// level instead of a candle close
func (p *Paper) SetMark(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mark = price
}

func (p *Paper) Shutdown() {}
