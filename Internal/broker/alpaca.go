package broker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/coveport/tidebot/Internal/types"
)

// Alpaca adapts the Alpaca trading API to the Connector interface.
//
// Stops and targets are enforced engine-side: entries are plain market
// orders and the lifecycle manager closes at market when a level is hit,
// so ModifyPosition only needs local bookkeeping.
type Alpaca struct {
	client       *alpaca.Client
	apiKey       string
	secretKey    string
	dataBaseURL  string
	contractSize float64

	mu     sync.Mutex
	ledger map[string]ledgerEntry // ticket -> what we opened
}

type ledgerEntry struct {
	Symbol string
	Lot    float64
}

// NewAlpaca builds a connector from ALPACA_API_KEY / ALPACA_API_SECRET
func NewAlpaca(baseURL string, contractSize float64) *Alpaca {
	apiKey := os.Getenv("ALPACA_API_KEY")
	secretKey := os.Getenv("ALPACA_API_SECRET")
	if contractSize <= 0 {
		contractSize = 1
	}
	return &Alpaca{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: secretKey,
			BaseURL:   baseURL,
		}),
		apiKey:       apiKey,
		secretKey:    secretKey,
		dataBaseURL:  "https://data.alpaca.markets",
		contractSize: contractSize,
		ledger:       map[string]ledgerEntry{},
	}
}

func (a *Alpaca) Connect() error {
	_, err := a.client.GetAccount()
	return err
}

type alpacaBar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

// GetHistoricalData fetches recent bars for the symbol
func (a *Alpaca) GetHistoricalData(symbol, timeframe string, count int) ([]types.Candle, error) {
	tf, dur, err := alpacaTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	start := time.Now().UTC().Add(-dur * time.Duration(count+2)).Format(time.RFC3339)
	url := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=%s&limit=%d&start=%s",
		a.dataBaseURL, symbol, tf, count, start)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpaca bars: status %d", resp.StatusCode)
	}

	var body struct {
		Bars []alpacaBar `json:"bars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	out := make([]types.Candle, 0, len(body.Bars))
	for _, b := range body.Bars {
		out = append(out, types.Candle{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("alpaca bars: no data for %s %s", symbol, timeframe)
	}
	return out, nil
}

func alpacaTimeframe(tf string) (string, time.Duration, error) {
	switch tf {
	case "1m":
		return "1Min", time.Minute, nil
	case "5m":
		return "5Min", 5 * time.Minute, nil
	case "15m":
		return "15Min", 15 * time.Minute, nil
	case "30m":
		return "30Min", 30 * time.Minute, nil
	case "1h":
		return "1Hour", time.Hour, nil
	case "4h":
		return "4Hour", 4 * time.Hour, nil
	case "1d":
		return "1Day", 24 * time.Hour, nil
	}
	return "", 0, fmt.Errorf("unsupported timeframe %q", tf)
}

func (a *Alpaca) GetAccountInfo() (types.AccountInfo, error) {
	account, err := a.client.GetAccount()
	if err != nil {
		return types.AccountInfo{}, err
	}
	equity, _ := account.Equity.Float64()
	cash, _ := account.Cash.Float64()
	return types.AccountInfo{Equity: equity, Balance: cash, Currency: account.Currency}, nil
}

func (a *Alpaca) PlaceOrder(symbol string, dir types.Direction, lot, sl, tp float64, tag string) (*types.OrderFill, error) {
	side := alpaca.Buy
	if dir == types.DirectionShort {
		side = alpaca.Sell
	}

	qty := decimal.NewFromFloat(lot * a.contractSize)
	order, err := a.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: tag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s order for %s: %w", dir, symbol, err)
	}

	fillPrice := 0.0
	if order.FilledAvgPrice != nil {
		fillPrice, _ = order.FilledAvgPrice.Float64()
	}
	fillQty, _ := order.FilledQty.Float64()
	fillLot := fillQty / a.contractSize
	if fillLot <= 0 {
		fillLot = lot // order accepted but fill not yet reported
	}

	a.mu.Lock()
	a.ledger[order.ID] = ledgerEntry{Symbol: symbol, Lot: fillLot}
	a.mu.Unlock()

	return &types.OrderFill{Ticket: order.ID, FillPrice: fillPrice, FillVolume: fillLot}, nil
}

func (a *Alpaca) ClosePosition(ticket string, volume float64, comment string) error {
	a.mu.Lock()
	entry, ok := a.ledger[ticket]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown ticket %s", ticket)
	}

	qty := decimal.NewFromFloat(volume * a.contractSize)
	_, err := a.client.ClosePosition(entry.Symbol, alpaca.ClosePositionRequest{Qty: qty})
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", entry.Symbol, err)
	}

	a.mu.Lock()
	entry.Lot -= volume
	if entry.Lot <= 1e-9 {
		delete(a.ledger, ticket)
	} else {
		a.ledger[ticket] = entry
	}
	a.mu.Unlock()
	return nil
}

// ModifyPosition records the new levels; exits execute engine-side
func (a *Alpaca) ModifyPosition(ticket string, sl, tp float64) error {
	a.mu.Lock()
	_, ok := a.ledger[ticket]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown ticket %s", ticket)
	}
	return nil
}

func (a *Alpaca) GetAllOpenPositions() ([]OpenPosition, error) {
	positions, err := a.client.GetPositions()
	if err != nil {
		return nil, err
	}
	held := map[string]bool{}
	for _, p := range positions {
		held[p.Symbol] = true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]OpenPosition, 0, len(a.ledger))
	for ticket, entry := range a.ledger {
		if !held[entry.Symbol] {
			continue // closed broker-side without us
		}
		out = append(out, OpenPosition{
			Ticket: ticket,
			Symbol: entry.Symbol,
			Lot:    entry.Lot,
		})
	}
	return out, nil
}

func (a *Alpaca) CalculateProfit(symbol string, dir types.Direction, lot, openPrice, closePrice float64) float64 {
	diff := closePrice - openPrice
	if dir == types.DirectionShort {
		diff = -diff
	}
	return diff * lot * a.contractSize
}

func (a *Alpaca) Shutdown() {}
