package broker

import (
	"github.com/coveport/tidebot/Internal/types"
)

// OpenPosition is the connector-side view of a live position
type OpenPosition struct {
	Ticket    string
	Symbol    string
	Direction types.Direction
	Lot       float64
	OpenPrice float64
}

// Connector is the boundary to the trading venue. The engine never assumes
// an order, modify or close succeeded without the connector confirming it.
type Connector interface {
	Connect() error
	GetHistoricalData(symbol, timeframe string, count int) ([]types.Candle, error)
	GetAccountInfo() (types.AccountInfo, error)
	PlaceOrder(symbol string, dir types.Direction, lot, sl, tp float64, tag string) (*types.OrderFill, error)
	ClosePosition(ticket string, volume float64, comment string) error
	ModifyPosition(ticket string, sl, tp float64) error
	GetAllOpenPositions() ([]OpenPosition, error)
	CalculateProfit(symbol string, dir types.Direction, lot, openPrice, closePrice float64) float64
	Shutdown()
}
