package broker

import (
	"math"
	"testing"

	"github.com/coveport/tidebot/Internal/types"
)

func TestPaper_AppendMovesMarkAndServesWindows(t *testing.T) {
	p := NewPaper(10000, 100000)
	for i := 0; i < 5; i++ {
		p.Append("15m", types.Candle{Close: 1.2 + float64(i)*0.001})
	}

	window, err := p.GetHistoricalData("EURUSD", "15m", 3)
	if err != nil {
		t.Fatalf("GetHistoricalData error: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("window = %d candles, want the trailing 3", len(window))
	}
	if window[2].Close != 1.204 {
		t.Errorf("latest close = %f, want 1.204", window[2].Close)
	}

	// asking for more than exists returns everything
	all, _ := p.GetHistoricalData("EURUSD", "15m", 50)
	if len(all) != 5 {
		t.Errorf("oversized request returned %d candles", len(all))
	}

	if _, err := p.GetHistoricalData("EURUSD", "1h", 10); err == nil {
		t.Errorf("empty timeframe must error")
	}
}

func TestPaper_OrderLifecycleBooksProfit(t *testing.T) {
	p := NewPaper(10000, 100000)
	p.Append("15m", types.Candle{Close: 1.2000})

	fill, err := p.PlaceOrder("EURUSD", types.DirectionLong, 0.5, 1.19, 1.23, "test")
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if fill.FillPrice != 1.2000 || fill.FillVolume != 0.5 {
		t.Errorf("fill = %+v, want mark price and full volume", fill)
	}

	open, _ := p.GetAllOpenPositions()
	if len(open) != 1 {
		t.Fatalf("open positions = %d, want 1", len(open))
	}

	// price moves up 10 pips, close half
	p.Append("15m", types.Candle{Close: 1.2010})
	if err := p.ClosePosition(fill.Ticket, 0.25, "partial"); err != nil {
		t.Fatalf("ClosePosition error: %v", err)
	}
	// 0.0010 * 0.25 * 100000 = 25
	if got := p.Balance(); math.Abs(got-10025) > 1e-6 {
		t.Errorf("balance = %f, want 10025", got)
	}

	open, _ = p.GetAllOpenPositions()
	if len(open) != 1 || math.Abs(open[0].Lot-0.25) > 1e-9 {
		t.Errorf("remaining lot = %+v, want 0.25", open)
	}

	// close the rest; the ticket disappears
	if err := p.ClosePosition(fill.Ticket, 1.0, "rest"); err != nil {
		t.Fatalf("ClosePosition error: %v", err)
	}
	open, _ = p.GetAllOpenPositions()
	if len(open) != 0 {
		t.Errorf("position should be gone after the full close")
	}
	if err := p.ClosePosition(fill.Ticket, 0.1, "again"); err == nil {
		t.Errorf("closing a dead ticket must error")
	}
}

func TestPaper_ShortProfitSign(t *testing.T) {
	p := NewPaper(1000, 100000)
	if got := p.CalculateProfit("EURUSD", types.DirectionShort, 0.1, 1.2000, 1.1950); math.Abs(got-50) > 1e-6 {
		t.Errorf("short profit = %f, want +50 when price falls", got)
	}
	if got := p.CalculateProfit("EURUSD", types.DirectionLong, 0.1, 1.2000, 1.1950); math.Abs(got+50) > 1e-6 {
		t.Errorf("long profit = %f, want -50 when price falls", got)
	}
}

func TestPaper_RejectsInvalidLot(t *testing.T) {
	p := NewPaper(1000, 100000)
	p.Append("15m", types.Candle{Close: 1.2})
	if _, err := p.PlaceOrder("EURUSD", types.DirectionLong, 0, 0, 0, ""); err == nil {
		t.Errorf("zero lot must be rejected")
	}
}
