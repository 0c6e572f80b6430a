package position

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/coveport/tidebot/Internal/broker"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
)

// stubConnector records close/modify calls and can be told to fail them
type stubConnector struct {
	failClose  bool
	failModify bool
	closes     []float64
	modifies   []float64
}

func (s *stubConnector) Connect() error { return nil }
func (s *stubConnector) GetHistoricalData(symbol, timeframe string, count int) ([]types.Candle, error) {
	return nil, nil
}
func (s *stubConnector) GetAccountInfo() (types.AccountInfo, error) {
	return types.AccountInfo{Equity: 10000, Balance: 10000, Currency: "USD"}, nil
}
func (s *stubConnector) PlaceOrder(symbol string, dir types.Direction, lot, sl, tp float64, tag string) (*types.OrderFill, error) {
	return &types.OrderFill{Ticket: "t-1", FillPrice: 0, FillVolume: lot}, nil
}
func (s *stubConnector) ClosePosition(ticket string, volume float64, comment string) error {
	if s.failClose {
		return errors.New("venue rejected close")
	}
	s.closes = append(s.closes, volume)
	return nil
}
func (s *stubConnector) ModifyPosition(ticket string, sl, tp float64) error {
	if s.failModify {
		return errors.New("venue rejected modify")
	}
	s.modifies = append(s.modifies, sl)
	return nil
}
func (s *stubConnector) GetAllOpenPositions() ([]broker.OpenPosition, error) { return nil, nil }
func (s *stubConnector) CalculateProfit(symbol string, dir types.Direction, lot, openPrice, closePrice float64) float64 {
	diff := closePrice - openPrice
	if dir == types.DirectionShort {
		diff = -diff
	}
	return diff * lot * 100000
}
func (s *stubConnector) Shutdown() {}

func lifecycleConfig() *config.Config {
	cfg := config.Default()
	cfg.Exits.ScoreExit = false // enabled per test
	return cfg
}

func openLong() *Position {
	return &Position{
		Ticket:         "t-1",
		Symbol:         "EURUSD",
		Direction:      types.DirectionLong,
		EntryPrice:     1.2000,
		EntryTime:      time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		LotSize:        1.0,
		InitialLot:     1.0,
		StopLoss:       1.1900,
		TakeProfit:     1.2300,
		InitialSLDist:  0.0100,
		InitialRiskUSD: 100,
		Status:         StatusOpen,
	}
}

// atrWindow gives the trailing-stop a stable ATR to work from
func atrWindow(n int, price, halfRange float64) []types.Candle {
	out := make([]types.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = types.Candle{Open: price, High: price + halfRange, Low: price - halfRange, Close: price}
	}
	return out
}

func tickAt(price float64, scores ...float64) TickInput {
	long, short := 10.0, 0.0
	if len(scores) == 2 {
		long, short = scores[0], scores[1]
	}
	return TickInput{
		Candle:     types.Candle{Open: price, High: price + 0.0001, Low: price - 0.0001, Close: price, Timestamp: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)},
		Window:     atrWindow(20, price, 0.0005),
		LongScore:  long,
		ShortScore: short,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPnlR_FromPrices(t *testing.T) {
	pos := openLong()
	if r := pos.PnlR(1.2100); !approx(r, 1.0) {
		t.Errorf("PnlR at +1 distance = %f, want 1.0", r)
	}
	if r := pos.PnlR(1.1900); !approx(r, -1.0) {
		t.Errorf("PnlR at the stop = %f, want -1.0", r)
	}

	short := openLong()
	short.Direction = types.DirectionShort
	if r := short.PnlR(1.1900); !approx(r, 1.0) {
		t.Errorf("short PnlR below entry = %f, want 1.0", r)
	}
}

func TestUpdatePeak_Monotonic(t *testing.T) {
	pos := openLong()
	pos.UpdatePeak(1.2150)
	if !approx(pos.PeakPnlR, 1.5) {
		t.Fatalf("peak = %f, want 1.5", pos.PeakPnlR)
	}
	peak := pos.PeakPnlR
	pos.UpdatePeak(1.2050)
	if pos.PeakPnlR != peak {
		t.Errorf("peak decreased to %f after a pullback", pos.PeakPnlR)
	}
}

func TestManageTick_StopBeforeTarget(t *testing.T) {
	conn := &stubConnector{}
	m := NewManager(lifecycleConfig(), conn)
	pos := openLong()

	// a single wide candle trades through both levels
	in := tickAt(1.2000)
	in.Candle.High = 1.2400
	in.Candle.Low = 1.1800

	trades, err := m.ManageTick(pos, in)
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 close record, got %d", len(trades))
	}
	if trades[0].Reason != "Stop Loss" {
		t.Errorf("Reason = %q, want Stop Loss when both levels are touched", trades[0].Reason)
	}
	if trades[0].ExitPrice != pos.StopLoss {
		t.Errorf("exit price %f, want the stop level %f", trades[0].ExitPrice, pos.StopLoss)
	}
	if pos.Status != StatusClosed || pos.LotSize != 0 {
		t.Errorf("position should be fully closed, got status %s lot %f", pos.Status, pos.LotSize)
	}
}

func TestManageTick_TargetFill(t *testing.T) {
	conn := &stubConnector{}
	m := NewManager(lifecycleConfig(), conn)
	pos := openLong()

	in := tickAt(1.2290)
	in.Candle.High = 1.2305

	trades, err := m.ManageTick(pos, in)
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 1 || trades[0].Reason != "Take Profit" {
		t.Fatalf("expected a Take Profit close, got %+v", trades)
	}
	if trades[0].ExitPrice != 1.2300 {
		t.Errorf("take profit fills at the level, got %f", trades[0].ExitPrice)
	}
	if !approx(trades[0].PnlR, 3.0) {
		t.Errorf("PnlR at target = %f, want 3.0", trades[0].PnlR)
	}
}

func TestManageTick_ScoreDecayExit(t *testing.T) {
	cfg := lifecycleConfig()
	cfg.Exits.ScoreExit = true // level 2.0, 100%
	conn := &stubConnector{}
	m := NewManager(cfg, conn)
	pos := openLong()

	trades, err := m.ManageTick(pos, tickAt(1.2050, 1.5, 0))
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 1 || trades[0].Reason != "Score Exit" {
		t.Fatalf("expected a Score Exit close, got %+v", trades)
	}
	if pos.Status != StatusClosed {
		t.Errorf("full score exit should close the position, status %s", pos.Status)
	}
}

func TestManageTick_ScoreDecayWatchesOwnSide(t *testing.T) {
	cfg := lifecycleConfig()
	cfg.Exits.ScoreExit = true
	cfg.Exits.TP1Enabled = false
	cfg.Exits.TSLEnabled = false
	conn := &stubConnector{}
	m := NewManager(cfg, conn)

	pos := openLong()
	pos.Direction = types.DirectionShort
	pos.StopLoss = 1.2100
	pos.TakeProfit = 1.1700

	// long side decayed, but this is a short: its own side is still strong
	trades, err := m.ManageTick(pos, tickAt(1.1950, 0.5, 8.0))
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("short position must not exit on long-side decay")
	}
}

func TestManageTick_TP1PartialAndBreakeven(t *testing.T) {
	conn := &stubConnector{}
	m := NewManager(lifecycleConfig(), conn)
	pos := openLong()

	trades, err := m.ManageTick(pos, tickAt(1.2100)) // exactly 1R
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 1 || trades[0].Reason != "TP1" {
		t.Fatalf("expected a TP1 partial, got %+v", trades)
	}
	if trades[0].Lot != 0.5 {
		t.Errorf("TP1 closed lot = %f, want half the initial lot", trades[0].Lot)
	}
	if !pos.TP1Hit {
		t.Errorf("TP1Hit flag not set")
	}
	if pos.Status != StatusPartial || pos.LotSize != 0.5 {
		t.Errorf("position after TP1 = (%s, %f), want (PARTIAL, 0.5)", pos.Status, pos.LotSize)
	}
	if pos.StopLoss != pos.EntryPrice {
		t.Errorf("breakeven stop = %f, want entry %f", pos.StopLoss, pos.EntryPrice)
	}

	// second pass at the same price must not fire TP1 again
	trades, err = m.ManageTick(pos, tickAt(1.2100))
	if err != nil {
		t.Fatalf("second tick error: %v", err)
	}
	for _, ct := range trades {
		if ct.Reason == "TP1" {
			t.Errorf("TP1 fired twice")
		}
	}
}

func TestManageTick_ScoreDecayFiresOncePerPosition(t *testing.T) {
	cfg := lifecycleConfig()
	cfg.Exits.ScoreExit = true
	cfg.Exits.ScoreExitPct = 50
	cfg.Exits.TP1Enabled = false
	cfg.Exits.TSLEnabled = false
	conn := &stubConnector{}
	m := NewManager(cfg, conn)
	pos := openLong()

	trades, err := m.ManageTick(pos, tickAt(1.2050, 1.5, 0))
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 1 || trades[0].Reason != "Score Exit" || trades[0].Lot != 0.5 {
		t.Fatalf("expected a half-lot Score Exit, got %+v", trades)
	}
	if !pos.ScoreExited {
		t.Errorf("ScoreExited flag not set")
	}
	if pos.Status != StatusPartial || pos.LotSize != 0.5 {
		t.Errorf("position after score exit = (%s, %f), want (PARTIAL, 0.5)", pos.Status, pos.LotSize)
	}

	// the score stays low: the exit must not shave the lot again
	for i := 0; i < 3; i++ {
		trades, err = m.ManageTick(pos, tickAt(1.2050, 1.5, 0))
		if err != nil {
			t.Fatalf("tick %d error: %v", i+2, err)
		}
		for _, ct := range trades {
			if ct.Reason == "Score Exit" {
				t.Fatalf("score exit fired again on tick %d", i+2)
			}
		}
	}
	if pos.LotSize != 0.5 {
		t.Errorf("lot shaved to %f by repeated score exits", pos.LotSize)
	}
}

func TestManageTick_BreakevenNeverLoosensRatchetedStop(t *testing.T) {
	conn := &stubConnector{}
	m := NewManager(lifecycleConfig(), conn)
	pos := openLong()

	// below the TP1 trigger, so only the trailing stop acts:
	// candidate = 1.2050 - 0.002 = 1.2030, above entry
	if _, err := m.ManageTick(pos, tickAt(1.2050)); err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if !approx(pos.StopLoss, 1.2030) {
		t.Fatalf("trailed stop = %f, want 1.2030", pos.StopLoss)
	}

	// TP1 fires at 1R; its breakeven move must not pull the stop back to entry
	trades, err := m.ManageTick(pos, tickAt(1.2100))
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 1 || trades[0].Reason != "TP1" {
		t.Fatalf("expected a TP1 partial, got %+v", trades)
	}
	if !approx(pos.StopLoss, 1.2030) {
		t.Errorf("stop loosened to %f after TP1, ratchet was 1.2030", pos.StopLoss)
	}
	if len(conn.modifies) != 1 {
		t.Errorf("expected only the ratchet modify, got %v", conn.modifies)
	}
}

func TestManageTick_PaperCloseFillsAtStopLevel(t *testing.T) {
	paper := broker.NewPaper(10000, 100000)
	paper.Append("15m", types.Candle{Close: 1.2000})
	fill, err := paper.PlaceOrder("EURUSD", types.DirectionLong, 1.0, 1.1900, 1.2300, "test")
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	m := NewManager(lifecycleConfig(), paper)
	pos := openLong()
	pos.Ticket = fill.Ticket

	// the candle gaps through the stop and closes well below it
	paper.Append("15m", types.Candle{Close: 1.1850})
	in := tickAt(1.1850)

	trades, err := m.ManageTick(pos, in)
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 1 || trades[0].Reason != "Stop Loss" || trades[0].ExitPrice != 1.1900 {
		t.Fatalf("expected a Stop Loss fill at 1.1900, got %+v", trades)
	}
	// the simulated balance must book the same price the record shows:
	// (1.19 - 1.20) * 1.0 * 100000, not the 1.1850 candle close
	if got := paper.Balance(); !approx(got, 9000) {
		t.Errorf("paper balance = %f, want 9000", got)
	}
}

func TestManageTick_ProfitProtection(t *testing.T) {
	cfg := lifecycleConfig()
	cfg.Exits.TP1Enabled = false // isolate the protection path
	cfg.Exits.TSLEnabled = false
	conn := &stubConnector{}
	m := NewManager(cfg, conn)
	pos := openLong()

	// run the peak up to 1.5R, then retrace to 1.0R (drop 0.5 >= 0.4)
	if trades, err := m.ManageTick(pos, tickAt(1.2150)); err != nil || len(trades) != 0 {
		t.Fatalf("peak tick should be quiet, got %v %v", trades, err)
	}
	if !approx(pos.PeakPnlR, 1.5) {
		t.Fatalf("peak = %f, want 1.5", pos.PeakPnlR)
	}

	trades, err := m.ManageTick(pos, tickAt(1.2100))
	if err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if len(trades) != 1 || trades[0].Reason != "Profit Protection" {
		t.Fatalf("expected Profit Protection, got %+v", trades)
	}
	if !pos.ProfitProtected {
		t.Errorf("ProfitProtected flag not set")
	}
	if pos.StopLoss != pos.EntryPrice {
		t.Errorf("protection should move the stop to breakeven, got %f", pos.StopLoss)
	}

	// retracing further must not trigger protection a second time
	trades, err = m.ManageTick(pos, tickAt(1.2080))
	if err != nil {
		t.Fatalf("second tick error: %v", err)
	}
	for _, ct := range trades {
		if ct.Reason == "Profit Protection" {
			t.Errorf("protection fired twice")
		}
	}
}

func TestManageTick_TrailingStopRatchet(t *testing.T) {
	cfg := lifecycleConfig()
	cfg.Exits.TP1Enabled = false
	cfg.Exits.PPEnabled = false
	conn := &stubConnector{}
	m := NewManager(cfg, conn)
	pos := openLong()

	// ATR 0.001, TSL mult 2.0: candidate = close - 0.002
	in := tickAt(1.2100)
	if _, err := m.ManageTick(pos, in); err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	want := 1.2100 - 0.002
	if pos.StopLoss < want-1e-9 || pos.StopLoss > want+1e-9 {
		t.Fatalf("trailed stop = %f, want %f", pos.StopLoss, want)
	}
	ratcheted := pos.StopLoss

	// price falls back: the stop must not loosen
	if _, err := m.ManageTick(pos, tickAt(1.2090)); err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if pos.StopLoss != ratcheted {
		t.Errorf("stop loosened from %f to %f", ratcheted, pos.StopLoss)
	}

	// price barely above entry: candidate below entry is ignored
	fresh := openLong()
	if _, err := m.ManageTick(fresh, tickAt(1.2010)); err != nil {
		t.Fatalf("ManageTick error: %v", err)
	}
	if fresh.StopLoss != 1.1900 {
		t.Errorf("stop moved to %f although the candidate sat below entry", fresh.StopLoss)
	}
}

func TestManageTick_ConnectorFailureLeavesStateUntouched(t *testing.T) {
	conn := &stubConnector{failClose: true}
	m := NewManager(lifecycleConfig(), conn)
	pos := openLong()

	in := tickAt(1.2000)
	in.Candle.Low = 1.1850 // stop hit

	trades, err := m.ManageTick(pos, in)
	if err == nil {
		t.Fatalf("expected the connector error to surface")
	}
	if len(trades) != 0 {
		t.Errorf("no history records on a failed close")
	}
	if pos.Status != StatusOpen || pos.LotSize != 1.0 {
		t.Errorf("failed close mutated the position: status %s lot %f", pos.Status, pos.LotSize)
	}
}

func TestCloseAll_ForcedLiquidation(t *testing.T) {
	conn := &stubConnector{}
	m := NewManager(lifecycleConfig(), conn)
	pos := openLong()

	ct, err := m.CloseAll(pos, 1.2050, time.Now().UTC(), "End of Data")
	if err != nil {
		t.Fatalf("CloseAll error: %v", err)
	}
	if ct.Reason != "End of Data" || ct.Lot != 1.0 {
		t.Errorf("forced close record = %+v", ct)
	}
	if pos.Status != StatusClosed {
		t.Errorf("position status = %s, want CLOSED", pos.Status)
	}
}
