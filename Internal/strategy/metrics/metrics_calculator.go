package metrics

import (
	"fmt"
	"math"

	"github.com/coveport/tidebot/Internal/strategy/position"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/formatting"
)

// SideStats breaks performance down for one direction
type SideStats struct {
	Trades    int
	Wins      int
	ProfitUSD float64
}

// Report summarizes a finished run
type Report struct {
	InitialBalance float64
	FinalBalance   float64
	TotalTrades    int
	Wins           int
	Losses         int
	WinRate        float64
	ProfitFactor   float64
	AvgRR          float64
	MaxDrawdownPct float64
	Long           SideStats
	Short          SideStats
}

// BuildReport folds a closed-trade history into summary statistics.
// Partial closes count as separate records, matching the journal.
func BuildReport(trades []position.ClosedTrade, initialBalance float64) Report {
	r := Report{InitialBalance: initialBalance}

	grossProfit, grossLoss := 0.0, 0.0
	rrSum := 0.0
	equity := initialBalance
	peak := initialBalance

	for _, t := range trades {
		r.TotalTrades++
		if t.ProfitUSD > 0 {
			r.Wins++
			grossProfit += t.ProfitUSD
		} else {
			r.Losses++
			grossLoss += -t.ProfitUSD
		}
		rrSum += t.PnlR

		side := &r.Long
		if t.Direction == types.DirectionShort {
			side = &r.Short
		}
		side.Trades++
		side.ProfitUSD += t.ProfitUSD
		if t.ProfitUSD > 0 {
			side.Wins++
		}

		equity += t.ProfitUSD
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak * 100
			if dd > r.MaxDrawdownPct {
				r.MaxDrawdownPct = dd
			}
		}
	}

	r.FinalBalance = equity
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.TotalTrades) * 100
		r.AvgRR = rrSum / float64(r.TotalTrades)
	}
	if grossLoss > 0 {
		r.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		r.ProfitFactor = math.Inf(1)
	}
	return r
}

// Print writes the formatted summary report
func (r Report) Print() {
	width := 60
	fmt.Println("\n" + formatting.Separator(width))
	fmt.Println("📊 BACKTEST SUMMARY")
	fmt.Println(formatting.Separator(width))
	fmt.Printf("Initial Balance:   %s\n", formatting.Money(r.InitialBalance))
	fmt.Printf("Final Balance:     %s\n", formatting.Money(r.FinalBalance))
	fmt.Printf("Net P&L:           %s\n", formatting.Money(r.FinalBalance-r.InitialBalance))
	fmt.Printf("Trades:            %d (%d wins / %d losses)\n", r.TotalTrades, r.Wins, r.Losses)
	fmt.Printf("Win Rate:          %s\n", formatting.Percent(r.WinRate))
	if math.IsInf(r.ProfitFactor, 1) {
		fmt.Println("Profit Factor:     inf")
	} else {
		fmt.Printf("Profit Factor:     %.2f\n", r.ProfitFactor)
	}
	fmt.Printf("Average R:R:       %.2f\n", r.AvgRR)
	fmt.Printf("Max Drawdown:      %s\n", formatting.Percent(r.MaxDrawdownPct))
	fmt.Printf("Long:              %d trades, %d wins, %s\n", r.Long.Trades, r.Long.Wins, formatting.Money(r.Long.ProfitUSD))
	fmt.Printf("Short:             %d trades, %d wins, %s\n", r.Short.Trades, r.Short.Wins, formatting.Money(r.Short.ProfitUSD))
	fmt.Println(formatting.Separator(width))
}
