package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coveport/tidebot/Internal/engine"
	"github.com/coveport/tidebot/Internal/types"
	"github.com/coveport/tidebot/Internal/utils/config"
	"github.com/coveport/tidebot/Internal/utils/formatting"
)

func main() {
	csvPath := flag.String("candles", "", "path to OHLCV csv file")
	cfgPath := flag.String("config", "config.yaml", "path to strategy config")
	balance := flag.Float64("balance", 10000, "starting balance in USD")
	contract := flag.Float64("contract", 100000, "units per 1.0 lot")
	verbose := flag.Bool("trades", false, "print every closed trade")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("❌ -candles is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	candles, err := loadCSV(*csvPath)
	if err != nil {
		log.Fatalf("❌ Candle load failed: %v", err)
	}
	log.Printf("📂 Loaded %d candles from %s", len(candles), *csvPath)

	result, err := engine.RunBacktest(cfg, candles, *balance, *contract)
	if err != nil {
		log.Fatalf("❌ Backtest failed: %v", err)
	}

	result.Report.Print()

	if *verbose {
		fmt.Println(formatting.Separator(70))
		for _, t := range result.Trades {
			fmt.Printf("%s  %-5s  entry %.5f  exit %.5f  %s  %+.2fR  %s\n",
				t.ExitTime.Format("2006-01-02 15:04"),
				t.Direction,
				t.EntryPrice, t.ExitPrice,
				formatting.Money(t.ProfitUSD), t.PnlR, t.Reason)
		}
	}
}

// loadCSV reads an OHLCV file with a header row. Column order is free,
// timestamps may be RFC3339 or UNIX seconds. Rows that fail to parse
// are skipped.
func loadCSV(path string) ([]types.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []types.Candle
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := first(row, "time", "timestamp", "date")
		op := first(row, "open")
		hp := first(row, "high")
		lp := first(row, "low")
		cp := first(row, "close")
		vp := first(row, "volume", "vol", "tick_volume")
		if ts == "" || op == "" || cp == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}
		o, _ := strconv.ParseFloat(op, 64)
		h, _ := strconv.ParseFloat(hp, 64)
		l, _ := strconv.ParseFloat(lp, 64)
		c, _ := strconv.ParseFloat(cp, 64)
		v, _ := strconv.ParseFloat(vp, 64)
		out = append(out, types.Candle{Timestamp: tt, Open: o, High: h, Low: l, Close: c, Volume: v})
		rowIdx++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// parseTimeFlexible supports RFC3339 or UNIX seconds.
func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ts.UTC(), nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
