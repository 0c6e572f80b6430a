package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/coveport/tidebot/Internal/broker"
	"github.com/coveport/tidebot/Internal/database"
	"github.com/coveport/tidebot/Internal/engine"
	"github.com/coveport/tidebot/Internal/logging"
	"github.com/coveport/tidebot/Internal/state"
	"github.com/coveport/tidebot/Internal/telemetry"
	"github.com/coveport/tidebot/Internal/utils/config"
	"github.com/coveport/tidebot/Internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment directly")
	}

	logging.Setup(os.Getenv("LOG_PATH"))

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	log.Printf("✅ Config loaded: %s %s (trend %s)", cfg.Symbol, cfg.Timeframe, cfg.TrendTimeframe)

	baseURL := os.Getenv("ALPACA_BASE_URL")
	if baseURL == "" {
		baseURL = "https://paper-api.alpaca.markets"
	}
	contractSize := 1.0
	if raw := os.Getenv("CONTRACT_SIZE"); raw != "" {
		contractSize, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Fatalf("❌ Invalid CONTRACT_SIZE %q: %v", raw, err)
		}
	}

	connector := broker.NewAlpaca(baseURL, contractSize)
	if err := connector.Connect(); err != nil {
		log.Fatalf("❌ Broker connection failed: %v", err)
	}
	defer connector.Shutdown()

	eng := engine.New(cfg, connector)
	eng.SetMetrics(telemetry.New())

	store := state.New(cfg.Engine.StatePath)
	eng.SetStore(store)
	eng.Restore(store.Load())

	if os.Getenv("DB_PASSWORD") != "" {
		journal, err := database.Open()
		if err != nil {
			log.Fatalf("❌ Trade journal error: %v", err)
		}
		defer journal.Close()
		eng.SetJournal(journal)
		log.Println("✅ Trade journal connected")
	} else {
		log.Println("⚠️  DB_PASSWORD not set, trade journal disabled")
	}

	account, err := connector.GetAccountInfo()
	if err != nil {
		log.Fatalf("❌ Account lookup failed: %v", err)
	}
	log.Printf("💰 Account equity: $%.2f", account.Equity)

	apiAddr := os.Getenv("API_ADDR")
	if apiAddr == "" {
		apiAddr = ":8090"
	}
	srv := web.NewServer(eng, account.Equity)
	go func() {
		if err := srv.ListenAndServe(apiAddr); err != nil {
			log.Printf("⚠️  Status API stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.RunLive(ctx, eng, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("❌ Trading loop failed: %v", err)
	}
	log.Println("👋 Shutdown complete")
}
