package database

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/coveport/tidebot/Internal/strategy/position"
)

// Journal writes closed trades to Postgres. Optional: the live bot runs
// fine without a database configured.
type Journal struct {
	db *sql.DB
}

type connConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Open connects using DB_* environment variables and ensures the schema
// exists
func Open() (*Journal, error) {
	cfg := connConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"), // Required - no default
		DBName:   getEnvOrDefault("DB_NAME", "tidebot"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initializeSchema(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) initializeSchema() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS closed_trades (
		id SERIAL PRIMARY KEY,
		ticket TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		lot DOUBLE PRECISION NOT NULL,
		profit_usd DOUBLE PRECISION NOT NULL,
		pnl_r DOUBLE PRECISION NOT NULL,
		reason TEXT,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL
	);`

	if _, err := j.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// LogTrade inserts one closed-trade record
func (j *Journal) LogTrade(t position.ClosedTrade) error {
	_, err := j.db.Exec(`
		INSERT INTO closed_trades
			(ticket, symbol, direction, entry_price, exit_price, lot, profit_usd, pnl_r, reason, entry_time, exit_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.Ticket, t.Symbol, string(t.Direction), t.EntryPrice, t.ExitPrice,
		t.Lot, t.ProfitUSD, t.PnlR, t.Reason, t.EntryTime, t.ExitTime)
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

// Close releases the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
