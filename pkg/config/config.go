package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the scalping core.
type Config struct {
	Port string

	// Bybit
	BybitTestnet   bool
	BybitAPIKey    string
	BybitAPISecret string

	// Universe file (symbols + scanner tuning)
	UniversePath string

	// Risk parameters (initial values; replaceable at runtime via the admin API)
	DayLossLimitUSD    float64
	DayProfitTargetPct float64
	RiskPerTrade       float64
	MaxActiveSymbols   int
	MaxSlippageBps     int
	DefaultTPBps       int
	DefaultSLBps       int
	TrailingSLBps      int
	MaxHoldingTime     time.Duration

	// Dust policy: a held value below SellDustUSD is never sold, a held value
	// below TopUpDustUSD still qualifies for a top-up buy.
	TopUpDustUSD float64
	SellDustUSD  float64

	// Router timing
	TradeCooldown time.Duration
	LockGrace     time.Duration

	// Poll intervals
	ScannerInterval time.Duration
	MonitorInterval time.Duration
	BalanceInterval time.Duration
	HistoryInterval time.Duration

	// Persistence
	DBPath string

	// Auth
	JWTSecret     string
	JWTExpiry     time.Duration
	AdminUser     string
	AdminPassHash string

	// Logging
	LogPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8000"),
		BybitTestnet:   getEnv("BYBIT_TESTNET", "true") == "true",
		BybitAPIKey:    os.Getenv("BYBIT_API_KEY"),
		BybitAPISecret: os.Getenv("BYBIT_API_SECRET"),
		UniversePath:   getEnv("UNIVERSE_PATH", "universe.yaml"),

		DayLossLimitUSD:    getEnvFloat("DAY_LOSS_LIMIT_USD", 200.0),
		DayProfitTargetPct: getEnvFloat("DAY_PROFIT_TARGET_PCT", 1.0),
		RiskPerTrade:       getEnvFloat("RISK_PER_TRADE", 0.95),
		MaxActiveSymbols:   getEnvInt("MAX_ACTIVE_SYMBOLS", 5),
		MaxSlippageBps:     getEnvInt("MAX_SLIPPAGE_BPS", 100),
		DefaultTPBps:       getEnvInt("DEFAULT_TP_BPS", 50),
		DefaultSLBps:       getEnvInt("DEFAULT_SL_BPS", 25),
		TrailingSLBps:      getEnvInt("TRAILING_SL_BPS", 30),
		MaxHoldingTime:     getEnvSeconds("MAX_HOLDING_TIME_SECONDS", 300),

		TopUpDustUSD: getEnvFloat("TOPUP_DUST_USD", 10.0),
		SellDustUSD:  getEnvFloat("SELL_DUST_USD", 1.0),

		TradeCooldown: getEnvSeconds("TRADE_COOLDOWN_SECONDS", 60),
		LockGrace:     getEnvSeconds("TRADE_LOCK_GRACE_SECONDS", 5),

		ScannerInterval: getEnvSeconds("SCANNER_INTERVAL_SECONDS", 5),
		MonitorInterval: getEnvSeconds("MONITOR_INTERVAL_SECONDS", 3),
		BalanceInterval: getEnvSeconds("BALANCE_INTERVAL_SECONDS", 5),
		HistoryInterval: getEnvSeconds("HISTORY_INTERVAL_SECONDS", 60),

		DBPath: getEnv("DB_PATH", "./data/scalp.db"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
		JWTExpiry: getEnvSeconds("JWT_EXPIRY_SECONDS", 7*24*3600),
		AdminUser: getEnv("ADMIN_USER", "admin"),
		// bcrypt hash; default corresponds to "admin".
		AdminPassHash: getEnv("ADMIN_PASS_HASH", "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),

		LogPath: getEnv("LOG_PATH", "./logs/scalp-core.log"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
