package risk

import (
	"fmt"
	"time"
)

// Config is the runtime risk parameter set. It is replaced wholesale, never
// mutated field by field, so readers always see a consistent snapshot.
type Config struct {
	DayLossLimitUSD    float64       `json:"day_loss_limit_usd"`
	DayProfitTargetPct float64       `json:"day_profit_target_pct"`
	RiskPerTrade       float64       `json:"risk_per_trade"`
	MaxActiveSymbols   int           `json:"max_active_symbols"`
	MaxSlippageBps     int           `json:"max_slippage_bps"`
	DefaultTPBps       int           `json:"default_tp_bps"`
	DefaultSLBps       int           `json:"default_sl_bps"`
	TrailingSLBps      int           `json:"trailing_sl_bps"`
	MaxHoldingTime     time.Duration `json:"max_holding_time"`
}

// Validate enforces the parameter bounds.
func (c Config) Validate() error {
	if c.DayLossLimitUSD <= 0 {
		return fmt.Errorf("day_loss_limit_usd must be > 0, got %v", c.DayLossLimitUSD)
	}
	if c.DayProfitTargetPct <= 0 {
		return fmt.Errorf("day_profit_target_pct must be > 0, got %v", c.DayProfitTargetPct)
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1 {
		return fmt.Errorf("risk_per_trade must be in (0, 1), got %v", c.RiskPerTrade)
	}
	if c.MaxActiveSymbols <= 0 {
		return fmt.Errorf("max_active_symbols must be > 0, got %d", c.MaxActiveSymbols)
	}
	if c.MaxSlippageBps < 0 {
		return fmt.Errorf("max_slippage_bps must be >= 0, got %d", c.MaxSlippageBps)
	}
	if c.DefaultTPBps <= 0 {
		return fmt.Errorf("default_tp_bps must be > 0, got %d", c.DefaultTPBps)
	}
	if c.DefaultSLBps <= 0 {
		return fmt.Errorf("default_sl_bps must be > 0, got %d", c.DefaultSLBps)
	}
	if c.TrailingSLBps <= 0 {
		return fmt.Errorf("trailing_sl_bps must be > 0, got %d", c.TrailingSLBps)
	}
	if c.MaxHoldingTime <= 0 {
		return fmt.Errorf("max_holding_time must be > 0, got %v", c.MaxHoldingTime)
	}
	return nil
}
