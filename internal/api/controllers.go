package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scalp-core/internal/risk"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getState serves the aggregated system snapshot.
func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.Store.Snapshot())
}

// getRiskConfig serves the active risk parameters and universe.
func (s *Server) getRiskConfig(c *gin.Context) {
	cfg := s.Risk.Config()
	c.JSON(http.StatusOK, gin.H{
		"config":   cfg,
		"universe": s.Risk.Universe(),
	})
}

// startRouter starts the strategy loops. Idempotent.
func (s *Server) startRouter(c *gin.Context) {
	s.Strat.Start()
	c.JSON(http.StatusOK, gin.H{"status": s.Store.Status()})
}

// stopRouter stops the strategy loops. Idempotent.
func (s *Server) stopRouter(c *gin.Context) {
	s.Strat.Stop()
	c.JSON(http.StatusOK, gin.H{"status": s.Store.Status()})
}

type riskConfigRequest struct {
	DayLossLimitUSD       float64 `json:"day_loss_limit_usd"`
	DayProfitTargetPct    float64 `json:"day_profit_target_pct"`
	RiskPerTrade          float64 `json:"risk_per_trade"`
	MaxActiveSymbols      int     `json:"max_active_symbols"`
	MaxSlippageBps        int     `json:"max_slippage_bps"`
	DefaultTPBps          int     `json:"default_tp_bps"`
	DefaultSLBps          int     `json:"default_sl_bps"`
	TrailingSLBps         int     `json:"trailing_sl_bps"`
	MaxHoldingTimeSeconds int     `json:"max_holding_time_seconds"`
}

// updateRiskConfig replaces the risk parameter set wholesale.
func (s *Server) updateRiskConfig(c *gin.Context) {
	var req riskConfigRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}

	cfg := risk.Config{
		DayLossLimitUSD:    req.DayLossLimitUSD,
		DayProfitTargetPct: req.DayProfitTargetPct,
		RiskPerTrade:       req.RiskPerTrade,
		MaxActiveSymbols:   req.MaxActiveSymbols,
		MaxSlippageBps:     req.MaxSlippageBps,
		DefaultTPBps:       req.DefaultTPBps,
		DefaultSLBps:       req.DefaultSLBps,
		TrailingSLBps:      req.TrailingSLBps,
		MaxHoldingTime:     time.Duration(req.MaxHoldingTimeSeconds) * time.Second,
	}
	if err := s.Risk.UpdateConfig(cfg); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":  "INVALID_CONFIG",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": s.Risk.Config()})
}

// updateUniverse replaces the tradable symbol set.
func (s *Server) updateUniverse(c *gin.Context) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if err := s.Risk.UpdateUniverse(req.Symbols); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":  "INVALID_UNIVERSE",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"universe": s.Risk.Universe()})
}
