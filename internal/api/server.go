// Package api exposes the admin control surface and the public read-only
// endpoints over gin, plus the dashboard websocket.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"scalp-core/internal/events"
	"scalp-core/internal/risk"
	"scalp-core/internal/state"
	"scalp-core/internal/strategy"
)

// Server wires HTTP endpoints around the trading core.
type Server struct {
	Router *gin.Engine
	Bus    *events.Bus
	Store  *state.Store
	Risk   *risk.Engine
	Strat  *strategy.Router

	JWTSecret     string
	JWTExpiry     time.Duration
	AdminUser     string
	AdminPassHash string
}

func NewServer(bus *events.Bus, store *state.Store, riskEngine *risk.Engine, strat *strategy.Router, jwtSecret string, jwtExpiry time.Duration, adminUser, adminPassHash string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:        r,
		Bus:           bus,
		Store:         store,
		Risk:          riskEngine,
		Strat:         strat,
		JWTSecret:     jwtSecret,
		JWTExpiry:     jwtExpiry,
		AdminUser:     adminUser,
		AdminPassHash: adminPassHash,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws/dashboard", s.dashboardWS)

	v1 := s.Router.Group("/api/v1")
	{
		v1.POST("/auth/login", s.login)

		public := v1.Group("/public")
		{
			public.GET("/state", s.getState)
			public.GET("/risk-config", s.getRiskConfig)
		}

		control := v1.Group("/control")
		control.Use(AuthMiddleware(s.JWTSecret))
		{
			control.POST("/start", s.startRouter)
			control.POST("/stop", s.stopRouter)
			control.POST("/config/risk", s.updateRiskConfig)
			control.POST("/config/universe", s.updateUniverse)
		}
	}
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
