// Package api exposes the read-only operations surface: health, status,
// daily stats, data-quality counters, order history and a websocket
// event stream. Nothing here mutates pipeline state.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mft-core/internal/broker"
	"mft-core/internal/events"
	"mft-core/pkg/db"
)

// Server wires HTTP endpoints around the store and the event bus.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	DB      *db.Database
	Gateway broker.Gateway // nil on the analyzer process
	Tag     string
	Meta    SystemMeta
}

// SystemMeta describes runtime status exposed by /api/status.
type SystemMeta struct {
	Role        string // "analyzer" or "executor"
	DryRun      bool
	Symbols     []string
	Profiles    []string
	UseMockFeed bool
	Version     string
}

func NewServer(bus *events.Bus, database *db.Database, meta SystemMeta) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router: r,
		Bus:    bus,
		DB:     database,
		Meta:   meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/stats", s.getStats)
		api.GET("/quality", s.getQuality)
		api.GET("/orders", s.getOrders)
		api.GET("/positions", s.getPositions)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
