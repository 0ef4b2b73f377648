package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type listOrdersQuery struct {
	Limit int `form:"limit"`
}

func (q *listOrdersQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// getStatus exposes runtime mode and configuration for the dashboard.
func (s *Server) getStatus(c *gin.Context) {
	mode := "LIVE"
	if s.Meta.DryRun {
		mode = "DRY_RUN"
	}
	c.JSON(http.StatusOK, gin.H{
		"role":          s.Meta.Role,
		"mode":          mode,
		"dry_run":       s.Meta.DryRun,
		"symbols":       s.Meta.Symbols,
		"profiles":      s.Meta.Profiles,
		"use_mock_feed": s.Meta.UseMockFeed,
		"version":       s.Meta.Version,
		"server_time":   time.Now().UTC(),
	})
}

// getStats returns the daily ledger row for the requested date
// (default today, UTC).
func (s *Server) getStats(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
		return
	}

	row, err := s.DB.GetDailyStats(c.Request.Context(), date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":   row.Date,
		"trades": row.Trades,
		"pnl":    row.PnL,
		"wins":   row.Wins,
		"losses": row.Losses,
	})
}

// getQuality returns the accumulated data-quality counters.
func (s *Server) getQuality(c *gin.Context) {
	issues, err := s.DB.ListQualityIssues(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	out := make([]gin.H, 0, len(issues))
	for _, q := range issues {
		out = append(out, gin.H{
			"symbol":         q.Symbol,
			"analysis":       q.Analysis,
			"missing_fields": q.MissingFields,
			"first_detected": q.FirstDetected,
			"occurrences":    q.Occurrences,
		})
	}
	c.JSON(http.StatusOK, out)
}

// getOrders returns recent order rows, newest first.
func (s *Server) getOrders(c *gin.Context) {
	var q listOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	orders, err := s.DB.RecentOrders(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	out := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		row := gin.H{
			"id":              o.ID,
			"broker_ticket":   o.BrokerTicket,
			"symbol":          o.Symbol,
			"direction":       o.Direction,
			"volume":          o.Volume,
			"requested_price": o.RequestedPrice,
			"stop_price":      o.StopPrice,
			"target_price":    o.TargetPrice,
			"status":          o.Status,
			"profile":         o.Profile,
			"decision_id":     o.DecisionID,
			"created_at":      o.CreatedAt,
		}
		if !o.ClosedAt.IsZero() {
			row["closed_at"] = o.ClosedAt
			row["close_reason"] = o.CloseReason
			row["realized_profit"] = o.RealizedProfit
		}
		out = append(out, row)
	}
	c.Header("X-Result-Limit", strconv.Itoa(q.Limit))
	c.JSON(http.StatusOK, out)
}

// getPositions returns live broker positions carrying this system's tag.
// Only the executor process has a gateway.
func (s *Server) getPositions(c *gin.Context) {
	if s.Gateway == nil {
		respondError(c, http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE", "no broker gateway on this process")
		return
	}

	positions, err := s.Gateway.OpenPositions(c.Request.Context(), s.Tag)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "GATEWAY_ERROR", err.Error())
		return
	}

	out := make([]gin.H, 0, len(positions))
	for _, p := range positions {
		out = append(out, gin.H{
			"ticket":     p.Ticket,
			"symbol":     p.Symbol,
			"direction":  p.Direction,
			"volume":     p.Volume,
			"open_price": p.OpenPrice,
			"profit":     p.Profit,
			"opened_at":  p.OpenedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
