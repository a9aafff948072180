package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/metrics"
	"github.com/AndrewCorlett/errolian-club-sub000/middleware"
	"github.com/AndrewCorlett/errolian-club-sub000/services"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

// Handler serves the HTTP API on top of the service layer.
type Handler struct {
	Store       *store.Store
	Users       *services.UserService
	Events      *services.EventService
	Expenses    *services.ExpenseService
	Balances    *services.BalanceService
	Settlements *services.SettlementService
	Activity    *services.ActivityService
	Tokens      *utils.TokenIssuer
	Metrics     *metrics.Metrics
	AppName     string
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORSMiddleware())
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	r.GET("/health", h.Health)

	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(h.Tokens))
	{
		// User
		api.GET("/users/me", h.GetProfile)
		api.PUT("/users/me", h.UpdateProfile)
		api.PUT("/users/me/fcm-token", h.UpdateFCMToken)

		// Events
		api.POST("/events", h.CreateEvent)
		api.GET("/events", h.GetEvents)
		api.GET("/events/:id", h.GetEvent)
		api.POST("/events/:id/participants", h.AddEventParticipants)
		api.GET("/events/:id/expenses", h.GetEventExpenses)
		api.GET("/events/:id/balances", h.GetEventBalances)
		api.GET("/events/:id/activity", h.GetEventActivity)

		// Expenses
		api.POST("/expenses", h.CreateExpense)
		api.GET("/expenses", h.GetExpenses)
		api.GET("/expenses/:id", h.GetExpense)
		api.PUT("/expenses/:id", h.UpdateExpense)
		api.DELETE("/expenses/:id", h.DeleteExpense)
		api.POST("/expenses/:id/participants/:uid/paid", h.MarkParticipantPaid)

		// Balances
		api.GET("/balances", h.GetBalances)
		api.GET("/balances/suggestions", h.GetSuggestions)

		// Settlements
		api.POST("/settlements", h.CreateSettlement)
		api.GET("/settlements", h.GetSettlements)
		api.POST("/settlements/:id/settle", h.MarkSettled)

		// Activity
		api.GET("/activity", h.GetActivity)
	}
	return r
}

// GET /health
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unavailable",
			"service":  h.AppName,
			"database": "down",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  h.AppName,
		"database": "up",
	})
}

// names returns nil when the lookup fails; responses then omit names.
func (h *Handler) names(ctx context.Context, ids ...uuid.UUID) map[uuid.UUID]string {
	names, err := h.Users.Names(ctx, ids...)
	if err != nil {
		slog.Warn("Failed to resolve display names", "count", len(ids), "error", err)
		return nil
	}
	return names
}

func parseIDs(field string, raw []string) ([]uuid.UUID, error) {
	if raw == nil {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, ledger.Validation("parse request", "invalid %s %q", field, s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseOptionalID treats an empty string as absent.
func parseOptionalID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, ledger.Validation("parse request", "invalid %s %q", field, raw)
	}
	return &id, nil
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, ledger.Validation("parse request", "invalid %s %q", field, raw)
}
