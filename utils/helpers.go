package utils

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// Standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// PageResponse wraps one page of a listing.
type PageResponse struct {
	Items interface{} `json:"items"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Total int64       `json:"total,omitempty"`
}

func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message)
}

func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, message)
}

// HandleError writes the response for an error returned by a service.
// Storage failures are reported as retryable 503s without leaking the
// driver message.
func HandleError(c *gin.Context, err error) {
	var le *ledger.Error
	if !errors.As(err, &le) {
		if ledger.IsRetryable(err) {
			c.JSON(http.StatusServiceUnavailable, APIResponse{Message: "Request timed out, please retry", Retryable: true})
			return
		}
		slog.Error("Unhandled error", "path", c.FullPath(), "error", err)
		InternalError(c, "Something went wrong")
		return
	}

	msg := le.Msg
	if le.Op != "" && msg != "" {
		msg = le.Op + ": " + msg
	}
	switch le.Kind {
	case ledger.KindValidation:
		BadRequest(c, msg)
	case ledger.KindNotFound:
		NotFound(c, msg)
	case ledger.KindConflict, ledger.KindInvalidState:
		ErrorResponse(c, http.StatusConflict, msg)
	case ledger.KindForbidden:
		Forbidden(c, msg)
	case ledger.KindUnauthenticated:
		Unauthorized(c, msg)
	case ledger.KindStorage:
		slog.Error("Storage failure", "path", c.FullPath(), "op", le.Op, "error", err)
		c.JSON(http.StatusServiceUnavailable, APIResponse{Message: "Storage is unavailable, please retry", Retryable: true})
	default:
		InternalError(c, "Something went wrong")
	}
}

// ParamUUID parses a path parameter, writing a 400 when it is malformed.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		BadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// QueryUUID parses an optional query parameter. A missing parameter yields
// nil; a malformed one writes a 400.
func QueryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		BadRequest(c, "Invalid "+name)
		return nil, false
	}
	return &id, true
}

// Get current user ID from context (set by auth middleware)
func GetCurrentUserID(c *gin.Context) uuid.UUID {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil
	}
	id, _ := userID.(uuid.UUID)
	return id
}

// GetCurrentActor returns the authenticated caller.
func GetCurrentActor(c *gin.Context) ledger.Actor {
	return ledger.Actor{UserID: GetCurrentUserID(c), Role: c.GetString(ContextRole)}
}

// Pagination helpers
type PaginationQuery struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

// ToPage converts the query into the store's page, clamping bad values.
func (p PaginationQuery) ToPage() store.Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	return store.Page{Page: p.Page, Limit: p.Limit}
}
