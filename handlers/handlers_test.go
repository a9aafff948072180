package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AndrewCorlett/errolian-club-sub000/database"
	"github.com/AndrewCorlett/errolian-club-sub000/metrics"
	"github.com/AndrewCorlett/errolian-club-sub000/services"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	st := store.New(db)
	m := metrics.New()
	notifier := services.NopNotifier{}
	activity := services.NewActivityService(st)
	h := &Handler{
		Store:       st,
		Users:       services.NewUserService(st, "GBP"),
		Events:      services.NewEventService(st, activity, notifier),
		Expenses:    services.NewExpenseService(st, activity, notifier, m, "GBP"),
		Balances:    services.NewBalanceService(st, m, "GBP"),
		Settlements: services.NewSettlementService(st, activity, notifier, m, nil, 0, "GBP"),
		Activity:    activity,
		Tokens:      utils.NewTokenIssuer("a-very-long-test-secret", time.Hour, "club"),
		Metrics:     m,
		AppName:     "Errolian Club",
	}
	return &testServer{t: t, router: h.Router(), db: db}
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Retryable bool            `json:"retryable"`
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

type member struct {
	ID    string
	Token string
}

func (s *testServer) register(name string) member {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/auth/register", "", gin.H{
		"name":     name,
		"email":    name + "@errolian.club",
		"password": "secret-" + name,
	})
	require.Equal(s.t, http.StatusCreated, code, env.Message)
	var auth struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &auth))
	return member{ID: auth.User.ID, Token: auth.Token}
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealthReportsDatabaseDown(t *testing.T) {
	s := newTestServer(t)
	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"down"`)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Errolian Club")
	assert.Contains(t, w.Body.String(), `"database":"up"`)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	s.register("kirsty")

	code, _ := s.do(http.MethodPost, "/auth/register", "", gin.H{"name": "Kirsty", "email": "kirsty@errolian.club", "password": "another"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(http.MethodPost, "/auth/login", "", gin.H{"email": "kirsty@errolian.club", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(http.MethodPost, "/auth/login", "", gin.H{"email": "nobody@errolian.club", "password": "secret-kirsty"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.do(http.MethodPost, "/auth/login", "", gin.H{"email": "kirsty@errolian.club", "password": "secret-kirsty"})
	require.Equal(t, http.StatusOK, code)
	auth := decode[AuthResponse](t, env)

	code, env = s.do(http.MethodGet, "/api/users/me", auth.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "kirsty@errolian.club")

	code, _ = s.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodPut, "/api/users/me", auth.Token, gin.H{"currency": "eur"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"currency":"EUR"`)

	code, _ = s.do(http.MethodPut, "/api/users/me/fcm-token", auth.Token, gin.H{"token": "device"})
	assert.Equal(t, http.StatusOK, code)
}

func TestExpenseLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice, bob, carol := s.register("alice"), s.register("bob"), s.register("carol")
	outsider := s.register("dave")

	code, env := s.do(http.MethodPost, "/api/events", alice.Token, gin.H{
		"title":        "Skye",
		"starts_at":    "2026-07-01",
		"participants": []string{bob.ID, carol.ID},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	event := decode[struct {
		ID string `json:"id"`
	}](t, env)

	code, env = s.do(http.MethodPost, "/api/expenses", alice.Token, gin.H{
		"title":    "Ferry",
		"amount":   "10.00",
		"event_id": event.ID,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	expense := decode[struct {
		ID           string `json:"id"`
		Amount       string `json:"amount"`
		PayerName    string `json:"payer_name"`
		Participants []struct {
			UserID      string `json:"user_id"`
			ShareAmount string `json:"share_amount"`
		} `json:"participants"`
	}](t, env)
	assert.Equal(t, "10.00", expense.Amount)
	assert.Equal(t, "alice", expense.PayerName)
	require.Len(t, expense.Participants, 3)

	code, _ = s.do(http.MethodPost, "/api/expenses", alice.Token, gin.H{
		"title":      "Bad split",
		"amount":     "10.00",
		"split_mode": "custom",
		"splits":     []gin.H{{"user_id": alice.ID, "value": "4.00"}},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodGet, "/api/expenses/"+expense.ID, outsider.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/api/expenses/not-a-uuid", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(http.MethodGet, "/api/balances?event_id="+event.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"net":"-3.33"`)

	code, env = s.do(http.MethodGet, "/api/events/"+event.ID+"/balances", carol.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"total_spent":"10.00"`)
	code, _ = s.do(http.MethodGet, "/api/events/"+event.ID+"/balances", outsider.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(http.MethodGet, "/api/balances/suggestions?event_id="+event.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"amount":"3.33"`)

	paid := "/api/expenses/" + expense.ID + "/participants/" + bob.ID + "/paid"
	code, _ = s.do(http.MethodPost, paid, carol.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodPost, paid, bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, paid, bob.Token, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(http.MethodGet, "/api/events/"+event.ID+"/expenses", carol.Token, nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[struct {
		Items []json.RawMessage `json:"items"`
		Total int64             `json:"total"`
	}](t, env)
	assert.Len(t, page.Items, 1)
	assert.EqualValues(t, 1, page.Total)

	code, _ = s.do(http.MethodPut, "/api/expenses/"+expense.ID, alice.Token, gin.H{"amount": "12.00"})
	assert.Equal(t, http.StatusConflict, code, "shares are already being paid")

	code, _ = s.do(http.MethodDelete, "/api/expenses/"+expense.ID, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodDelete, "/api/expenses/"+expense.ID, alice.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/api/expenses/"+expense.ID, alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(http.MethodGet, "/api/events/"+event.ID+"/activity", bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "expense_deleted")
}

func TestSettlementEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice, bob, carol := s.register("alice"), s.register("bob"), s.register("carol")

	code, _ := s.do(http.MethodPost, "/api/settlements", bob.Token, gin.H{"to_user_id": bob.ID, "amount": "5.00"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPost, "/api/settlements", bob.Token, gin.H{"to_user_id": "nobody", "amount": "5.00"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := s.do(http.MethodPost, "/api/settlements", bob.Token, gin.H{"to_user_id": alice.ID, "amount": "5.00", "notes": "beer"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	settlement := decode[struct {
		ID       string `json:"id"`
		FromName string `json:"from_name"`
		Amount   string `json:"amount"`
	}](t, env)
	assert.Equal(t, "bob", settlement.FromName)
	assert.Equal(t, "5.00", settlement.Amount)

	code, _ = s.do(http.MethodPost, "/api/settlements/"+settlement.ID+"/settle", carol.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, env = s.do(http.MethodPost, "/api/settlements/"+settlement.ID+"/settle", alice.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"is_settled":true`)
	code, _ = s.do(http.MethodPost, "/api/settlements/"+settlement.ID+"/settle", alice.Token, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(http.MethodGet, "/api/settlements?settled=true", alice.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), settlement.ID)
	code, _ = s.do(http.MethodGet, "/api/settlements?settled=maybe", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(http.MethodGet, "/api/balances", bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"settled_out":"5.00"`)

	code, env = s.do(http.MethodGet, "/api/activity", alice.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "settlement_settled")
}
