package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"medstock/m/internal/auth"
	"medstock/m/internal/inventory"
	"medstock/m/internal/ratelimit"
	"medstock/m/internal/testutil"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	auth    *auth.Authenticator
	clients int
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func newServerWithDB(t *testing.T, db *sqlx.DB) *testServer {
	t.Helper()
	log := testutil.Logger()
	sessions := auth.NewAuthenticator("test-secret", 24*time.Hour)
	history := inventory.NewHistoryLog(db)
	h := New(Options{
		Credentials: auth.NewCredentialStore(db, auth.BcryptHasher{Cost: bcrypt.MinCost}, log),
		Sessions:    sessions,
		Ledger:      inventory.NewLedger(db, history, log),
		History:     history,
		Limiter:     ratelimit.New(100, time.Hour),
		DB:          db,
		Log:         log,
		CORSOrigins: []string{"http://localhost:5173"},
	})
	return &testServer{t: t, handler: h.Router(), auth: sessions}
}

func newServer(t *testing.T) *testServer {
	return newServerWithDB(t, testutil.NewDB(t))
}

func (s *testServer) do(method, path, token string, body any, headers ...string) (int, response) {
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
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var resp response
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (s *testServer) register(username, email string) string {
	s.t.Helper()
	// A fresh client address per call keeps fixtures clear of the registration limit.
	s.clients++
	code, resp := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username, "email": email, "password": "secret1",
	}, "X-Forwarded-For", fmt.Sprintf("10.1.0.%d", s.clients))
	require.Equal(s.t, http.StatusCreated, code, resp.Error)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(resp.Data, &data))
	return data.Token
}

type medicineJSON struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

type historyJSON struct {
	Action       string `json:"action"`
	MedicineName string `json:"medicine_name"`
	Quantity     int64  `json:"quantity"`
	Notes        string `json:"notes"`
	Date         string `json:"date"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	code, resp := s.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Message)
}

func TestRegisterLoginMe(t *testing.T) {
	s := newServer(t)
	token := s.register("alice", "alice@example.com")
	assert.NotEmpty(t, token)

	code, resp := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, code)
	login := decode[struct {
		User struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
		Token string `json:"token"`
	}](t, resp.Data)
	assert.Equal(t, "alice", login.User.Username)
	assert.NotEmpty(t, login.Token)
	assert.NotContains(t, string(resp.Data), "password")

	code, resp = s.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"username":"alice"`)
}

func TestRegisterDuplicateMessages(t *testing.T) {
	s := newServer(t)
	s.register("alice", "alice@example.com")

	code, emailResp := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice2", "email": "alice@example.com", "password": "secret1",
	}, "X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, http.StatusBadRequest, code)

	code, userResp := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "new@example.com", "password": "secret1",
	}, "X-Forwarded-For", "10.0.0.2")
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Contains(t, emailResp.Error, "email")
	assert.Contains(t, userResp.Error, "username")
	assert.NotEqual(t, emailResp.Error, userResp.Error)
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	s := newServer(t)
	s.register("alice", "alice@example.com")

	code1, wrong := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "nope-nope",
	})
	code2, unknown := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ghost@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusUnauthorized, code1)
	assert.Equal(t, code1, code2)
	assert.Equal(t, wrong.Error, unknown.Error)
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)

	code, resp := s.do(http.MethodGet, "/api/medicines", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)

	code, _ = s.do(http.MethodGet, "/api/medicines", "garbage", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMedicineLifecycle(t *testing.T) {
	s := newServer(t)
	token := s.register("alice", "alice@example.com")

	code, resp := s.do(http.MethodPost, "/api/medicines", token, map[string]any{
		"name": "Aspirin", "quantity": 30, "dosage": "100mg", "frequency": "daily",
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	med := decode[medicineJSON](t, resp.Data)
	assert.Equal(t, int64(30), med.Quantity)

	code, resp = s.do(http.MethodPut, fmt.Sprintf("/api/medicines/%d", med.ID), token, map[string]string{"action": "take"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, int64(29), decode[medicineJSON](t, resp.Data).Quantity)

	code, resp = s.do(http.MethodPut, fmt.Sprintf("/api/medicines/%d/add-stock", med.ID), token, map[string]any{"quantity": 20, "notes": "refill"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, int64(49), decode[medicineJSON](t, resp.Data).Quantity)

	code, resp = s.do(http.MethodGet, "/api/medicines", token, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]medicineJSON](t, resp.Data)
	require.Len(t, list, 1)
	assert.Equal(t, int64(49), list[0].Quantity)

	code, resp = s.do(http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusOK, code)
	history := decode[[]historyJSON](t, resp.Data)
	require.Len(t, history, 3)
	assert.Equal(t, "RESTOCKED", history[0].Action)
	assert.Equal(t, "restock - refill", history[0].Notes)
	assert.Equal(t, "CONSUMED", history[1].Action)
	assert.Equal(t, "PRESCRIBED", history[2].Action)
	assert.Equal(t, "100mg, daily", history[2].Notes)
	_, err := time.ParseInLocation("2006-01-02 15:04:05", history[0].Date, time.Local)
	assert.NoError(t, err)

	code, resp = s.do(http.MethodDelete, fmt.Sprintf("/api/medicines/%d", med.ID), token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Deleted Aspirin", resp.Message)

	code, resp = s.do(http.MethodGet, "/api/medicines", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))

	code, resp = s.do(http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]historyJSON](t, resp.Data), 3)
}

func TestMedicineValidation(t *testing.T) {
	s := newServer(t)
	token := s.register("alice", "alice@example.com")

	code, _ := s.do(http.MethodPost, "/api/medicines", token, map[string]any{"name": "Aspirin"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/medicines", token, map[string]any{"name": "Aspirin", "quantity": int64(math.MaxInt64)})
	assert.Equal(t, http.StatusBadRequest, code)

	// Extra keys are ignored; the owner always comes from the token.
	code, resp := s.do(http.MethodPost, "/api/medicines", token, map[string]any{"name": "Aspirin", "quantity": 1, "user_id": 99})
	require.Equal(t, http.StatusCreated, code)
	med := decode[medicineJSON](t, resp.Data)
	assert.Contains(t, string(resp.Data), `"user_id":1`)

	code, _ = s.do(http.MethodPut, fmt.Sprintf("/api/medicines/%d/add-stock", med.ID), token, map[string]any{"quantity": int64(math.MaxInt64)})
	assert.Equal(t, http.StatusBadRequest, code)
	code, resp = s.do(http.MethodGet, "/api/medicines", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), decode[[]medicineJSON](t, resp.Data)[0].Quantity)

	code, _ = s.do(http.MethodPut, fmt.Sprintf("/api/medicines/%d/add-stock", med.ID), token, map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(http.MethodPut, fmt.Sprintf("/api/medicines/%d", med.ID), token, map[string]string{"action": "eat"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid action", resp.Error)

	code, _ = s.do(http.MethodPut, fmt.Sprintf("/api/medicines/%d", med.ID), token, map[string]string{"action": "take"})
	require.Equal(t, http.StatusOK, code)
	code, resp = s.do(http.MethodPut, fmt.Sprintf("/api/medicines/%d", med.ID), token, map[string]string{"action": "take"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "out of stock", resp.Error)

	code, _ = s.do(http.MethodDelete, "/api/medicines/abc", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOversizedBodyRejected(t *testing.T) {
	s := newServer(t)
	token := s.register("alice", "alice@example.com")

	code, resp := s.do(http.MethodPost, "/api/medicines", token, map[string]any{
		"name": "Aspirin", "quantity": 1, "notes": strings.Repeat("x", maxBodyBytes),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid request body", resp.Error)

	code, resp = s.do(http.MethodGet, "/api/medicines", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestOwnershipIsolationOverHTTP(t *testing.T) {
	s := newServer(t)
	alice := s.register("alice", "alice@example.com")
	bob := s.register("bob", "bob@example.com")

	code, resp := s.do(http.MethodPost, "/api/medicines", alice, map[string]any{"name": "Aspirin", "quantity": 5})
	require.Equal(t, http.StatusCreated, code)
	med := decode[medicineJSON](t, resp.Data)
	path := fmt.Sprintf("/api/medicines/%d", med.ID)

	code, resp = s.do(http.MethodPut, path, bob, map[string]string{"action": "take"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotContains(t, resp.Error, "Aspirin")
	code, _ = s.do(http.MethodPut, path+"/add-stock", bob, map[string]any{"quantity": 3})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = s.do(http.MethodGet, "/api/medicines", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestLoginRateLimited(t *testing.T) {
	s := newServer(t)
	body := map[string]string{"email": "ghost@example.com", "password": "secret1"}

	for i := 0; i < ratelimit.Login.Limit; i++ {
		code, _ := s.do(http.MethodPost, "/api/auth/login", "", body, "CF-Connecting-IP", "203.0.113.7")
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	code, resp := s.do(http.MethodPost, "/api/auth/login", "", body, "CF-Connecting-IP", "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.NotEmpty(t, resp.Error)

	code, _ = s.do(http.MethodPost, "/api/auth/login", "", body, "CF-Connecting-IP", "203.0.113.8")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegisterRateLimited(t *testing.T) {
	s := newServer(t)
	for i := 0; i < ratelimit.Register.Limit; i++ {
		code, _ := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": fmt.Sprintf("user%d", i), "email": fmt.Sprintf("u%d@example.com", i), "password": "secret1",
		}, "X-Forwarded-For", "198.51.100.1")
		assert.Equal(t, http.StatusCreated, code)
	}
	code, _ := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "user9", "email": "u9@example.com", "password": "secret1",
	}, "X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestStorageErrorIsGeneric(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	s := newServerWithDB(t, sqlx.NewDb(raw, "sqlite"))
	token, err := s.auth.Issue(&domainUser)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM medicines").WillReturnError(errors.New("no such table: medicines"))

	code, resp := s.do(http.MethodGet, "/api/medicines", token, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, dbErrorMessage, resp.Error)
	assert.NotContains(t, resp.Error, "no such table")
}

func TestHealthReportsDatabaseDown(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer raw.Close()
	s := newServerWithDB(t, sqlx.NewDb(raw, "sqlite"))
	mock.ExpectPing().WillReturnError(errors.New("gone"))

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"down"`)
}
