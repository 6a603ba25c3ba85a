package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/adlens/adlens/backend/config"
	middleware "github.com/adlens/adlens/backend/middlewares"
	"github.com/adlens/adlens/backend/store"
	"github.com/adlens/adlens/backend/utils"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuth = config.AuthConfig{
	AccessSecret:  "access-secret",
	RefreshSecret: "refresh-secret",
	AccessTTL:     15 * time.Minute,
	RefreshTTL:    24 * time.Hour,
}

type testEnv struct {
	store *store.Store
	mock  sqlmock.Sqlmock
	mr    *miniredis.Miniredis
	redis *redis.Client
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &testEnv{store: store.New(db), mock: mock, mr: mr, redis: rdb}
}

func (e *testEnv) userHandler() *UserHandler {
	return &UserHandler{Store: e.store, RedisClient: e.redis, Auth: testAuth}
}

func userRows(id uuid.UUID, email, passwordHash string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "company", "timezone",
		"plan", "plan_status", "plan_renews_at", "created_at", "updated_at",
	}).AddRow(id.String(), email, passwordHash, "Ada", "Acme", "UTC", "free", "active", nil, now, now)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), id.String()))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignup_DuplicateEmail(t *testing.T) {
	env := newEnv(t)
	env.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	rec := httptest.NewRecorder()
	env.userHandler().Signup(rec, jsonRequest(http.MethodPost, "/api/auth/signup",
		`{"email":"ada@example.com","password":"correct-horse"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, utils.ErrCodeConflict, resp.Code)
	assert.Equal(t, "Email already in use", resp.Error)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "malformed json", body: `{"email":`},
		{name: "missing password", body: `{"email":"ada@example.com"}`},
		{name: "short password", body: `{"email":"ada@example.com","password":"short"}`, wantField: "password"},
		{name: "bad email", body: `{"email":"not-an-email","password":"long-enough"}`, wantField: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			rec := httptest.NewRecorder()
			env.userHandler().Signup(rec, jsonRequest(http.MethodPost, "/api/auth/signup", tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			if tt.wantField != "" {
				assert.Contains(t, resp.FieldErrors, tt.wantField)
			}
			require.NoError(t, env.mock.ExpectationsWereMet())
		})
	}
}

func TestSignup_CreatesSession(t *testing.T) {
	env := newEnv(t)
	id := uuid.New()
	env.mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("ada@example.com", sqlmock.AnyArg(), "Ada", "Acme").
		WillReturnRows(userRows(id, "ada@example.com", "hash"))

	rec := httptest.NewRecorder()
	env.userHandler().Signup(rec, jsonRequest(http.MethodPost, "/api/auth/signup",
		`{"email":"ada@example.com","password":"correct-horse","fullName":" Ada ","company":"Acme"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	access := cookieNamed(rec, utils.AccessCookieName)
	refresh := cookieNamed(rec, utils.RefreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)

	stored, err := env.mr.Get(middleware.RefreshKey(id.String()))
	require.NoError(t, err)
	assert.Equal(t, refresh.Value, stored)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("correct-horse")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		env := newEnv(t)
		env.mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WillReturnRows(userRows(uuid.New(), "ada@example.com", hash))

		rec := httptest.NewRecorder()
		env.userHandler().Login(rec, jsonRequest(http.MethodPost, "/api/auth/login",
			`{"email":"ada@example.com","password":"battery-staple"}`))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, cookieNamed(rec, utils.AccessCookieName))
	})

	t.Run("unknown email", func(t *testing.T) {
		env := newEnv(t)
		env.mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WillReturnError(sql.ErrNoRows)

		rec := httptest.NewRecorder()
		env.userHandler().Login(rec, jsonRequest(http.MethodPost, "/api/auth/login",
			`{"email":"nobody@example.com","password":"battery-staple"}`))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		env := newEnv(t)
		id := uuid.New()
		env.mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WillReturnRows(userRows(id, "ada@example.com", hash))

		rec := httptest.NewRecorder()
		env.userHandler().Login(rec, jsonRequest(http.MethodPost, "/api/auth/login",
			`{"email":"ada@example.com","password":"correct-horse"}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotNil(t, cookieNamed(rec, utils.AccessCookieName))
		assert.True(t, env.mr.Exists(middleware.RefreshKey(id.String())))
	})
}

func TestRefresh_RejectsReplacedToken(t *testing.T) {
	env := newEnv(t)
	id := uuid.New().String()

	old, err := utils.CreateToken(id, time.Hour, []byte(testAuth.RefreshSecret))
	require.NoError(t, err)
	require.NoError(t, env.mr.Set(middleware.RefreshKey(id), "a-newer-token"))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: utils.RefreshCookieName, Value: old})
	rec := httptest.NewRecorder()
	env.userHandler().RefreshTokenVerify(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_Rotates(t *testing.T) {
	env := newEnv(t)
	id := uuid.New().String()

	current, err := utils.CreateToken(id, time.Hour, []byte(testAuth.RefreshSecret))
	require.NoError(t, err)
	require.NoError(t, env.mr.Set(middleware.RefreshKey(id), current))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: utils.RefreshCookieName, Value: current})
	rec := httptest.NewRecorder()
	env.userHandler().RefreshTokenVerify(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	refresh := cookieNamed(rec, utils.RefreshCookieName)
	require.NotNil(t, refresh)
	stored, err := env.mr.Get(middleware.RefreshKey(id))
	require.NoError(t, err)
	assert.Equal(t, refresh.Value, stored)
}

func TestLogout_DropsRefreshToken(t *testing.T) {
	env := newEnv(t)
	id := uuid.New().String()

	token, err := utils.CreateToken(id, time.Hour, []byte(testAuth.RefreshSecret))
	require.NoError(t, err)
	require.NoError(t, env.mr.Set(middleware.RefreshKey(id), token))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: utils.RefreshCookieName, Value: token})
	rec := httptest.NewRecorder()
	env.userHandler().Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.mr.Exists(middleware.RefreshKey(id)))
	access := cookieNamed(rec, utils.AccessCookieName)
	require.NotNil(t, access)
	assert.Equal(t, "", access.Value)
}

func TestGetProfile(t *testing.T) {
	self := uuid.New()

	tests := []struct {
		name       string
		query      string
		setup      func(mock sqlmock.Sqlmock)
		wantStatus int
	}{
		{name: "missing userId", query: "", wantStatus: http.StatusBadRequest},
		{name: "malformed userId", query: "?userId=abc", wantStatus: http.StatusBadRequest},
		{name: "someone else", query: "?userId=" + uuid.NewString(), wantStatus: http.StatusForbidden},
		{
			name:  "deleted account",
			query: "?userId=" + self.String(),
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).WillReturnError(sql.ErrNoRows)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:  "own profile",
			query: "?userId=" + self.String(),
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
					WithArgs(self.String()).
					WillReturnRows(userRows(self, "ada@example.com", "hash"))
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			if tt.setup != nil {
				tt.setup(env.mock)
			}

			rec := httptest.NewRecorder()
			req := asUser(httptest.NewRequest(http.MethodGet, "/api/users/profile"+tt.query, nil), self)
			env.userHandler().GetProfile(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			require.NoError(t, env.mock.ExpectationsWereMet())
		})
	}
}

func TestGetProfile_RequiresSession(t *testing.T) {
	env := newEnv(t)
	rec := httptest.NewRecorder()
	env.userHandler().GetProfile(rec, httptest.NewRequest(http.MethodGet, "/api/users/profile?userId=x", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	self := uuid.New()

	t.Run("empty body", func(t *testing.T) {
		env := newEnv(t)
		rec := httptest.NewRecorder()
		env.userHandler().UpdateProfile(rec, asUser(jsonRequest(http.MethodPut, "/api/users/profile", `{}`), self))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad timezone", func(t *testing.T) {
		env := newEnv(t)
		rec := httptest.NewRecorder()
		env.userHandler().UpdateProfile(rec, asUser(jsonRequest(http.MethodPut, "/api/users/profile", `{"timezone":"Mars/Olympus"}`), self))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeResponse(t, rec).FieldErrors, "timezone")
	})

	t.Run("updates", func(t *testing.T) {
		env := newEnv(t)
		env.mock.ExpectQuery(regexp.QuoteMeta("UPDATE users")).
			WithArgs("Ada L", "", "Europe/London", self.String()).
			WillReturnRows(userRows(self, "ada@example.com", "hash"))

		rec := httptest.NewRecorder()
		env.userHandler().UpdateProfile(rec, asUser(jsonRequest(http.MethodPut, "/api/users/profile",
			`{"fullName":"Ada L","timezone":"Europe/London"}`), self))
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, env.mock.ExpectationsWereMet())
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newEnv(t)
		env.mock.ExpectPing()

		rec := httptest.NewRecorder()
		h := &MaintenanceHandler{Store: env.store, RedisClient: env.redis}
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("database down", func(t *testing.T) {
		env := newEnv(t)
		env.mock.ExpectPing().WillReturnError(context.DeadlineExceeded)

		rec := httptest.NewRecorder()
		h := &MaintenanceHandler{Store: env.store, RedisClient: env.redis}
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
