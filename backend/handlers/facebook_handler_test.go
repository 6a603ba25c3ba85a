package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/adlens/adlens/backend/config"
	"github.com/adlens/adlens/backend/facebook"
	"github.com/adlens/adlens/backend/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newFacebookHandler(t *testing.T, env *testEnv, graph http.HandlerFunc) *FacebookHandler {
	t.Helper()
	srv := httptest.NewServer(graph)
	t.Cleanup(srv.Close)

	client := facebook.NewClient(config.FacebookConfig{
		AppID:        "app",
		AppSecret:    "app-secret",
		GraphVersion: "v19.0",
		BaseURL:      srv.URL,
		RateLimit:    1000,
	}, srv.Client())

	return &FacebookHandler{
		Store:      env.store,
		Graph:      client,
		MetricsTTL: 15 * time.Minute,
		Now:        func() time.Time { return fixedNow },
	}
}

func expectSession(mock sqlmock.Sqlmock, userID uuid.UUID, expiresAt any) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM facebook_sessions")).
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "fb_user_id", "fb_user_name", "access_token", "ad_account_id", "expires_at", "connected_at",
		}).AddRow(userID.String(), "fb_1", "Ada", "tok", "act_1", expiresAt, fixedNow.Add(-time.Hour)))
}

func TestFacebookMetrics_NotConnected(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	env.mock.ExpectQuery(regexp.QuoteMeta("FROM facebook_sessions")).WillReturnError(sql.ErrNoRows)

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected graph call %s", r.URL.Path)
	})

	rec := httptest.NewRecorder()
	h.Metrics(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/metrics?tz=UTC", nil), userID))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Facebook account not connected", decodeResponse(t, rec).Error)
}

func TestFacebookMetrics_StoredSessionExpired(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, fixedNow.Add(-time.Minute))

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected graph call %s", r.URL.Path)
	})

	rec := httptest.NewRecorder()
	h.Metrics(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/metrics?tz=UTC", nil), userID))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFacebookMetrics_InvalidWindow(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected graph call %s", r.URL.Path)
	})

	rec := httptest.NewRecorder()
	h.Metrics(rec, asUser(httptest.NewRequest(http.MethodGet,
		"/api/facebook/metrics?tz=UTC&since=2024-03-10&until=2024-03-01", nil), userID))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeResponse(t, rec).Error, "since is after until")
}

func TestFacebookMetrics_CompareUsesCache(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)

	env.mock.ExpectQuery(regexp.QuoteMeta("FROM metrics_cache")).
		WithArgs(userID.String(), "act_1", "2024-03-08_2024-03-14", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"payload", "fetched_at"}).
			AddRow([]byte(`{"spend":150,"impressions":1000,"clicks":30}`), fixedNow))
	env.mock.ExpectQuery(regexp.QuoteMeta("FROM metrics_cache")).
		WithArgs(userID.String(), "act_1", "2024-03-01_2024-03-07", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	env.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO metrics_cache")).
		WithArgs(userID.String(), "act_1", "2024-03-01_2024-03-07", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var calls atomic.Int32
	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v19.0/act_1/insights", r.URL.Path)
		assert.JSONEq(t, `{"since":"2024-03-01","until":"2024-03-07"}`, r.URL.Query().Get("time_range"))
		w.Write([]byte(`{"data":[{"spend":"100","impressions":"1000","clicks":"20"}]}`))
	})

	rec := httptest.NewRecorder()
	h.Metrics(rec, asUser(httptest.NewRequest(http.MethodGet,
		"/api/facebook/metrics?tz=UTC&window=last_7d&compare=true", nil), userID))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), calls.Load())

	var body struct {
		Data struct {
			Cached         bool                `json:"cached"`
			Window         windowView          `json:"window"`
			PreviousWindow *windowView         `json:"previousWindow"`
			Deltas         map[string]*float64 `json:"deltas"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Data.Cached)
	assert.Equal(t, 7, body.Data.Window.Days)
	require.NotNil(t, body.Data.PreviousWindow)
	assert.Equal(t, "2024-03-01", body.Data.PreviousWindow.Since)
	require.NotNil(t, body.Data.Deltas["spend"])
	assert.Equal(t, 50.0, *body.Data.Deltas["spend"])
	assert.Equal(t, 50.0, *body.Data.Deltas["clicks"])
	assert.Nil(t, body.Data.Deltas["reach"])
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestFacebookMetrics_GraphTokenExpired(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)
	env.mock.ExpectQuery(regexp.QuoteMeta("FROM metrics_cache")).WillReturnError(sql.ErrNoRows)

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`))
	})

	rec := httptest.NewRecorder()
	h.Metrics(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/metrics?tz=UTC", nil), userID))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFacebookMetrics_ProfileTimezoneFallback(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)
	env.mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WillReturnRows(userRows(userID, "ada@example.com", "hash"))
	env.mock.ExpectQuery(regexp.QuoteMeta("FROM metrics_cache")).
		WithArgs(userID.String(), "act_1", "2024-03-14_2024-03-14", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"payload", "fetched_at"}).AddRow([]byte(`{"spend":1}`), fixedNow))

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected graph call %s", r.URL.Path)
	})

	rec := httptest.NewRecorder()
	h.Metrics(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/metrics?window=yesterday", nil), userID))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestFacebookDisconnect_NotConnected(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	env.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM facebook_sessions")).
		WithArgs(userID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	h := &FacebookHandler{Store: env.store}
	rec := httptest.NewRecorder()
	h.Disconnect(rec, asUser(httptest.NewRequest(http.MethodDelete, "/api/facebook/connect", nil), userID))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFacebookMetrics_RejectsNonNumericObjectID(t *testing.T) {
	tests := []string{"me", "1/../me", "act_1?fields=access_token", "act_abc"}
	for _, objectID := range tests {
		t.Run(objectID, func(t *testing.T) {
			env := newEnv(t)
			userID := uuid.New()
			expectSession(env.mock, userID, nil)

			h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
				t.Errorf("unexpected graph call %s", r.URL.Path)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/facebook/metrics?tz=UTC", nil)
			q := req.URL.Query()
			q.Set("objectId", objectID)
			req.URL.RawQuery = q.Encode()

			rec := httptest.NewRecorder()
			h.Metrics(rec, asUser(req, userID))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NoError(t, env.mock.ExpectationsWereMet())
		})
	}
}

func TestFacebookMetrics_GraphRateLimited(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)
	env.mock.ExpectQuery(regexp.QuoteMeta("FROM metrics_cache")).WillReturnError(sql.ErrNoRows)

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"User request limit reached","type":"OAuthException","code":17}}`))
	})

	rec := httptest.NewRecorder()
	h.Metrics(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/metrics?tz=UTC", nil), userID))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestFacebookConnect_ExchangesAndStoresSession(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()

	var paths []string
	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/v19.0/oauth/access_token":
			assert.Equal(t, "short", r.URL.Query().Get("fb_exchange_token"))
			w.Write([]byte(`{"access_token":"long","expires_in":5184000}`))
		case "/v19.0/me":
			assert.Equal(t, "Bearer long", r.Header.Get("Authorization"))
			w.Write([]byte(`{"id":"fb_1","name":"Ada"}`))
		case "/v19.0/me/adaccounts":
			w.Write([]byte(`{"data":[{"id":"act_9","account_id":"9","name":"Main","currency":"USD"}]}`))
		default:
			t.Errorf("unexpected graph call %s", r.URL.Path)
		}
	})

	env.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO facebook_sessions")).
		WithArgs(userID.String(), "fb_1", "Ada", "long", "act_9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	h.Connect(rec, asUser(jsonRequest(http.MethodPost, "/api/facebook/connect", `{"accessToken":" short "}`), userID))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"/v19.0/oauth/access_token", "/v19.0/me", "/v19.0/me/adaccounts"}, paths)

	var body struct {
		Data struct {
			FBUserName  string     `json:"fbUserName"`
			AdAccountID string     `json:"adAccountId"`
			ExpiresAt   *time.Time `json:"expiresAt"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "act_9", body.Data.AdAccountID)
	assert.NotNil(t, body.Data.ExpiresAt)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestFacebookConnect_InvalidAdAccount(t *testing.T) {
	env := newEnv(t)
	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected graph call %s", r.URL.Path)
	})

	rec := httptest.NewRecorder()
	h.Connect(rec, asUser(jsonRequest(http.MethodPost, "/api/facebook/connect",
		`{"accessToken":"short","adAccountId":"1/../me"}`), uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, utils.ErrCodeValidation, resp.Code)
	assert.Contains(t, resp.Error, "adAccountId")
}

func TestFacebookCampaigns_StoresCopy(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/act_1/campaigns", r.URL.Path)
		w.Write([]byte(`{"data":[{
			"id":"9","name":"Spring","status":"ACTIVE","objective":"OUTCOME_SALES","daily_budget":"2500",
			"insights":{"data":[{"spend":"12.34","impressions":"1000","clicks":"20"}]}
		}]}`))
	})

	env.mock.ExpectBegin()
	env.mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO campaign_data"))
	env.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO campaign_data")).
		WithArgs(userID.String(), "9", "act_1", "Spring", "ACTIVE", "OUTCOME_SALES",
			int64(2500), int64(0), 12.34, int64(1000), int64(20), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	rec := httptest.NewRecorder()
	h.Campaigns(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/campaigns", nil), userID))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			AdAccountID string              `json:"adAccountId"`
			Campaigns   []facebook.Campaign `json:"campaigns"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "act_1", body.Data.AdAccountID)
	require.Len(t, body.Data.Campaigns, 1)
	assert.Equal(t, 12.34, body.Data.Campaigns[0].Spend)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestFacebookCampaigns_StoreFailureRollsBack(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"9","name":"Spring"},{"id":"10","name":"Summer"}]}`))
	})

	env.mock.ExpectBegin()
	env.mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO campaign_data"))
	env.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO campaign_data")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO campaign_data")).
		WillReturnError(sql.ErrConnDone)
	env.mock.ExpectRollback()

	rec := httptest.NewRecorder()
	h.Campaigns(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/campaigns", nil), userID))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestFacebookCreatives(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/act_77/adcreatives", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"c1","name":"Hero","title":"Spring sale"}]}`))
	})

	rec := httptest.NewRecorder()
	h.Creatives(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/creatives?adAccountId=77", nil), userID))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []facebook.Creative `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Spring sale", body.Data[0].Title)
}

func TestFacebookCreatives_InvalidAdAccount(t *testing.T) {
	env := newEnv(t)
	userID := uuid.New()
	expectSession(env.mock, userID, nil)

	h := newFacebookHandler(t, env, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected graph call %s", r.URL.Path)
	})

	rec := httptest.NewRecorder()
	h.Creatives(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/facebook/creatives?adAccountId=me", nil), userID))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
