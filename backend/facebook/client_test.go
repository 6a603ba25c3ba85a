package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adlens/adlens/backend/config"
	"github.com/adlens/adlens/backend/reporting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, appSecret string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(config.FacebookConfig{
		AppID:        "app",
		AppSecret:    appSecret,
		GraphVersion: "v19.0",
		BaseURL:      srv.URL,
		RateLimit:    1000,
	}, srv.Client())
}

func TestMe_SendsBearerAndProof(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/me", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.URL.Query().Get("appsecret_proof"))
		w.Write([]byte(`{"id":"42","name":"Ada Lovelace"}`))
	}), "app-secret")

	u, err := c.Me(context.Background(), "user-token")
	require.NoError(t, err)
	assert.Equal(t, "42", u.ID)
	assert.Equal(t, "Ada Lovelace", u.Name)
}

func TestGraphError_TokenExpired(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"error_subcode":463}}`))
	}), "")

	_, err := c.Me(context.Background(), "stale")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.False(t, errors.Is(err, ErrRateLimited))

	var gerr *GraphError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, 463, gerr.ErrorSubcode)
	assert.Equal(t, http.StatusUnauthorized, gerr.HTTPStatus)
}

func TestGraphError_NonJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}), "")

	_, err := c.Me(context.Background(), "tok")
	var gerr *GraphError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusBadGateway, gerr.HTTPStatus)
}

func TestAdAccounts_FollowsPaging(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/me/adaccounts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"data":   []map[string]any{{"id": "act_1", "account_id": "1", "name": "One", "currency": "USD", "account_status": 1, "timezone_name": "UTC"}},
				"paging": map[string]string{"next": srvURL + "/v19.0/me/adaccounts?after=abc"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "act_2", "account_id": "2", "name": "Two"}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c := NewClient(config.FacebookConfig{GraphVersion: "v19.0", BaseURL: srv.URL, RateLimit: 1000}, srv.Client())
	accounts, err := c.AdAccounts(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "UTC", accounts[0].Timezone)
	assert.Equal(t, "act_2", accounts[1].ID)
}

func TestCampaigns_Reshape(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/act_123/campaigns", r.URL.Path)
		w.Write([]byte(`{"data":[{
			"id":"9","name":"Spring","status":"ACTIVE","objective":"OUTCOME_SALES",
			"daily_budget":"2500","start_time":"2024-03-01T00:00:00-0800",
			"insights":{"data":[{"spend":"12.34","impressions":"1000","clicks":"20"}]}
		}]}`))
	}), "")

	campaigns, err := c.Campaigns(context.Background(), "tok", "123")
	require.NoError(t, err)
	require.Len(t, campaigns, 1)

	got := campaigns[0]
	assert.Equal(t, int64(2500), got.DailyBudget)
	assert.Equal(t, 12.34, got.Spend)
	assert.Equal(t, int64(20), got.Clicks)
	require.NotNil(t, got.StartTime)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), got.StartTime.UTC())
	assert.Nil(t, got.StopTime)
}

func TestInsights(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.JSONEq(t, `{"since":"2024-03-08","until":"2024-03-14"}`, r.URL.Query().Get("time_range"))
		w.Write([]byte(`{"data":[{"spend":"100.50","impressions":"5000","clicks":"150","reach":"4000",
			"ctr":"3","cpc":"0.67","cpm":"20.1","actions":[{"action_type":"purchase","value":"4"},{"action_type":"link_click","value":"150"}]}]}`))
	}), "")

	w := reporting.Window{
		Since: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
	}
	totals, err := c.Insights(context.Background(), "tok", "act_1", w)
	require.NoError(t, err)
	assert.Equal(t, 100.5, totals.Spend)
	assert.Equal(t, int64(4), totals.Conversions)
	assert.Equal(t, int64(4000), totals.Reach)
}

func TestInsights_NoDelivery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}), "")

	totals, err := c.Insights(context.Background(), "tok", "act_1", reporting.Window{})
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)
}

func TestExchangeToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/oauth/access_token", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "short", r.URL.Query().Get("fb_exchange_token"))
		w.Write([]byte(`{"access_token":"long","token_type":"bearer","expires_in":5184000}`))
	}), "app-secret")

	token, expires, err := c.ExchangeToken(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, "long", token)
	require.NotNil(t, expires)
	assert.WithinDuration(t, time.Now().Add(60*24*time.Hour), *expires, time.Minute)
}

func TestExchangeToken_WithoutApp(t *testing.T) {
	c := NewClient(config.FacebookConfig{GraphVersion: "v19.0", BaseURL: "http://unused"}, nil)

	token, expires, err := c.ExchangeToken(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, "short", token)
	assert.Nil(t, expires)
}

func TestCreatives_TokenizesImages(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"c1","name":"Hero","image_url":"https://scontent.xx.fbcdn.net/v/t45/1.jpg?_nc_cat=1&oh=aa&oe=bb"}]}`))
	}), "")

	creatives, err := c.Creatives(context.Background(), "tok", "act_1")
	require.NoError(t, err)
	require.Len(t, creatives, 1)
	assert.Equal(t, ImageToken("https://scontent.xx.fbcdn.net/v/t45/1.jpg?oh=cc&oe=dd"), creatives[0].ImageToken)
}

func TestNormalizeAdAccountID(t *testing.T) {
	assert.Equal(t, "act_1", NormalizeAdAccountID("1"))
	assert.Equal(t, "act_1", NormalizeAdAccountID(" act_1 "))
	assert.Equal(t, "", NormalizeAdAccountID(""))
}

func TestGraphError_RateLimitCodes(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{code: 4, want: true},
		{code: 17, want: true},
		{code: 32, want: true},
		{code: 613, want: true},
		{code: 190, want: false},
		{code: 100, want: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := error(&GraphError{Code: tt.code, Type: "OAuthException"})
			assert.Equal(t, tt.want, errors.Is(err, ErrRateLimited))
			assert.Equal(t, tt.code == 190, errors.Is(err, ErrTokenExpired))
		})
	}
}

func TestInsights_RejectsNonNumericID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected graph call %s", r.URL.Path)
	}), "")

	for _, id := range []string{"me", "1/../me", "act_1?fields=x", ""} {
		_, err := c.Insights(context.Background(), "tok", id, reporting.Window{})
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}

	_, err := c.Campaigns(context.Background(), "tok", "../me")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestValidObjectID(t *testing.T) {
	assert.True(t, ValidObjectID("act_123"))
	assert.True(t, ValidObjectID("120200000000"))
	assert.False(t, ValidObjectID("act_"))
	assert.False(t, ValidObjectID("me"))
	assert.False(t, ValidObjectID("1/insights"))
}
