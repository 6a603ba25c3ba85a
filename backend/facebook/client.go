// Package facebook is a small Graph API client for the ads endpoints the dashboard reads.
package facebook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/adlens/adlens/backend/config"
	"github.com/adlens/adlens/backend/metrics"
	"github.com/adlens/adlens/backend/reporting"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	pageLimit = 100
	maxPages  = 10
)

var objectIDPattern = regexp.MustCompile(`^(act_)?[0-9]+$`)

type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg config.FacebookConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 5
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.GraphVersion, "/"),
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(limit), 1),
	}
}

// NormalizeAdAccountID adds the act_ prefix Graph expects on ad account nodes.
func NormalizeAdAccountID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "act_") {
		return id
	}
	return "act_" + id
}

// ValidObjectID reports whether id is a numeric node id, optionally with the act_ prefix.
func ValidObjectID(id string) bool {
	return objectIDPattern.MatchString(id)
}

// nodePath builds "/<id>/<edge>" after checking id cannot escape its path segment.
func nodePath(id, edge string) (string, error) {
	if !ValidObjectID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return "/" + url.PathEscape(id) + "/" + edge, nil
}

// authed returns an HTTP client that sends token as a bearer credential.
func (c *Client) authed(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

func (c *Client) appSecretProof(token string) string {
	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// get fetches path (or an absolute paging URL) and decodes the body into out.
func (c *Client) get(ctx context.Context, token, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := path
	if !strings.HasPrefix(path, "http") {
		if params == nil {
			params = url.Values{}
		}
		if token != "" && c.appSecret != "" {
			params.Set("appsecret_proof", c.appSecretProof(token))
		}
		endpoint = c.baseURL + "/" + strings.TrimLeft(path, "/")
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.httpClient
	if token != "" {
		client = c.authed(ctx, token)
	}

	resp, err := client.Do(req)
	if err != nil {
		metrics.Upstream("graph", err)
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.Upstream("graph", err)
		return fmt.Errorf("read graph response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gerr := decodeGraphError(body, resp.StatusCode)
		metrics.Upstream("graph", gerr)
		return gerr
	}
	metrics.Upstream("graph", nil)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeGraphError(body []byte, status int) *GraphError {
	var env struct {
		Error *GraphError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.HTTPStatus = status
		return env.Error
	}
	return &GraphError{Message: http.StatusText(status), Type: "HTTPError", HTTPStatus: status}
}

type page[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func fetchAll[T any](ctx context.Context, c *Client, token, path string, params url.Values) ([]T, error) {
	var all []T
	next := path
	for i := 0; i < maxPages && next != ""; i++ {
		var p page[T]
		if err := c.get(ctx, token, next, params, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Data...)
		next = p.Paging.Next
		params = nil
	}
	return all, nil
}

// ExchangeToken trades a short-lived user token for a long-lived one.
func (c *Client) ExchangeToken(ctx context.Context, shortLived string) (string, *time.Time, error) {
	if c.appID == "" || c.appSecret == "" {
		return shortLived, nil, nil
	}

	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", c.appID)
	params.Set("client_secret", c.appSecret)
	params.Set("fb_exchange_token", shortLived)

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.get(ctx, "", "/oauth/access_token", params, &resp); err != nil {
		return "", nil, fmt.Errorf("exchange token: %w", err)
	}

	var expires *time.Time
	if resp.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		expires = &t
	}
	return resp.AccessToken, expires, nil
}

func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	params := url.Values{}
	params.Set("fields", "id,name")

	var u User
	if err := c.get(ctx, token, "/me", params, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) AdAccounts(ctx context.Context, token string) ([]AdAccount, error) {
	params := url.Values{}
	params.Set("fields", "id,account_id,name,currency,account_status,timezone_name")
	params.Set("limit", fmt.Sprint(pageLimit))

	raw, err := fetchAll[graphAdAccount](ctx, c, token, "/me/adaccounts", params)
	if err != nil {
		return nil, err
	}

	accounts := make([]AdAccount, 0, len(raw))
	for _, a := range raw {
		accounts = append(accounts, a.reshape())
	}
	return accounts, nil
}

// Campaigns lists the campaigns of an ad account with lifetime totals.
func (c *Client) Campaigns(ctx context.Context, token, adAccountID string) ([]Campaign, error) {
	params := url.Values{}
	params.Set("fields", "id,name,status,objective,daily_budget,lifetime_budget,start_time,stop_time,"+
		"insights.date_preset(maximum){spend,impressions,clicks}")
	params.Set("limit", fmt.Sprint(pageLimit))

	path, err := nodePath(NormalizeAdAccountID(adAccountID), "campaigns")
	if err != nil {
		return nil, err
	}

	raw, err := fetchAll[graphCampaign](ctx, c, token, path, params)
	if err != nil {
		return nil, err
	}

	campaigns := make([]Campaign, 0, len(raw))
	for _, g := range raw {
		campaigns = append(campaigns, g.reshape())
	}
	return campaigns, nil
}

// Insights returns the totals of objectID over w. Objects without delivery yield zero totals.
func (c *Client) Insights(ctx context.Context, token, objectID string, w reporting.Window) (Totals, error) {
	path, err := nodePath(objectID, "insights")
	if err != nil {
		return Totals{}, err
	}

	timeRange, err := json.Marshal(w.TimeRange())
	if err != nil {
		return Totals{}, err
	}

	params := url.Values{}
	params.Set("fields", "spend,impressions,clicks,reach,ctr,cpc,cpm,actions")
	params.Set("time_range", string(timeRange))

	var p page[graphInsights]
	if err := c.get(ctx, token, path, params, &p); err != nil {
		return Totals{}, err
	}
	if len(p.Data) == 0 {
		return Totals{}, nil
	}
	return p.Data[0].totals(), nil
}

func (c *Client) Creatives(ctx context.Context, token, adAccountID string) ([]Creative, error) {
	params := url.Values{}
	params.Set("fields", "id,name,title,body,image_url,thumbnail_url,call_to_action_type")
	params.Set("limit", fmt.Sprint(pageLimit))

	path, err := nodePath(NormalizeAdAccountID(adAccountID), "adcreatives")
	if err != nil {
		return nil, err
	}

	raw, err := fetchAll[graphCreative](ctx, c, token, path, params)
	if err != nil {
		return nil, err
	}

	creatives := make([]Creative, 0, len(raw))
	for _, g := range raw {
		creatives = append(creatives, g.reshape())
	}
	return creatives, nil
}
