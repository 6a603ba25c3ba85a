package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adlens/adlens/backend/facebook"
	"github.com/adlens/adlens/backend/models"
	"github.com/adlens/adlens/backend/reporting"
	"github.com/adlens/adlens/backend/store"
	"github.com/adlens/adlens/backend/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FacebookHandler struct {
	Store      *store.Store
	Graph      *facebook.Client
	MetricsTTL time.Duration
	Now        func() time.Time
}

func (h *FacebookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func respondGraphError(w http.ResponseWriter, err error, message string) {
	var graphErr *facebook.GraphError
	switch {
	case errors.Is(err, facebook.ErrTokenExpired):
		utils.RespondError(w, http.StatusUnauthorized, "Facebook session expired, reconnect your account")
	case errors.Is(err, facebook.ErrInvalidID):
		utils.RespondError(w, http.StatusBadRequest, "objectId must be a numeric Graph id")
	case errors.Is(err, facebook.ErrRateLimited):
		utils.RespondUpstream(w, http.StatusTooManyRequests, err, "Facebook rate limit reached, try again later")
	case errors.Is(err, context.DeadlineExceeded):
		utils.RespondUpstream(w, http.StatusGatewayTimeout, err, message)
	case errors.As(err, &graphErr):
		utils.RespondUpstream(w, http.StatusBadGateway, err, message+": "+graphErr.Message)
	default:
		utils.RespondUpstream(w, http.StatusBadGateway, err, message)
	}
}

// graphSession loads the stored Graph session and answers itself when there is none usable.
func (h *FacebookHandler) graphSession(w http.ResponseWriter, r *http.Request) (*models.FacebookSession, bool) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return nil, false
	}

	fs, err := h.Store.GetFacebookSession(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Facebook account not connected")
		return nil, false
	}
	if err != nil {
		utils.RespondInternal(w, err, "Unable to load Facebook session")
		return nil, false
	}
	if fs.Expired(h.now()) {
		utils.RespondError(w, http.StatusUnauthorized, "Facebook session expired, reconnect your account")
		return nil, false
	}
	return fs, true
}

func adAccountFor(r *http.Request, fs *models.FacebookSession) string {
	if id := strings.TrimSpace(r.URL.Query().Get("adAccountId")); id != "" {
		return facebook.NormalizeAdAccountID(id)
	}
	return fs.AdAccountID
}

func (h *FacebookHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	var body models.ConnectFacebook
	if !decodeBody(w, r, &body) {
		return
	}
	body.AccessToken = strings.TrimSpace(body.AccessToken)
	if body.AccessToken == "" {
		utils.RespondValidationError(w, "Missing required fields", []string{"accessToken"})
		return
	}
	adAccountID := facebook.NormalizeAdAccountID(body.AdAccountID)
	if adAccountID != "" && !facebook.ValidObjectID(adAccountID) {
		utils.RespondValidationError(w, "Invalid fields", []string{"adAccountId"})
		return
	}

	token, expiresAt, err := h.Graph.ExchangeToken(r.Context(), body.AccessToken)
	if err != nil {
		respondGraphError(w, err, "Unable to exchange Facebook token")
		return
	}

	me, err := h.Graph.Me(r.Context(), token)
	if err != nil {
		respondGraphError(w, err, "Unable to read Facebook profile")
		return
	}

	if adAccountID == "" {
		accounts, err := h.Graph.AdAccounts(r.Context(), token)
		if err != nil {
			respondGraphError(w, err, "Unable to list ad accounts")
			return
		}
		if len(accounts) > 0 {
			adAccountID = accounts[0].ID
		}
	}

	fs := models.FacebookSession{
		UserID:      userID,
		FBUserID:    me.ID,
		FBUserName:  me.Name,
		AccessToken: token,
		AdAccountID: adAccountID,
		ExpiresAt:   expiresAt,
		ConnectedAt: h.now().UTC(),
	}
	if err := h.Store.UpsertFacebookSession(r.Context(), fs); err != nil {
		utils.RespondInternal(w, err, "Unable to save Facebook session")
		return
	}

	zap.L().Info("facebook connected", zap.String("user_id", userID.String()), zap.String("ad_account_id", adAccountID))
	utils.RespondSuccess(w, http.StatusOK, fs)
}

func (h *FacebookHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	err := h.Store.DeleteFacebookSession(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Facebook account not connected")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Unable to disconnect Facebook")
		return
	}

	utils.RespondString(w, http.StatusOK, "Facebook disconnected")
}

func (h *FacebookHandler) AdAccounts(w http.ResponseWriter, r *http.Request) {
	fs, ok := h.graphSession(w, r)
	if !ok {
		return
	}

	accounts, err := h.Graph.AdAccounts(r.Context(), fs.AccessToken)
	if err != nil {
		respondGraphError(w, err, "Unable to list ad accounts")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, accounts)
}

// Campaigns fetches the live campaign list and refreshes the stored copy used by exports.
func (h *FacebookHandler) Campaigns(w http.ResponseWriter, r *http.Request) {
	fs, ok := h.graphSession(w, r)
	if !ok {
		return
	}

	adAccountID := adAccountFor(r, fs)
	if adAccountID == "" {
		utils.RespondError(w, http.StatusBadRequest, "adAccountId is required")
		return
	}
	if !facebook.ValidObjectID(adAccountID) {
		utils.RespondError(w, http.StatusBadRequest, "adAccountId must be a numeric ad account id")
		return
	}

	campaigns, err := h.Graph.Campaigns(r.Context(), fs.AccessToken, adAccountID)
	if err != nil {
		respondGraphError(w, err, "Unable to fetch campaigns")
		return
	}

	syncedAt := h.now().UTC()
	rows := make([]models.CampaignData, 0, len(campaigns))
	for _, c := range campaigns {
		rows = append(rows, models.CampaignData{
			UserID:         fs.UserID,
			CampaignID:     c.ID,
			AdAccountID:    adAccountID,
			Name:           c.Name,
			Status:         c.Status,
			Objective:      c.Objective,
			DailyBudget:    c.DailyBudget,
			LifetimeBudget: c.LifetimeBudget,
			Spend:          c.Spend,
			Impressions:    c.Impressions,
			Clicks:         c.Clicks,
			StartTime:      c.StartTime,
			StopTime:       c.StopTime,
			SyncedAt:       syncedAt,
		})
	}
	if err := h.Store.UpsertCampaigns(r.Context(), fs.UserID, rows); err != nil {
		utils.RespondInternal(w, err, "Unable to store campaigns")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"adAccountId": adAccountID,
		"campaigns":   campaigns,
		"syncedAt":    syncedAt,
	})
}

type windowView struct {
	Preset string `json:"preset"`
	Since  string `json:"since"`
	Until  string `json:"until"`
	Days   int    `json:"days"`
}

func viewOf(w reporting.Window) windowView {
	tr := w.TimeRange()
	return windowView{Preset: w.Preset, Since: tr["since"], Until: tr["until"], Days: w.Days()}
}

type metricsView struct {
	ObjectID       string              `json:"objectId"`
	Window         windowView          `json:"window"`
	Current        facebook.Totals     `json:"current"`
	PreviousWindow *windowView         `json:"previousWindow,omitempty"`
	Previous       *facebook.Totals    `json:"previous,omitempty"`
	Deltas         map[string]*float64 `json:"deltas,omitempty"`
	Cached         bool                `json:"cached"`
}

func deltas(cur, prev facebook.Totals) map[string]*float64 {
	return map[string]*float64{
		"spend":       reporting.Delta(cur.Spend, prev.Spend),
		"impressions": reporting.Delta(float64(cur.Impressions), float64(prev.Impressions)),
		"clicks":      reporting.Delta(float64(cur.Clicks), float64(prev.Clicks)),
		"reach":       reporting.Delta(float64(cur.Reach), float64(prev.Reach)),
		"ctr":         reporting.Delta(cur.CTR, prev.CTR),
		"cpc":         reporting.Delta(cur.CPC, prev.CPC),
		"cpm":         reporting.Delta(cur.CPM, prev.CPM),
		"conversions": reporting.Delta(float64(cur.Conversions), float64(prev.Conversions)),
	}
}

// Metrics serves insights totals for a window, optionally compared with the preceding period.
func (h *FacebookHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	fs, ok := h.graphSession(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	objectID := strings.TrimSpace(q.Get("objectId"))
	if objectID == "" {
		objectID = adAccountFor(r, fs)
	}
	if objectID == "" {
		utils.RespondError(w, http.StatusBadRequest, "objectId or a connected ad account is required")
		return
	}
	if !facebook.ValidObjectID(objectID) {
		utils.RespondError(w, http.StatusBadRequest, "objectId must be a numeric Graph id")
		return
	}

	loc, ok := h.location(w, r, fs.UserID)
	if !ok {
		return
	}

	window, err := reporting.ResolveWindow(q.Get("window"), q.Get("since"), q.Get("until"), h.now(), loc)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, cached, err := h.totals(r.Context(), fs, objectID, window)
	if err != nil {
		respondGraphError(w, err, "Unable to fetch insights")
		return
	}

	view := metricsView{
		ObjectID: objectID,
		Window:   viewOf(window),
		Current:  current,
		Cached:   cached,
	}

	if q.Get("compare") == "true" {
		prevWindow := window.Previous()
		previous, _, err := h.totals(r.Context(), fs, objectID, prevWindow)
		if err != nil {
			respondGraphError(w, err, "Unable to fetch comparison insights")
			return
		}
		pv := viewOf(prevWindow)
		view.PreviousWindow = &pv
		view.Previous = &previous
		view.Deltas = deltas(current, previous)
	}

	utils.RespondSuccess(w, http.StatusOK, view)
}

// location prefers ?tz= and falls back to the profile timezone.
func (h *FacebookHandler) location(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*time.Location, bool) {
	name := strings.TrimSpace(r.URL.Query().Get("tz"))
	if name == "" {
		user, err := h.Store.GetUserByID(r.Context(), userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			utils.RespondInternal(w, err, "Unable to load profile")
			return nil, false
		}
		if user != nil {
			name = user.Timezone
		}
	}
	if name == "" {
		return time.UTC, true
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "tz must be an IANA timezone name")
		return nil, false
	}
	return loc, true
}

func (h *FacebookHandler) totals(ctx context.Context, fs *models.FacebookSession, objectID string, window reporting.Window) (facebook.Totals, bool, error) {
	var t facebook.Totals

	mc, err := h.Store.GetMetricsCache(ctx, fs.UserID, objectID, window.Key(), h.MetricsTTL)
	switch {
	case err == nil:
		if err := json.Unmarshal(mc.Payload, &t); err == nil {
			return t, true, nil
		}
	case !errors.Is(err, store.ErrNotFound):
		zap.L().Warn("metrics cache read failed", zap.String("object_id", objectID), zap.Error(err))
	}

	t, err = h.Graph.Insights(ctx, fs.AccessToken, objectID, window)
	if err != nil {
		return facebook.Totals{}, false, err
	}

	payload, err := json.Marshal(t)
	if err == nil {
		err = h.Store.PutMetricsCache(ctx, models.MetricsCache{
			UserID:    fs.UserID,
			ObjectID:  objectID,
			WindowKey: window.Key(),
			Payload:   payload,
		})
	}
	if err != nil {
		zap.L().Warn("metrics cache write failed", zap.String("object_id", objectID), zap.Error(err))
	}
	return t, false, nil
}

func (h *FacebookHandler) Creatives(w http.ResponseWriter, r *http.Request) {
	fs, ok := h.graphSession(w, r)
	if !ok {
		return
	}

	adAccountID := adAccountFor(r, fs)
	if adAccountID == "" {
		utils.RespondError(w, http.StatusBadRequest, "adAccountId is required")
		return
	}
	if !facebook.ValidObjectID(adAccountID) {
		utils.RespondError(w, http.StatusBadRequest, "adAccountId must be a numeric ad account id")
		return
	}

	creatives, err := h.Graph.Creatives(r.Context(), fs.AccessToken, adAccountID)
	if err != nil {
		respondGraphError(w, err, "Unable to fetch creatives")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, creatives)
}
