package handlers

import (
	"net/http"
	"time"

	"github.com/adlens/adlens/backend/blob"
	"github.com/adlens/adlens/backend/export"
	"github.com/adlens/adlens/backend/store"
	"github.com/adlens/adlens/backend/utils"
	"go.uber.org/zap"
)

type ExportHandler struct {
	Store  *store.Store
	Blob   blob.Store
	URLTTL time.Duration
}

// ExportCampaigns writes the stored campaign copy to a CSV object and returns a download link.
func (h *ExportHandler) ExportCampaigns(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}
	if h.Blob == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Exports are not configured")
		return
	}

	campaigns, err := h.Store.ListCampaigns(r.Context(), userID)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to load campaigns")
		return
	}
	if len(campaigns) == 0 {
		utils.RespondError(w, http.StatusNotFound, "No campaign data to export, sync campaigns first")
		return
	}

	data, err := export.CampaignsCSV(campaigns)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to build export")
		return
	}

	now := time.Now()
	key := blob.ExportKey(userID.String(), now)
	if err := h.Blob.Put(r.Context(), key, "text/csv", data); err != nil {
		utils.RespondUpstream(w, http.StatusBadGateway, err, "Unable to store export")
		return
	}

	url, err := h.Blob.PresignGet(key, h.URLTTL)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to sign export link")
		return
	}

	zap.L().Info("campaign export created", zap.String("user_id", userID.String()), zap.Int("rows", len(campaigns)))
	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"url":       url,
		"key":       key,
		"rows":      len(campaigns),
		"expiresAt": now.Add(h.URLTTL).UTC(),
	})
}
