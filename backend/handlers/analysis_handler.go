package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/adlens/adlens/backend/facebook"
	"github.com/adlens/adlens/backend/utils"
	"github.com/adlens/adlens/backend/workflow"
)

type AnalysisHandler struct {
	Workflow *workflow.Client
}

// Analyze forwards a creative to the analysis workflow and relays its JSON answer.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	req, fieldErrors, err := workflow.ValidateAnalysis(body)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(fieldErrors) > 0 {
		utils.RespondFieldErrors(w, fieldErrors)
		return
	}

	result, err := h.Workflow.Analyze(r.Context(), workflow.AnalysisPayload{
		UserID:       userID.String(),
		CreativeID:   req.CreativeID,
		ImageURL:     req.ImageURL,
		ImageToken:   facebook.ImageToken(req.ImageURL),
		Headline:     req.Headline,
		PrimaryText:  req.PrimaryText,
		CallToAction: req.CallToAction,
		Objective:    req.Objective,
		RequestedAt:  time.Now().UTC(),
	})

	var upstream *workflow.UpstreamError
	switch {
	case err == nil:
		utils.RespondThirdParty(w, http.StatusOK, result)
	case errors.Is(err, workflow.ErrNotConfigured):
		utils.RespondError(w, http.StatusServiceUnavailable, "Creative analysis is not configured")
	case errors.Is(err, workflow.ErrTimeout):
		utils.RespondUpstream(w, http.StatusGatewayTimeout, err, "Creative analysis timed out")
	case errors.As(err, &upstream):
		utils.RespondUpstream(w, http.StatusBadGateway, err, "Creative analysis failed: "+upstream.Message)
	default:
		utils.RespondUpstream(w, http.StatusBadGateway, err, "Creative analysis failed")
	}
}
