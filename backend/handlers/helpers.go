package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	middleware "github.com/adlens/adlens/backend/middlewares"
	"github.com/adlens/adlens/backend/utils"
	"github.com/google/uuid"
)

const maxBodyBytes = int64(65536)

// sessionUserID reads the authenticated user and answers 401 itself when absent.
func sessionUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := middleware.UserID(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: User ID not provided")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Invalid user")
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a bounded JSON body into dst and answers 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		if errors.Is(err, io.EOF) {
			utils.RespondError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return nil, false
	}
	return body, true
}
