package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/adlens/adlens/backend/config"
	middleware "github.com/adlens/adlens/backend/middlewares"
	"github.com/adlens/adlens/backend/models"
	"github.com/adlens/adlens/backend/store"
	"github.com/adlens/adlens/backend/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const minPasswordLength = 8

type UserHandler struct {
	Store       *store.Store
	RedisClient *redis.Client
	Auth        config.AuthConfig
}

// issueSession mints both tokens, records the refresh token in Redis and sets the cookies.
func (h *UserHandler) issueSession(ctx context.Context, w http.ResponseWriter, userID string) error {
	accessToken, err := utils.CreateToken(userID, h.Auth.AccessTTL, []byte(h.Auth.AccessSecret))
	if err != nil {
		return err
	}
	refreshToken, err := utils.CreateToken(userID, h.Auth.RefreshTTL, []byte(h.Auth.RefreshSecret))
	if err != nil {
		return err
	}

	redisOpCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.RedisClient.Set(redisOpCtx, middleware.RefreshKey(userID), refreshToken, h.Auth.RefreshTTL).Err(); err != nil {
		return err
	}

	utils.SetAuthCookie(w, accessToken, refreshToken, h.Auth.AccessTTL, h.Auth.RefreshTTL, h.Auth.SecureCookies)
	return nil
}

func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var form models.SignupForm
	if !decodeBody(w, r, &form) {
		return
	}

	form.Email = strings.TrimSpace(form.Email)
	var missing []string
	if form.Email == "" {
		missing = append(missing, "email")
	}
	if form.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		utils.RespondValidationError(w, "Missing required fields", missing)
		return
	}

	fieldErrors := map[string]string{}
	if _, err := mail.ParseAddress(form.Email); err != nil {
		fieldErrors["email"] = "must be a valid email address"
	}
	if len(form.Password) < minPasswordLength {
		fieldErrors["password"] = "must be at least 8 characters"
	}
	if len(fieldErrors) > 0 {
		utils.RespondFieldErrors(w, fieldErrors)
		return
	}

	passwordHash, err := utils.HashPassword(form.Password)
	if err != nil {
		utils.RespondInternal(w, err, "Could not process password")
		return
	}

	user, err := h.Store.CreateUser(r.Context(), form.Email, passwordHash, strings.TrimSpace(form.FullName), strings.TrimSpace(form.Company))
	if err != nil {
		if store.IsUniqueViolation(err) {
			utils.RespondError(w, http.StatusConflict, "Email already in use")
			return
		}
		utils.RespondInternal(w, err, "Unable to create account")
		return
	}

	if err := h.issueSession(r.Context(), w, user.ID.String()); err != nil {
		utils.RespondInternal(w, err, "Could not create session")
		return
	}

	zap.L().Info("user signed up", zap.String("user_id", user.ID.String()))
	utils.RespondSuccess(w, http.StatusCreated, user)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var form models.LoginForm
	if !decodeBody(w, r, &form) {
		return
	}

	if form.Email == "" || form.Password == "" {
		utils.RespondValidationError(w, "email and password are required", []string{"email", "password"})
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), form.Email)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Unable to process login")
		return
	}

	if !utils.CheckPasswordHash(form.Password, user.PasswordHash) {
		zap.L().Info("login failed: password mismatch", zap.String("user_id", user.ID.String()))
		utils.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.issueSession(r.Context(), w, user.ID.String()); err != nil {
		utils.RespondInternal(w, err, "Could not create session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, user)
}

func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(utils.RefreshCookieName); err == nil && cookie.Value != "" {
		if claims, err := utils.ParseToken(cookie.Value, []byte(h.Auth.RefreshSecret)); err == nil {
			redisOpCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := h.RedisClient.Del(redisOpCtx, middleware.RefreshKey(claims.UserID)).Err(); err != nil {
				zap.L().Warn("failed to drop refresh token", zap.String("user_id", claims.UserID), zap.Error(err))
			}
		}
	}

	utils.ClearAuthCookies(w, h.Auth.SecureCookies)
	utils.RespondString(w, http.StatusOK, "Logged out")
}

// RefreshTokenVerify rotates both tokens. A refresh token that is no longer the stored one is rejected.
func (h *UserHandler) RefreshTokenVerify(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie(utils.RefreshCookieName)
	if err != nil || refreshCookie.Value == "" {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Authentication token required")
		return
	}

	claims, err := utils.ParseToken(refreshCookie.Value, []byte(h.Auth.RefreshSecret))
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Invalid token")
		return
	}

	redisOpCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stored, err := h.RedisClient.Get(redisOpCtx, middleware.RefreshKey(claims.UserID)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && stored != refreshCookie.Value) {
		utils.ClearAuthCookies(w, h.Auth.SecureCookies)
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Session ended")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Unable to verify session")
		return
	}

	if err := h.issueSession(r.Context(), w, claims.UserID); err != nil {
		utils.RespondInternal(w, err, "Could not refresh session")
		return
	}

	utils.RespondString(w, http.StatusOK, "Session refreshed")
}

func (h *UserHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	user, err := h.Store.GetUserByID(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Account no longer exists")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Unable to load session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, user)
}

// GetProfile serves ?userId=, which must name the session user.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("userId"))
	if raw == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	requested, err := uuid.Parse(raw)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "userId must be a valid id")
		return
	}
	if requested != sessionID {
		utils.RespondError(w, http.StatusForbidden, "Forbidden: cannot read another user's profile")
		return
	}

	user, err := h.Store.GetUserByID(r.Context(), requested)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Unable to load profile")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	var body models.UpdateProfile
	if !decodeBody(w, r, &body) {
		return
	}

	body.FullName = strings.TrimSpace(body.FullName)
	body.Company = strings.TrimSpace(body.Company)
	body.Timezone = strings.TrimSpace(body.Timezone)
	if body.FullName == "" && body.Company == "" && body.Timezone == "" {
		utils.RespondValidationError(w, "Nothing to update", []string{"fullName", "company", "timezone"})
		return
	}
	if body.Timezone != "" {
		if _, err := time.LoadLocation(body.Timezone); err != nil {
			utils.RespondFieldErrors(w, map[string]string{"timezone": "must be an IANA timezone name"})
			return
		}
	}

	user, err := h.Store.UpdateProfile(r.Context(), userID, body)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Unable to update profile")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, user)
}
