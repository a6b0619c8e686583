package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// LocalAdminLoginRequest is the JSON body for POST /auth/local.
type LocalAdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LocalAdminLoginResponse is the JSON response for a successful local admin login.
type LocalAdminLoginResponse struct {
	Token      string   `json:"token"`
	MustChange bool     `json:"must_change"`
	User       UserInfo `json:"user"`
}

// UserInfo is the public identity information returned in auth responses.
type UserInfo struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// ChangePasswordRequest is the JSON body for POST /auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// AuthConfigResponse tells the dashboard which auth methods are available.
type AuthConfigResponse struct {
	OIDCEnabled  bool   `json:"oidc_enabled"`
	OIDCName     string `json:"oidc_name"`
	LocalEnabled bool   `json:"local_enabled"`
}

// LoginRateLimiter is the subset of RateLimiter used by LocalAdminHandler,
// declared as an interface so the handler can be tested without Redis.
type LoginRateLimiter interface {
	Check(ctx context.Context, ip string) (*RateLimitResult, error)
	Record(ctx context.Context, ip string) error
	Reset(ctx context.Context, ip string) error
}

// LocalAdminHandler handles the single local-administrator login and
// password-rotation endpoints (A3).
type LocalAdminHandler struct {
	sessionMgr  *SessionManager
	store       Store
	logger      *slog.Logger
	rateLimiter LoginRateLimiter
	oidcEnabled bool
}

// NewLocalAdminHandler creates a new local admin handler.
func NewLocalAdminHandler(sm *SessionManager, store Store, logger *slog.Logger, rl LoginRateLimiter, oidcEnabled bool) *LocalAdminHandler {
	return &LocalAdminHandler{sessionMgr: sm, store: store, logger: logger, rateLimiter: rl, oidcEnabled: oidcEnabled}
}

// HandleLocalLogin authenticates the local administrator with username/password.
func (h *LocalAdminHandler) HandleLocalLogin(w http.ResponseWriter, r *http.Request) {
	var req LocalAdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondErr(w, http.StatusBadRequest, "bad_request", "username and password are required")
		return
	}

	ip := clientIP(r)
	if h.rateLimiter != nil {
		result, err := h.rateLimiter.Check(r.Context(), ip)
		if err != nil {
			h.logger.Error("rate limit check failed", "error", err)
		} else if !result.Allowed {
			retryAfter := int(time.Until(result.RetryAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			respondJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": "rate_limited", "message": "too many login attempts", "retry_after": retryAfter,
			})
			return
		}
	}

	admin, err := h.store.FindDashboardAdmin(r.Context(), req.Username)
	if err != nil {
		h.logger.Warn("local admin login: lookup failed", "username", req.Username, "error", err)
		if h.rateLimiter != nil {
			_ = h.rateLimiter.Record(r.Context(), ip)
		}
		respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		if h.rateLimiter != nil {
			_ = h.rateLimiter.Record(r.Context(), ip)
		}
		respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		return
	}

	if h.rateLimiter != nil {
		_ = h.rateLimiter.Reset(r.Context(), ip)
	}

	go func() {
		_ = h.store.UpdateDashboardAdminLastLogin(context.Background(), admin.ID)
	}()

	claims := SessionClaims{
		Subject: admin.Username,
		Email:   admin.Username + "@local",
		Role:    RoleAdmin,
		AdminID: admin.ID.String(),
		Method:  MethodLocal,
	}

	token, err := h.sessionMgr.IssueToken(claims)
	if err != nil {
		h.logger.Error("local admin login: issuing token", "error", err)
		respondErr(w, http.StatusInternalServerError, "internal", "failed to issue token")
		return
	}
	_ = h.sessionMgr.IssueCookie(w, claims)

	respondJSON(w, http.StatusOK, LocalAdminLoginResponse{
		Token:      token,
		MustChange: admin.MustChange,
		User: UserInfo{
			ID: admin.ID.String(), Email: claims.Email, DisplayName: "Administrator", Role: RoleAdmin,
		},
	})
}

// HandleChangePassword handles the forced or voluntary password rotation flow.
func (h *LocalAdminHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		respondErr(w, http.StatusBadRequest, "bad_request", "current_password and new_password are required")
		return
	}
	if err := validatePassword(req.NewPassword); err != nil {
		respondErr(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id := FromContext(r.Context())
	if id == nil || id.Method != MethodLocal || id.AdminID == nil {
		respondErr(w, http.StatusBadRequest, "bad_request", "password change is only available for the local admin account")
		return
	}

	currentHash, err := h.store.GetDashboardAdminPasswordHash(r.Context(), *id.AdminID)
	if err != nil {
		h.logger.Error("change password: admin lookup", "error", err)
		respondErr(w, http.StatusInternalServerError, "internal", "failed to look up admin")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(req.CurrentPassword)); err != nil {
		respondErr(w, http.StatusUnauthorized, "unauthorized", "current password is incorrect")
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), 12)
	if err != nil {
		h.logger.Error("change password: hashing", "error", err)
		respondErr(w, http.StatusInternalServerError, "internal", "failed to hash password")
		return
	}
	if err := h.store.UpdateDashboardAdminPassword(r.Context(), *id.AdminID, string(newHash), false); err != nil {
		h.logger.Error("change password: update", "error", err)
		respondErr(w, http.StatusInternalServerError, "internal", "failed to update password")
		return
	}

	newClaims := SessionClaims{Subject: id.Subject, Email: id.Email, Role: id.Role, AdminID: id.AdminID.String(), Method: MethodLocal}
	newToken, err := h.sessionMgr.IssueToken(newClaims)
	if err != nil {
		h.logger.Error("change password: issuing new token", "error", err)
		respondErr(w, http.StatusInternalServerError, "internal", "failed to issue new token")
		return
	}
	_ = h.sessionMgr.IssueCookie(w, newClaims)

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "token": newToken})
}

// HandleAuthConfig reports which login methods the dashboard should offer.
func (h *LocalAdminHandler) HandleAuthConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, AuthConfigResponse{
		OIDCEnabled: h.oidcEnabled, OIDCName: "Sign in with SSO", LocalEnabled: true,
	})
}

// HandleMe returns the caller's current identity.
func (h *LocalAdminHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	if id == nil {
		respondErr(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}
	respondJSON(w, http.StatusOK, UserInfo{Email: id.Email, DisplayName: id.DisplayName, Role: id.Role})
}

// HandleLogout clears the session cookie.
func (h *LocalAdminHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessionMgr.ClearCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validatePassword enforces a minimum bar: >= 12 chars, upper+lower, number or symbol.
func validatePassword(pw string) error {
	if len(pw) < 12 {
		return fmt.Errorf("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasDigitOrSymbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			hasDigitOrSymbol = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasDigitOrSymbol {
		return fmt.Errorf("password must contain at least one number or symbol")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
