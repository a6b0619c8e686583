package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Middleware returns an HTTP middleware that authenticates the caller via
// session cookie, bearer token (PAT, session JWT, or OIDC JWT), or API key,
// storing the resulting Identity in the request context.
//
// Authentication precedence:
//  1. Session cookie (browser dashboard)
//  2. Authorization: Bearer <token>  →  PAT → session JWT → OIDC JWT
//  3. X-API-Key: <raw-key>
//
// If none succeed, the request is rejected with 401.
func Middleware(sessionMgr *SessionManager, oidcAuth *OIDCAuthenticator, patAuth *PATAuthenticator, apikeyAuth *APIKeyAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if sessionMgr != nil {
				if claims, err := sessionMgr.ValidateCookie(r); err == nil {
					identity = identityFromSession(claims)
				}
			}

			if identity == nil {
				if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
					rawToken := strings.TrimSpace(authHeader[len("Bearer "):])

					if strings.HasPrefix(rawToken, PATPrefix) && patAuth != nil {
						result, err := patAuth.Authenticate(r.Context(), rawToken)
						if err != nil {
							logger.Warn("PAT authentication failed", "error", err)
							respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid personal access token")
							return
						}
						identity = &Identity{
							Subject: result.DisplayName, Email: result.Email, DisplayName: result.DisplayName,
							Role: result.Role, Method: MethodPAT,
						}
					}

					if identity == nil && sessionMgr != nil {
						if claims, err := sessionMgr.ValidateToken(rawToken); err == nil {
							identity = identityFromSession(claims)
						}
					}

					if identity == nil {
						if oidcAuth == nil {
							logger.Warn("bearer token presented but OIDC is not configured")
							respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
							return
						}
						claims, err := oidcAuth.Authenticate(r.Context(), authHeader)
						if err != nil {
							logger.Warn("OIDC authentication failed", "error", err)
							respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
							return
						}
						identity = &Identity{Subject: claims.Subject, Email: claims.Email, Role: RoleAdmin, Method: MethodOIDC}
					}
				}
			}

			if identity == nil {
				if rawKey := r.Header.Get("X-API-Key"); rawKey != "" && apikeyAuth != nil {
					result, err := apikeyAuth.Authenticate(r.Context(), rawKey)
					if err != nil {
						logger.Warn("API key authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
						return
					}
					identity = &Identity{
						Subject: "apikey:" + result.KeyPrefix, Role: result.Role,
						APIKeyID: &result.APIKeyID, Method: MethodAPIKey,
					}
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromSession(claims *SessionClaims) *Identity {
	id := &Identity{Subject: claims.Subject, Email: claims.Email, Role: claims.Role, Method: claims.Method}
	if claims.Method == MethodLocal && claims.AdminID != "" {
		if parsed, err := uuid.Parse(claims.AdminID); err == nil {
			id.AdminID = &parsed
		}
	}
	return id
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
