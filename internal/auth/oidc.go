package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCClaims are the JWT claims extracted from the identity provider's ID token.
type OIDCClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

// OIDCAuthenticator validates OIDC JWTs issued by the single configured provider.
type OIDCAuthenticator struct {
	Verifier *oidc.IDTokenVerifier
}

// NewOIDCAuthenticator performs OIDC discovery against the issuer URL. This
// makes a network call to fetch the provider's public keys.
func NewOIDCAuthenticator(ctx context.Context, issuerURL, clientID string) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider %s: %w", issuerURL, err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &OIDCAuthenticator{Verifier: verifier}, nil
}

// Authenticate validates a Bearer token and returns the extracted claims.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, bearerToken string) (*OIDCClaims, error) {
	token := strings.TrimPrefix(bearerToken, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("empty bearer token")
	}

	idToken, err := a.Verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}
	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extracting claims: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	return &claims, nil
}

// OIDCFlowHandler drives the OAuth2 authorization-code login used by the
// dashboard's single-sign-on option. State is a short-lived, self-contained
// HMAC-free nonce stashed in a cookie rather than server-side storage, since
// there is only ever one relying party.
type OIDCFlowHandler struct {
	oauth2Cfg *oauth2.Config
	oidcAuth  *OIDCAuthenticator
	sessMgr   *SessionManager
	logger    *slog.Logger
}

// NewOIDCFlowHandler creates a handler for the OIDC authorization code flow.
func NewOIDCFlowHandler(cfg *oauth2.Config, a *OIDCAuthenticator, sm *SessionManager, logger *slog.Logger) *OIDCFlowHandler {
	return &OIDCFlowHandler{oauth2Cfg: cfg, oidcAuth: a, sessMgr: sm, logger: logger}
}

const oidcStateCookie = "bunker_oidc_state"

// HandleLogin redirects the browser to the identity provider.
func (h *OIDCFlowHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "internal", "failed to start OIDC flow")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name: oidcStateCookie, Value: state, Path: "/", HttpOnly: true, Secure: true,
		SameSite: http.SameSiteLaxMode, MaxAge: 300,
	})
	http.Redirect(w, r, h.oauth2Cfg.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback exchanges the authorization code, verifies the ID token, and
// issues a dashboard session.
func (h *OIDCFlowHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(oidcStateCookie)
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		respondErr(w, http.StatusBadRequest, "bad_request", "invalid OIDC state")
		return
	}

	tok, err := h.oauth2Cfg.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.Warn("oidc: code exchange failed", "error", err)
		respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
		return
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		respondErr(w, http.StatusUnauthorized, "unauthorized", "provider did not return an id_token")
		return
	}

	claims, err := h.oidcAuth.Authenticate(r.Context(), rawIDToken)
	if err != nil {
		h.logger.Warn("oidc: id token verification failed", "error", err)
		respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
		return
	}

	session := SessionClaims{Subject: claims.Subject, Email: claims.Email, Role: RoleAdmin, Method: MethodOIDC}
	if err := h.sessMgr.IssueCookie(w, session); err != nil {
		respondErr(w, http.StatusInternalServerError, "internal", "failed to issue session")
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
