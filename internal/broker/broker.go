// Package broker implements the Authorization Broker (C5): it persists a
// PendingRequest, then resolves it either via the HTTP approval page (100ms
// poll against the Policy Store) or, when no public baseUrl is configured,
// by forwarding an acl RPC to the Admin Channel (C6) under a 10s timer.
// Each call is an independent wait; nothing here serialises across requests.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/duskline/bunker/internal/acl"
	"github.com/duskline/bunker/internal/signer"
	"github.com/duskline/bunker/internal/store"
	"github.com/duskline/bunker/pkg/slack"
)

const (
	pollInterval = 100 * time.Millisecond
	pendingTTL   = 60 * time.Second
	adminTimeout = 10 * time.Second
)

// AdminVerdict is the relay admin path's decision outcome.
type AdminVerdict string

const (
	VerdictAllow  AdminVerdict = "allow"
	VerdictDeny   AdminVerdict = "deny"
	VerdictAlways AdminVerdict = "always"
	VerdictNever  AdminVerdict = "never"
)

// AdminForwarder races an acl RPC across every whitelisted admin and
// returns the first reply. internal/admin.Channel implements this.
type AdminForwarder interface {
	ForwardACL(ctx context.Context, keyName, remotePubkey, method, param, description string) (AdminVerdict, error)
}

var ErrRejected = errors.New("broker: request denied")

// Broker is the C5 Authorization Broker.
type Broker struct {
	st       *store.Store
	baseURL  string
	admin    AdminForwarder
	notifier *slack.Notifier
}

// New constructs a Broker. admin may be nil until the Admin Channel has
// started; the relay admin path then fails closed. notifier may be nil,
// in which case the A5 "new pending request" message is skipped.
func New(st *store.Store, baseURL string, admin AdminForwarder, notifier *slack.Notifier) *Broker {
	return &Broker{st: st, baseURL: baseURL, admin: admin, notifier: notifier}
}

// RequestAuthorization implements internal/signer.Authorizer.
func (b *Broker) RequestAuthorization(ctx context.Context, notifier signer.Notifier, keyName, requestID, clientPubkey, method string, params []string) ([]string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("broker: marshaling params: %w", err)
	}

	pr, err := b.st.CreatePendingRequest(ctx, requestID, keyName, clientPubkey, method, string(paramsJSON))
	if err != nil {
		return nil, fmt.Errorf("broker: persisting pending request: %w", err)
	}

	if b.baseURL != "" {
		url := fmt.Sprintf("%s/requests/%s", strings.TrimRight(b.baseURL, "/"), pr.RequestID)
		if err := notifier.SendAuthURL(ctx, clientPubkey, requestID, url); err != nil {
			return nil, fmt.Errorf("broker: sending auth_url: %w", err)
		}
		if b.notifier != nil {
			_ = b.notifier.NotifyPendingRequest(ctx, slack.PendingRequestInfo{
				RequestID:  pr.RequestID,
				KeyName:    keyName,
				Method:     method,
				ApproveURL: url,
			})
		}
		return b.pollPendingRequest(ctx, pr.RequestID)
	}

	return b.forwardToAdmins(ctx, keyName, requestID, clientPubkey, method, params)
}

// pollPendingRequest polls the store at 100ms intervals until the request is
// decided or the 60s window elapses, per §4.5.
func (b *Broker) pollPendingRequest(ctx context.Context, requestID string) ([]string, error) {
	deadline := time.Now().Add(pendingTTL)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			pr, err := b.st.GetPendingRequest(ctx, requestID)
			if err != nil {
				return nil, fmt.Errorf("broker: polling pending request: %w", err)
			}
			if pr.Allowed == nil {
				if time.Now().After(deadline) {
					return nil, ErrRejected
				}
				continue
			}
			if !*pr.Allowed {
				return nil, ErrRejected
			}

			var approved []string
			if err := json.Unmarshal([]byte(pr.Params), &approved); err != nil {
				return nil, fmt.Errorf("broker: unmarshaling approved params: %w", err)
			}
			return approved, nil
		}
	}
}

// forwardToAdmins implements the relay admin path: no public baseUrl, so an
// acl RPC goes out to every whitelisted admin npub over the Admin Channel.
func (b *Broker) forwardToAdmins(ctx context.Context, keyName, requestID, clientPubkey, method string, params []string) ([]string, error) {
	if b.admin == nil {
		return nil, ErrRejected
	}

	var param string
	if len(params) > 0 {
		param = params[0]
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, adminTimeout)
	defer cancel()

	verdict, err := b.admin.ForwardACL(timeoutCtx, keyName, clientPubkey, method, param, fmt.Sprintf("%s request from %s", method, clientPubkey))
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrRejected
		}
		return nil, fmt.Errorf("broker: forwarding to admins: %w", err)
	}

	switch verdict {
	case VerdictAllow:
		return params, nil
	case VerdictDeny:
		return nil, ErrRejected
	case VerdictAlways:
		keyUser, err := b.st.GetKeyUser(ctx, keyName, clientPubkey)
		if err != nil {
			return nil, fmt.Errorf("broker: resolving key user for always-allow: %w", err)
		}
		if err := acl.PermitAllRequests(ctx, b.st, keyUser.ID, method, blanketKindFilter(method)); err != nil {
			return nil, fmt.Errorf("broker: persisting always-allow: %w", err)
		}
		return params, nil
	case VerdictNever:
		keyUser, err := b.st.GetKeyUser(ctx, keyName, clientPubkey)
		if err != nil {
			return nil, fmt.Errorf("broker: resolving key user for veto: %w", err)
		}
		if err := acl.Veto(ctx, b.st, keyUser.ID); err != nil {
			return nil, fmt.Errorf("broker: persisting veto: %w", err)
		}
		return nil, ErrRejected
	default:
		return nil, ErrRejected
	}
}

// blanketKindFilter is the SigningCondition kindFilter an "always" verdict
// writes: "all" for sign_event, so the grant covers every kind per spec §8
// Scenario 1 rather than just the kind of the request that triggered it;
// "" (no kind filtering) for every other method.
func blanketKindFilter(method string) string {
	if method == "sign_event" {
		return "all"
	}
	return ""
}
