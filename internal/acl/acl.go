// Package acl implements the ACL Evaluator (C3): a pure function over
// Policy Store state that decides allow/deny/unknown for a (key, client,
// method, kind) tuple. No example in the pack ships a generic
// policy-rule-matching library suited to this method+kind-filter shape, so
// this is plain in-repo control flow rather than a third-party rule engine.
package acl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/duskline/bunker/internal/store"
)

// Decision is the outcome of Evaluate.
type Decision int

const (
	Unknown Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Evaluate decides allow/deny/unknown for a signing request, per §4.3.
//
//  1. No KeyUser for (keyName, clientPubkey) → unknown.
//  2. Any SigningCondition method='*', allowed=false → deny (veto).
//  3. Build the kind set: {"all"} plus the numeric kind, if method is
//     sign_event and paramPrimary parses as an object with a numeric kind.
//  4. Find a condition matching method (and kind, if applicable) → if none,
//     unknown.
//  5. If the KeyUser is revoked and the match is allowed=true → deny.
//     Otherwise return the match's allowed value.
func Evaluate(ctx context.Context, st *store.Store, keyName, clientPubkey, method, paramPrimary string) (Decision, error) {
	keyUser, err := st.GetKeyUser(ctx, keyName, clientPubkey)
	if err != nil {
		return Unknown, nil // no row: unknown, not an error
	}

	conditions, err := st.ListSigningConditions(ctx, keyUser.ID)
	if err != nil {
		return Unknown, fmt.Errorf("acl: listing signing conditions: %w", err)
	}

	for _, c := range conditions {
		if c.Method == "*" && !c.Allowed {
			return Deny, nil
		}
	}

	kinds := kindSet(method, paramPrimary)

	var match *store.SigningCondition
	for i, c := range conditions {
		if c.Method != method {
			continue
		}
		if len(kinds) == 0 || c.KindFilter == "" {
			match = &conditions[i]
			break
		}
		if kinds[c.KindFilter] {
			match = &conditions[i]
			break
		}
	}
	if match == nil {
		return Unknown, nil
	}

	if keyUser.Revoked() && match.Allowed {
		return Deny, nil
	}
	if match.Allowed {
		return Allow, nil
	}
	return Deny, nil
}

// kindSet builds {"all"} plus the extracted numeric kind for sign_event
// requests whose paramPrimary parses as a JSON object with a numeric
// "kind" field. Other methods ignore the kind filter (empty set signals
// "don't filter by kind").
func kindSet(method, paramPrimary string) map[string]bool {
	if method != "sign_event" {
		return nil
	}

	set := map[string]bool{"all": true}

	var obj struct {
		Kind *int `json:"kind"`
	}
	if err := json.Unmarshal([]byte(paramPrimary), &obj); err == nil && obj.Kind != nil {
		set[fmt.Sprintf("%d", *obj.Kind)] = true
	}
	return set
}

// PermitAllRequests grants a blanket allow for method under scope. For
// sign_event this is normally called with kindFilter="all" — per Open
// Question (a), that exact string is what C3 compares against, so any
// reimplementation must keep literal "all" rather than a sentinel value.
func PermitAllRequests(ctx context.Context, st *store.Store, keyUserID uuid.UUID, method, kindFilter string) error {
	return st.PutSigningCondition(ctx, keyUserID, method, kindFilter, true)
}

// Veto writes the wildcard method='*' deny row that vetoes every request
// for a KeyUser regardless of other conditions.
func Veto(ctx context.Context, st *store.Store, keyUserID uuid.UUID) error {
	return st.PutSigningCondition(ctx, keyUserID, "*", "", false)
}
