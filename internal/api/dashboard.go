package api

import (
	"net/http"

	"github.com/duskline/bunker/internal/httpserver"
	"github.com/duskline/bunker/internal/store"
)

type dashboardCounts struct {
	Keys           int `json:"keys"`
	Apps           int `json:"apps"`
	PendingRequests int `json:"pendingRequests"`
}

type dashboardResponse struct {
	Counts         dashboardCounts       `json:"counts"`
	RecentAudit    []store.AuditLogEntry `json:"recentAudit"`
	ActivityBuckets []int                `json:"activityBuckets"`
}

// handleDashboard serves GET /dashboard: counts, the last 5 audit entries,
// and a 24-hour bucketed activity histogram.
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := a.st.ListKeyUsers(ctx)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	apps := 0
	for _, u := range users {
		if !u.Revoked() {
			apps++
		}
	}

	pending, err := a.st.ListPendingRequests(ctx, store.StatusPending, 50, 0)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	recent, err := a.st.ListAuditLog(ctx, 5)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	buckets, err := a.st.ActivityBuckets(ctx, 24)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, dashboardResponse{
		Counts: dashboardCounts{
			Keys:            len(a.keyMgr.ListKeys()),
			Apps:            apps,
			PendingRequests: len(pending),
		},
		RecentAudit:     recent,
		ActivityBuckets: buckets,
	})
}
