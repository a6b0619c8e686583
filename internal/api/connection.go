package api

import (
	"net/http"

	"github.com/duskline/bunker/internal/httpserver"
)

type connectionResponse struct {
	AdminPubkey string   `json:"adminPubkey"`
	Relays      []string `json:"relays"`
	BunkerURI   string   `json:"bunkerUri"`
}

func (a *API) handleConnection(w http.ResponseWriter, r *http.Request) {
	uri := "bunker://" + a.adminPub
	for i, relay := range a.relays {
		sep := "?"
		if i > 0 {
			sep = "&"
		}
		uri += sep + "relay=" + relay
	}

	httpserver.Respond(w, http.StatusOK, connectionResponse{
		AdminPubkey: a.adminPub,
		Relays:      a.relays,
		BunkerURI:   uri,
	})
}
