package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
)

var upgrader = websocket.Upgrader{}

func TestSubscribeSendsREQFrame(t *testing.T) {
	received := make(chan []json.RawMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		defer ws.Close()
		var msg []json.RawMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		received <- msg
	}))
	defer srv.Close()

	conn, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if err := conn.Subscribe("sub-1", "deadbeef", 1000); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	select {
	case msg := <-received:
		if len(msg) != 3 {
			t.Fatalf("got %d-element frame, want 3 (REQ, subID, filter)", len(msg))
		}
		var frameType, subID string
		if err := json.Unmarshal(msg[0], &frameType); err != nil || frameType != "REQ" {
			t.Errorf("frame[0] = %s, want \"REQ\"", msg[0])
		}
		if err := json.Unmarshal(msg[1], &subID); err != nil || subID != "sub-1" {
			t.Errorf("frame[1] = %s, want \"sub-1\"", msg[1])
		}
		var filter struct {
			Kinds []int    `json:"kinds"`
			PTag  []string `json:"#p"`
			Since int64    `json:"since"`
		}
		if err := json.Unmarshal(msg[2], &filter); err != nil {
			t.Fatalf("unmarshaling filter: %v", err)
		}
		if len(filter.Kinds) != 1 || filter.Kinds[0] != 24133 {
			t.Errorf("filter.Kinds = %v, want [24133]", filter.Kinds)
		}
		if len(filter.PTag) != 1 || filter.PTag[0] != "deadbeef" {
			t.Errorf("filter.#p = %v, want [deadbeef]", filter.PTag)
		}
		if filter.Since != 1000 {
			t.Errorf("filter.since = %d, want 1000", filter.Since)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the REQ frame")
	}
}

func TestReadEvent_SkipsControlFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		defer ws.Close()

		ev := nostr.Event{PubKey: "deadbeef", Kind: 24133, Content: "hello"}

		_ = ws.WriteJSON([]any{"EOSE", "sub-1"})
		_ = ws.WriteJSON([]any{"NOTICE", "heads up"})
		_ = ws.WriteJSON([]any{"EVENT", "sub-1", ev})

		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	conn, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	ev, err := conn.ReadEvent(2 * time.Second)
	if err != nil {
		t.Fatalf("ReadEvent() error: %v", err)
	}
	if ev.PubKey != "deadbeef" || ev.Content != "hello" {
		t.Errorf("ReadEvent() = %+v, unexpected fields", ev)
	}
}
