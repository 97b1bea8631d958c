package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openballot/votectl/internal/ledger"
	"github.com/openballot/votectl/internal/protocol"
	"github.com/openballot/votectl/internal/registry"
	"github.com/openballot/votectl/internal/session"
	"github.com/openballot/votectl/internal/transport"
)

func newTestServer(t *testing.T) (*Server, *session.Coordinator, *transport.Loopback, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lb := transport.NewLoopback(64, transport.Faults{})
	reg := registry.New(5)
	coord := session.New(session.DefaultConfig(), reg, ledger.New(), lb, zerolog.Nop())
	srv := New("votectl-test", ":0", nil, coord, reg)
	return srv, coord, lb, reg
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	for _, path := range []string{"/health", "/ready"} {
		w := doJSON(t, srv, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, w.Code)
		}
	}
}

func TestControllerRegistrationLifecycle(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/controllers", `{"id":"ctl-a"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", w.Code, w.Body.String())
	}
	w = doJSON(t, srv, http.MethodPost, "/controllers", `{"id":"ctl-a"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/controllers", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty register: status %d", w.Code)
	}

	for i := 0; i < 4; i++ {
		w = doJSON(t, srv, http.MethodPost, "/controllers", fmt.Sprintf(`{"id":"ctl-%d"}`, i))
		if w.Code != http.StatusCreated {
			t.Fatalf("register %d: status %d", i, w.Code)
		}
	}
	w = doJSON(t, srv, http.MethodPost, "/controllers", `{"id":"ctl-overflow"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("overflow register: status %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodDelete, "/controllers/ctl-a", "")
	if w.Code != http.StatusOK {
		t.Fatalf("deregister: status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodDelete, "/controllers/ctl-a", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("deregister absent: status %d", w.Code)
	}
}

func TestRoundLifecycleOverHTTP(t *testing.T) {
	srv, coord, lb, _ := newTestServer(t)

	peer := lb.Connect("ctl-a")
	coord.HandleEvent(<-lb.Events(), time.Now())

	w := doJSON(t, srv, http.MethodPost, "/rounds", `{"ballot":"extend break?","deadline_seconds":60}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("start round: status %d body %s", w.Code, w.Body.String())
	}
	var started struct {
		RoundID uint32 `json:"round_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start response: %v", err)
	}

	w = doJSON(t, srv, http.MethodPost, "/rounds", `{"ballot":"again"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("second start: status %d", w.Code)
	}

	tallyPath := fmt.Sprintf("/rounds/%d/tally", started.RoundID)
	w = doJSON(t, srv, http.MethodGet, tallyPath, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("tally before close: status %d", w.Code)
	}

	// The prompted controller votes over the transport.
	<-peer.Recv()
	frame, err := protocol.Encode(protocol.Vote(started.RoundID, 1, 1), 64)
	if err != nil {
		t.Fatalf("encode vote: %v", err)
	}
	coord.HandleEvent(transport.Event{Kind: transport.EventFrame, ControllerID: "ctl-a", Frame: frame}, time.Now())

	w = doJSON(t, srv, http.MethodGet, "/rounds/current", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"closed"`) {
		t.Fatalf("current round: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodGet, tallyPath, "")
	if w.Code != http.StatusOK {
		t.Fatalf("tally: status %d body %s", w.Code, w.Body.String())
	}
	var tally struct {
		Counts map[string]int `json:"counts"`
		Total  int            `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tally); err != nil {
		t.Fatalf("decode tally: %v", err)
	}
	if tally.Total != 1 || tally.Counts["1"] != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}

	w = doJSON(t, srv, http.MethodGet, "/rounds/999/tally", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("tally unknown round: status %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/rounds/current/archive", "")
	if w.Code != http.StatusOK {
		t.Fatalf("archive: status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/rounds/current/archive", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("double archive: status %d", w.Code)
	}
}

func TestForceCloseOverHTTP(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/rounds/current/close", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("close without round: status %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/rounds", `{"ballot":"abort me"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("start round: status %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/rounds/current/close", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "closed") {
		t.Fatalf("force close: status %d body %s", w.Code, w.Body.String())
	}
}
