package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSplitStocksPath(t *testing.T) {
	tests := []struct {
		path, ticker, view string
		ok                 bool
	}{
		{"/api/stocks/AAPL/chart", "AAPL", "chart", true},
		{"/api/stocks/AAPL", "AAPL", "", true},
		{"/api/stocks/AAPL/", "AAPL", "", true},
		{"/api/stocks/", "", "", true},
		{"/api/stocks/AAPL/chart/extra", "", "", false},
		{"/api/other/AAPL", "", "", false},
	}
	for _, tt := range tests {
		ticker, view, ok := splitStocksPath(tt.path)
		if ticker != tt.ticker || view != tt.view || ok != tt.ok {
			t.Errorf("splitStocksPath(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.path, ticker, view, ok, tt.ticker, tt.view, tt.ok)
		}
	}
}

func TestRequireMethod_SetsAllow(t *testing.T) {
	rr := httptest.NewRecorder()
	ok := RequireMethod(rr, httptest.NewRequest(http.MethodDelete, "/x", nil), http.MethodGet, http.MethodHead)
	if ok {
		t.Fatal("expected RequireMethod to reject DELETE")
	}
	if got := rr.Header().Get("Allow"); got != "GET, HEAD" {
		t.Errorf("Allow = %q, want %q", got, "GET, HEAD")
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	big := `{"tickers":["` + strings.Repeat("A", 2<<20) + `"]}`
	rr := httptest.NewRecorder()
	var v map[string]interface{}
	if DecodeJSON(rr, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(big)), &v) {
		t.Fatal("expected oversized body to be rejected")
	}
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(&mockSimulationService{})

	rr := httptest.NewRecorder()
	srv.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.handleVersion(rr, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"version"`) {
		t.Errorf("version = %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.handleConfig(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"provider":"yahoo"`) {
		t.Errorf("config = %d %s", rr.Code, rr.Body.String())
	}
}

func TestHandleShutdown_ForbiddenInProduction(t *testing.T) {
	srv := newTestServer(&mockSimulationService{})
	srv.app.Config.Environment = "production"

	rr := httptest.NewRecorder()
	srv.handleShutdown(rr, httptest.NewRequest(http.MethodPost, "/api/shutdown", nil))
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestHandleShutdown_SignalsChannel(t *testing.T) {
	srv := newTestServer(&mockSimulationService{})
	ch := make(chan struct{}, 1)
	srv.SetShutdownChannel(ch)

	rr := httptest.NewRecorder()
	srv.handleShutdown(rr, httptest.NewRequest(http.MethodPost, "/api/shutdown", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	<-ch
}

func TestHandleShutdown_RepeatRequestsDoNotBlock(t *testing.T) {
	srv := newTestServer(&mockSimulationService{})
	ch := make(chan struct{}, 1)
	srv.SetShutdownChannel(ch)

	if !srv.signalShutdown() {
		t.Fatal("first signal was dropped")
	}
	done := make(chan bool, 1)
	go func() { done <- srv.signalShutdown() }()
	select {
	case sent := <-done:
		if sent {
			t.Error("second signal should be dropped while the first is pending")
		}
	case <-time.After(time.Second):
		t.Fatal("second signal blocked on a full channel")
	}

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		srv.handleShutdown(rr, httptest.NewRequest(http.MethodPost, "/api/shutdown", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rr.Code)
		}
	}
	// Let both delayed signals fire against the full channel.
	time.Sleep(300 * time.Millisecond)
	<-ch
	select {
	case <-ch:
		t.Fatal("channel held more than one signal")
	default:
	}
}
