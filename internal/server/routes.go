package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/bobmcallan/frontier/internal/common"
)

// registerRoutes mounts the API on mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	for path, h := range map[string]http.HandlerFunc{
		"/api/health":         s.handleHealth,
		"/api/version":        s.handleVersion,
		"/api/config":         s.handleConfig,
		"/api/shutdown":       s.handleShutdown,
		"/api/simulate/chart": s.handleSimulateChart,
		"/api/simulate":       s.handleSimulate,
		"/api/stocks/":        s.routeStocks,
	} {
		mux.HandleFunc(path, h)
	}
}

// routeStocks sends /api/stocks/{ticker} to the history handler and
// /api/stocks/{ticker}/chart to the chart handler.
func (s *Server) routeStocks(w http.ResponseWriter, r *http.Request) {
	ticker, view, ok := splitStocksPath(r.URL.Path)
	switch {
	case !ok:
		WriteError(w, http.StatusNotFound, "Not found")
	case ticker == "":
		WriteError(w, http.StatusBadRequest, "ticker is required in path")
	case view == "":
		s.handleStockHistory(w, r, ticker)
	case view == "chart":
		s.handleStockChart(w, r, ticker)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, common.VersionInfo())
}

// handleConfig reports the effective non-secret settings.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	cfg := s.app.Config
	WriteJSON(w, http.StatusOK, map[string]any{
		"environment":     cfg.Environment,
		"provider":        cfg.Clients.Provider,
		"request_timeout": cfg.Server.GetRequestTimeout().String(),
		"simulation": map[string]any{
			"default_portfolios": cfg.Simulation.DefaultPortfolios,
			"max_portfolios":     cfg.Simulation.MaxPortfolios,
			"max_tickers":        cfg.Simulation.MaxTickers,
			"workers":            cfg.Simulation.GetWorkers(),
			"max_workers":        cfg.Simulation.GetMaxWorkers(),
			"scheme":             cfg.Simulation.Scheme,
			"default_period":     cfg.Simulation.DefaultPeriod,
		},
		"runtime": map[string]any{
			"go_version": runtime.Version(),
			"num_cpu":    runtime.NumCPU(),
			"uptime":     time.Since(s.app.StartupTime).Round(time.Second).String(),
		},
	})
}

// handleShutdown stops a development server. In-flight simulations get the
// shutdown grace period from main to finish.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Str("correlation_id", RequestID(r.Context())).Msg("Shutdown requested via HTTP endpoint")
	WriteJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if s.shutdownChan != nil {
		time.AfterFunc(100*time.Millisecond, func() { s.signalShutdown() })
	}
}

// signalShutdown hands main one stop request. Repeat requests find the
// channel full and are dropped, so the timer goroutine never blocks.
func (s *Server) signalShutdown() bool {
	select {
	case s.shutdownChan <- struct{}{}:
		return true
	default:
		return false
	}
}
