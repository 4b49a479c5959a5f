package server

import (
	"encoding/json"
	"net/http"

	"github.com/bobmcallan/frontier/internal/models"
)

// simulateBody mirrors models.SimulationRequest but keeps tickers raw so a
// non-array value gets the same message as a missing one.
type simulateBody struct {
	Tickers       json.RawMessage `json:"tickers"`
	Period        string          `json:"period"`
	NumPortfolios int             `json:"num_portfolios"`
	Seed          uint64          `json:"seed"`
	Workers       int             `json:"workers"`
	Scheme        string          `json:"scheme"`
}

// decodeSimulationRequest parses the request body. Returns false after
// writing a 400 when the body is unusable.
func decodeSimulationRequest(w http.ResponseWriter, r *http.Request) (models.SimulationRequest, bool) {
	var body simulateBody
	if !DecodeJSON(w, r, &body) {
		return models.SimulationRequest{}, false
	}

	var tickers []string
	if len(body.Tickers) == 0 || json.Unmarshal(body.Tickers, &tickers) != nil || len(tickers) == 0 {
		WriteErrorWithCode(w, http.StatusBadRequest, "No tickers provided or invalid format", "invalid_input")
		return models.SimulationRequest{}, false
	}

	return models.SimulationRequest{
		Tickers:       tickers,
		Period:        body.Period,
		NumPortfolios: body.NumPortfolios,
		Seed:          body.Seed,
		Workers:       body.Workers,
		Scheme:        body.Scheme,
	}, true
}

// handleSimulate handles POST /api/simulate.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := decodeSimulationRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.app.SimulationService.Simulate(r.Context(), req)
	if err != nil {
		s.logger.Warn().Err(err).Strs("tickers", req.Tickers).Str("correlation_id", RequestID(r.Context())).Msg("Simulation failed")
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// handleSimulateChart handles POST /api/simulate/chart and returns a PNG.
func (s *Server) handleSimulateChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := decodeSimulationRequest(w, r)
	if !ok {
		return
	}

	png, err := s.app.SimulationService.SimulateChart(r.Context(), req)
	if err != nil {
		s.logger.Warn().Err(err).Strs("tickers", req.Tickers).Str("correlation_id", RequestID(r.Context())).Msg("Simulation chart failed")
		writeServiceError(w, err)
		return
	}

	WritePNG(w, png)
}
