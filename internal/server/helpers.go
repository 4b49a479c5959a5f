package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bobmcallan/frontier/internal/interfaces"
	"github.com/bobmcallan/frontier/internal/optimizer"
	"github.com/bobmcallan/frontier/internal/services/simulation"
)

// maxBodyBytes caps simulation request bodies. A ticker list never gets close.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON encodes data as the response body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WritePNG sends a rendered chart. Charts depend on the seed and the day's
// prices, so they are never cached by intermediaries.
func WritePNG(w http.ResponseWriter, png []byte) {
	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// WriteError sends {"error": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteErrorWithCode(w, status, message, "")
}

// WriteErrorWithCode sends {"error": message, "code": code}.
func WriteErrorWithCode(w http.ResponseWriter, status int, message, code string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeServiceError picks the status for an error coming back from the
// simulation service. Input problems are 400, a blown request deadline is
// 504 and everything else is 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var tickerErr *simulation.TickerError
	switch {
	case errors.Is(err, simulation.ErrNoTickers):
		WriteErrorWithCode(w, http.StatusBadRequest, "No tickers provided or invalid format", "invalid_input")
	case errors.As(err, &tickerErr) && errors.Is(err, interfaces.ErrNoData):
		WriteErrorWithCode(w, http.StatusBadRequest, "No historical data found for ticker: "+tickerErr.Ticker, "no_data")
	case errors.Is(err, optimizer.ErrInsufficientHistory):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "insufficient_history")
	case errors.Is(err, optimizer.ErrInvalidInput):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_input")
	case errors.Is(err, context.DeadlineExceeded):
		WriteErrorWithCode(w, http.StatusGatewayTimeout, "Simulation exceeded the request deadline", "timeout")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// RequireMethod answers 405 with an Allow header unless r.Method is one of
// methods.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads a bounded JSON body into v, answering 400 on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// splitStocksPath breaks /api/stocks/{ticker}[/{view}] into its parts.
// ok is false when the path has more segments than that.
func splitStocksPath(path string) (ticker, view string, ok bool) {
	rest := strings.TrimPrefix(path, "/api/stocks/")
	if rest == path {
		return "", "", false
	}
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}
