package web

// errors.go provides unified error responses for the web layer.
//
// Every error is logged with its technical details and the request id, and
// returned to the client as the operator message of its error code.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/labimport/internal/core"
	"github.com/JonMunkholm/labimport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// respondError logs err and writes its mapped message as JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
	)

	respondErrorJSON(w, ErrorResponse{Error: msg.Message, Action: msg.Action, Code: msg.Code}, statusCode)
}

// writeError writes a JSON error that has no underlying error value.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, message, code string) {
	logging.FromContext(r.Context()).Warn("request rejected",
		"path", r.URL.Path,
		"status", statusCode,
		"reason", message,
	)
	respondErrorJSON(w, ErrorResponse{Error: message, Code: code}, statusCode)
}

func respondErrorJSON(w http.ResponseWriter, body ErrorResponse, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
