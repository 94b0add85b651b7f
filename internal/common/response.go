package common

import (
	"encoding/json"
	"net/http"

	"noteflow/internal/platform/logger"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RespondWithError(w http.ResponseWriter, status int, message string) {
	RespondWithJSON(w, status, ErrorResponse{Error: message})
}

// RespondWithErr writes err with the status and code its sentinel maps to.
// Unclassified errors are logged and reported generically.
func RespondWithErr(w http.ResponseWriter, err error) {
	status := HTTPStatusFromError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Component("http").WithError(err).Error("Unhandled request error")
		msg = "Internal server error"
	}
	RespondWithJSON(w, status, ErrorResponse{Error: msg, Code: ErrorCode(err)})
}

func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to marshal JSON response","code":"internal"}`))
		return
	}
	w.WriteHeader(status)
	w.Write(body)
}

func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
