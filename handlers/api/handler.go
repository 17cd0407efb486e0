package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/middleware"
)

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

// respondError writes the {error, message} body with the AppError's
// status code. Non-AppErrors become opaque 500s.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.Internal("respondError", err, "Internal server error")
	}

	logrus.WithFields(logrus.Fields{
		"error":      err,
		"kind":       appErr.Kind,
		"status":     appErr.Code,
		"request_id": middleware.RequestIDFrom(r.Context()),
		"path":       r.URL.Path,
	}).Error("Request error")

	respondJSON(w, r, appErr.Code, appErr)
}
