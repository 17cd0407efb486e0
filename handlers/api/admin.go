package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/services/proxy"
)

type AdminHandler struct {
	service *proxy.Service
	token   string
}

func NewAdminHandler(service *proxy.Service, token string) *AdminHandler {
	return &AdminHandler{service: service, token: token}
}

// HandleStats handles GET /admin/stats. With no token configured the
// endpoint is disabled.
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		respondError(w, r, err)
		return
	}

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, stats)
}

func (h *AdminHandler) authorize(r *http.Request) error {
	const op = "AdminHandler.authorize"

	if h.token == "" {
		return errors.Unauthorized(op, "admin endpoint disabled")
	}

	auth := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return errors.Unauthorized(op, "missing bearer token")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) != 1 {
		return errors.Unauthorized(op, "invalid token")
	}
	return nil
}
