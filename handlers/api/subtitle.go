package api

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/config"
	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/services/proxy"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
	"github.com/double-tu/youtube-subtitle-proxy/validation"
)

type SubtitleHandler struct {
	service   *proxy.Service
	validator *validation.Validator
	config    *config.Config
	logger    *logrus.Logger
}

func NewSubtitleHandler(service *proxy.Service, validator *validation.Validator, cfg *config.Config) *SubtitleHandler {
	return &SubtitleHandler{
		service:   service,
		validator: validator,
		config:    cfg,
		logger:    logrus.StandardLogger(),
	}
}

// HandleGetSubtitle handles GET /api/subtitle and its /api/timedtext
// alias. The reply mirrors the upstream timedtext contract plus the
// substitution headers.
func (h *SubtitleHandler) HandleGetSubtitle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	videoID := q.Get("v")
	if err := h.validator.ValidateVideoID(videoID); err != nil {
		respondError(w, r, err)
		return
	}

	sourceLang := q.Get("lang")
	if err := h.validator.ValidateLang(sourceLang); err != nil {
		respondError(w, r, err)
		return
	}
	if sourceLang == "" {
		sourceLang = h.config.DefaultSourceLang
	}

	targetLang := q.Get("tlang")
	if err := h.validator.ValidateLang(targetLang); err != nil {
		respondError(w, r, err)
		return
	}
	if targetLang == "" {
		targetLang = h.config.DefaultTargetLang
	}

	track := q.Get("kind")
	if track == "" {
		track = "asr"
	}

	format := h.validator.NormalizeFormat(q.Get("fmt"))

	req := proxy.Request{
		Key: models.RequestKey{
			VideoID:    videoID,
			SourceLang: sourceLang,
			TargetLang: targetLang,
			Track:      track,
			Fmt:        string(format),
		},
		Format:      format,
		OriginalURL: q.Get("original_url"),
	}

	result, err := h.service.Serve(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(result.Format))
	w.Header().Set("X-Translation-Status", result.TranslationState)
	w.Header().Set("X-Cache-Status", result.CacheStatus)
	w.Header().Set("X-Video-Id", videoID)
	if result.EstimatedSeconds > 0 {
		w.Header().Set("X-Estimated-Time", strconv.Itoa(result.EstimatedSeconds))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Body); err != nil {
		h.logger.WithError(err).Debug("Client went away mid-response")
	}
}

func contentTypeFor(f subtitle.Format) string {
	switch f {
	case subtitle.FormatJSON3:
		return "application/json; charset=utf-8"
	case subtitle.FormatSRV3:
		return "text/xml; charset=utf-8"
	case subtitle.FormatVTT:
		return "text/vtt; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}
