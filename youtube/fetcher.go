// Package youtube fetches original timed-text tracks from the upstream
// endpoint and normalizes them into the internal cue list.
package youtube

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type Fetcher struct {
	client *http.Client
	config Config
	logger *logrus.Logger
}

// Result carries both the raw upstream bytes (replied to the client
// verbatim on a miss) and the normalized cues for the pipeline.
type Result struct {
	Raw    []byte
	Format subtitle.Format
	Cues   []subtitle.Cue
}

func NewFetcher(cfg Config) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: logrus.StandardLogger(),
	}
}

// Fetch retrieves the original subtitle for key. originalURL, when
// given, is used instead of the constructed timedtext URL; it must
// point at a YouTube host.
func (f *Fetcher) Fetch(ctx context.Context, key models.RequestKey, originalURL string) (*Result, error) {
	const op = "Fetcher.Fetch"

	target, err := f.requestURL(key, originalURL)
	if err != nil {
		return nil, errors.YouTubeAPI(op, err, "invalid upstream subtitle URL")
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to build upstream request")
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept-Language", key.SourceLang+",en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.YouTubeAPI(op, err, "upstream fetch timed out")
		}
		return nil, errors.YouTubeAPI(op, err, "upstream fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.YouTubeAPI(op,
			pkgerrors.Errorf("upstream returned status %d", resp.StatusCode),
			"upstream returned non-2xx status")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.YouTubeAPI(op, err, "failed to read upstream body")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.YouTubeAPI(op, nil, "upstream returned an empty subtitle document")
	}

	format := subtitle.Sniff(raw)
	codec, err := subtitle.ForFormat(format)
	if err != nil {
		return nil, errors.Internal(op, err, "no codec for sniffed format")
	}

	cues, err := codec.Parse(raw)
	if err != nil {
		return nil, errors.YouTubeAPI(op, pkgerrors.Wrap(err, "parse upstream subtitle"),
			"upstream returned a malformed subtitle document")
	}
	if len(cues) == 0 {
		return nil, errors.YouTubeAPI(op, nil, "upstream subtitle contains no cues")
	}

	f.logger.WithFields(logrus.Fields{
		"video_id": key.VideoID,
		"format":   format,
		"cues":     len(cues),
	}).Debug("Fetched upstream subtitle")

	return &Result{Raw: raw, Format: format, Cues: cues}, nil
}

func (f *Fetcher) requestURL(key models.RequestKey, originalURL string) (string, error) {
	if originalURL != "" {
		parsed, err := url.Parse(originalURL)
		if err != nil {
			return "", pkgerrors.Wrap(err, "parse original_url")
		}
		if parsed.Scheme != "https" && parsed.Scheme != "http" {
			return "", pkgerrors.Errorf("unsupported scheme %q", parsed.Scheme)
		}
		host := parsed.Hostname()
		if !strings.HasSuffix(host, ".youtube.com") && host != "youtube.com" {
			return "", pkgerrors.Errorf("original_url host %q is not a YouTube host", host)
		}
		return originalURL, nil
	}

	base, err := url.Parse(f.config.BaseURL)
	if err != nil {
		return "", pkgerrors.Wrap(err, "parse base url")
	}

	q := base.Query()
	q.Set("v", key.VideoID)
	q.Set("lang", key.SourceLang)
	if key.Track != "" {
		q.Set("kind", key.Track)
	}
	q.Set("fmt", key.Fmt)
	base.RawQuery = q.Encode()

	return base.String(), nil
}
