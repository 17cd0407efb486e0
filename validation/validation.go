// Package validation checks request parameters before they reach the
// dispatcher.
package validation

import (
	"regexp"

	"github.com/double-tu/youtube-subtitle-proxy/config"
	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
)

var (
	// YouTube video IDs are exactly 11 URL-safe base64 characters.
	videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

	// BCP-47-ish: a primary subtag plus optional subtags, e.g. "en",
	// "zh-CN", "pt-BR", "zh-Hans".
	langRe = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)
)

type Validator struct {
	config *config.Config
}

func NewValidator(cfg *config.Config) *Validator {
	return &Validator{config: cfg}
}

func (v *Validator) ValidateVideoID(id string) error {
	const op = "Validator.ValidateVideoID"

	if id == "" {
		return errors.InvalidVideoID(op, "video id is required")
	}
	if !videoIDRe.MatchString(id) {
		return errors.InvalidVideoID(op, "video id must be 11 URL-safe characters")
	}
	return nil
}

// ValidateLang checks a language tag. Empty tags are allowed; the
// dispatcher substitutes the configured defaults.
func (v *Validator) ValidateLang(tag string) error {
	const op = "Validator.ValidateLang"

	if tag == "" {
		return nil
	}
	if len(tag) > 10 || !langRe.MatchString(tag) {
		return errors.InvalidLanguage(op, "malformed language tag")
	}
	return nil
}

// NormalizeFormat canonicalizes the fmt parameter. Unknown values fall
// back to json3, matching the upstream timedtext endpoint's behavior.
func (v *Validator) NormalizeFormat(fmt string) subtitle.Format {
	f, err := subtitle.ParseFormat(fmt)
	if err != nil {
		return subtitle.FormatJSON3
	}
	return f
}
