package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Wire error kinds. These appear in JSON error bodies and in the
// error_code column of job rows.
const (
	KindInvalidVideoID  = "invalid_video_id"
	KindInvalidLanguage = "invalid_language"
	KindYouTubeAPI      = "youtube_api_error"
	KindTranslation     = "translation_error"
	KindInternal        = "internal_error"
	KindUnauthorized    = "unauthorized"
)

type AppError struct {
	Code    int    `json:"-"`
	Kind    string `json:"error"`
	Message string `json:"message"`
	Op      string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func InvalidVideoID(op string, message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Kind:    KindInvalidVideoID,
		Message: message,
		Op:      op,
	}
}

func InvalidLanguage(op string, message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Kind:    KindInvalidLanguage,
		Message: message,
		Op:      op,
	}
}

func YouTubeAPI(op string, err error, message string) *AppError {
	return &AppError{
		Code:    http.StatusServiceUnavailable,
		Kind:    KindYouTubeAPI,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func Translation(op string, err error, message string) *AppError {
	return &AppError{
		Code:    http.StatusBadGateway,
		Kind:    KindTranslation,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func Internal(op string, err error, message string) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Kind:    KindInternal,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func Unauthorized(op string, message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Kind:    KindUnauthorized,
		Message: message,
		Op:      op,
	}
}

// KindOf returns the wire kind of err, or internal_error for anything
// that is not an *AppError.
func KindOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind string) bool {
	return KindOf(err) == kind
}
