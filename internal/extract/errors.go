package extract

import "errors"

var (
	ErrProviderUnavailable = errors.New("extraction service unavailable")
	ErrCredentialRejected  = errors.New("credential rejected by extraction service")
	ErrRateLimited         = errors.New("extraction service rate limit or quota exceeded")
	ErrRequestRejected     = errors.New("extraction request rejected")
	ErrInferenceTimeout    = errors.New("extraction timed out")
	ErrInvalidResponse     = errors.New("extraction service returned invalid response")
)
