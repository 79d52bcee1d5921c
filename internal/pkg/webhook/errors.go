package webhook

import "errors"

var (
	// ErrAuthentication covers a missing or bad signature, a stale timestamp
	// and an app ID mismatch. The sender only ever sees one generic status.
	ErrAuthentication = errors.New("webhook authentication failed")
	// ErrRateLimited is client-correctable and not logged as an error.
	ErrRateLimited      = errors.New("webhook rate limit exceeded")
	ErrMalformedPayload = errors.New("webhook payload malformed")
	ErrPayloadTooLarge  = errors.New("webhook payload too large")
	// ErrStorageUnavailable is transient; the provider retries the delivery.
	ErrStorageUnavailable = errors.New("webhook storage unavailable")
)
