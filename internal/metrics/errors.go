package metrics

import "codeberg.org/mutker/blowerctl/internal/errors"

const (
	ErrNotInitialized = errors.ErrorCode("metrics_not_initialized")
)
