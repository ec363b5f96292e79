package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument     = 1000
	ErrCodeInvalidJSON         = 1001
	ErrCodeRequestTooLarge     = 1002
	ErrCodeInvalidID           = 1003
	ErrCodeMissingRequired     = 1004
	ErrCodeInvalidName         = 1005
	ErrCodeInvalidTimestamp    = 1006
	ErrCodeConflictingWatered  = 1007
	ErrCodeDisallowedMediaType = 1008
	ErrCodeMediaTypeMismatch   = 1009
	ErrCodeMissingImage        = 1010

	// Domain state (2xxx)
	ErrCodePlantNotFound  = 2001
	ErrCodeStorageCorrupt = 2002

	// Limits (3xxx)
	ErrCodeResourceExhausted = 3001

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
	ErrCodeImageFailure = 4003
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 404:
		return ErrCodePlantNotFound
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
