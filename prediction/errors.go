package prediction

import "errors"

// Validation errors returned by New, Deserialize and UnmarshalJSON. Callers
// can match them with errors.Is.
var (
	ErrInstanceNotString     = errors.New("instance token must be a string")
	ErrSampleNotString       = errors.New("sample token must be a string")
	ErrPredictionNotArray    = errors.New("prediction must be an array")
	ErrProbabilitiesNotArray = errors.New("probabilities must be an array")
	ErrTooManyModes          = errors.New("too many modes")
	ErrModeCountMismatch     = errors.New("number of modes does not match number of probabilities")
	ErrTrajectoryShape       = errors.New("prediction must be shaped (modes, timesteps, 2)")
	ErrNonFinite             = errors.New("coordinates and probabilities must be finite")
)
