package webhook

import "errors"

var (
	// ErrNormalization matches every *NormalizationError.
	ErrNormalization = errors.New("webhook: payload not recognised")
	// ErrEventIgnored matches every *IgnoredError.
	ErrEventIgnored = errors.New("webhook: event ignored")
)

// NormalizationError explains why no payload shape matched.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return "normalize webhook payload: " + e.Reason
}

// Is makes errors.Is(err, ErrNormalization) hold.
func (e *NormalizationError) Is(target error) bool {
	return target == ErrNormalization
}

// IgnoredError reports a well-formed event that never deploys, such as a
// failed workflow run or a draft release.
type IgnoredError struct {
	Reason string
}

func (e *IgnoredError) Error() string {
	return "webhook event ignored: " + e.Reason
}

// Is makes errors.Is(err, ErrEventIgnored) hold.
func (e *IgnoredError) Is(target error) bool {
	return target == ErrEventIgnored
}
