package protocol

import "errors"

// Failure categories shared by every client in the module. Component errors
// wrap one of these so callers can branch with errors.Is.
var (
	// ErrNetwork covers unreachable endpoints and non-2xx responses.
	ErrNetwork = errors.New("network failure")
	// ErrMalformedResponse covers undecodable bodies and missing fields.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrNoInstructions means the swap aggregator returned nothing usable.
	ErrNoInstructions = errors.New("no usable swap instructions")
	// ErrConfirmationTimeout means the confirmation poll ran out of attempts
	// without observing a settled status. The transaction may still land.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	// ErrValidation covers missing caller-supplied parameters.
	ErrValidation = errors.New("validation failure")
)
