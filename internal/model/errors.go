package model

import "errors"

var (
	// ErrInvalidTimestamp reports a flow whose timestamp cannot be used
	// for timewindow resolution.
	ErrInvalidTimestamp = errors.New("invalid flow timestamp")

	// ErrUnknownTopic reports an envelope whose topic discriminator is
	// missing or not one of the defined topics.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrStoreUnavailable reports that the shared store rejected an
	// operation. Callers must surface or retry it; swallowing it would
	// corrupt the aggregation invariants.
	ErrStoreUnavailable = errors.New("store unavailable")
)
