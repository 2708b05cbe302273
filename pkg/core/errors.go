package core

import "errors"

var (
	// ErrFeatureAlreadyRegistered is returned when a second feature
	// claims an existing name. Duplicate registration is a configuration
	// conflict and fails fast.
	ErrFeatureAlreadyRegistered = errors.New("feature name already registered")

	// ErrCoreStopped is returned by Register when invoked after
	// FlushAndTearDown.
	ErrCoreStopped = errors.New("core is torn down")
)
