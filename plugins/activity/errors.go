package activity

import "errors"

var (
	// ErrNotSetUp is returned when frames arrive before Setup.
	ErrNotSetUp = errors.New("activity plugin not set up")

	// ErrAlreadySetUp is returned by a second call to Setup.
	ErrAlreadySetUp = errors.New("activity plugin already set up")

	// ErrAlreadyReduced is returned by Process or Reduce once Reduce has run.
	ErrAlreadyReduced = errors.New("activity plugin already reduced")

	// ErrCaptionFailed wraps a captioner error under the FailVideo policy.
	ErrCaptionFailed = errors.New("caption failed")
)
