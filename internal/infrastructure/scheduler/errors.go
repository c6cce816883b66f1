package scheduler

import "errors"

var (
	// ErrJobNotFound is returned when triggering an unknown job
	ErrJobNotFound = errors.New("job not found")

	// ErrJobLocked is returned when another run of the job holds its lock
	ErrJobLocked = errors.New("job is already running")

	// ErrInvalidConfig is returned when a job is registered without a name, interval or body
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
