package queue

import "errors"

var (
	ErrStopped = errors.New("publish queue stopped")
	ErrInvalid = errors.New("publish queue: invalid task")
)
