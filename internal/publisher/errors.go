package publisher

import "errors"

var (
	// ErrUnauthenticated means the upstream did not accept the presented session.
	ErrUnauthenticated = errors.New("upstream session not authenticated")
	// ErrRejected means the upstream refused the post itself.
	ErrRejected = errors.New("upstream rejected request")
)
