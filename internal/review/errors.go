package review

import "errors"

var (
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrDuplicateEntry    = errors.New("document is already in the queue")
	ErrIndexOutOfBounds  = errors.New("queue index out of bounds")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrUnauthenticated   = errors.New("user not authenticated")
	ErrNotLoaded         = errors.New("workspace not loaded")
)

const (
	MinRating = 1
	MaxRating = 5
)

// ValidRating reports whether r can be stored as a rating.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
