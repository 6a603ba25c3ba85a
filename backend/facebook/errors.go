package facebook

import (
	"errors"
	"fmt"
)

var (
	ErrTokenExpired = errors.New("facebook access token expired or revoked")
	ErrRateLimited  = errors.New("facebook rate limit reached")
	ErrNotConnected = errors.New("facebook account not connected")
	ErrInvalidID    = errors.New("facebook object id must be numeric")
)

// GraphError is the error envelope returned by the Graph API.
type GraphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
	HTTPStatus   int    `json:"-"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph api error %d (%s): %s", e.Code, e.Type, e.Message)
}

func (e *GraphError) Is(target error) bool {
	switch target {
	case ErrTokenExpired:
		return e.Code == 190
	case ErrRateLimited:
		// application, user, page and ad account level throttling
		return e.Code == 4 || e.Code == 17 || e.Code == 32 || e.Code == 613
	}
	return false
}
