package client

import (
	"errors"
	"fmt"
)

var (
	// ErrLoggedOut is returned once renewal has failed or the session was ended locally.
	// The caller must present a fresh login.
	ErrLoggedOut = errors.New("client: logged out")
	// ErrRefreshRejected reports a refresh endpoint that answered with an error status.
	ErrRefreshRejected = errors.New("client: refresh rejected")
)

// RefreshError carries the status and wire code of a rejected refresh call.
type RefreshError struct {
	Status int
	Code   string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("client: refresh rejected: %d %s", e.Status, e.Code)
}

func (e *RefreshError) Unwrap() error { return ErrRefreshRejected }
