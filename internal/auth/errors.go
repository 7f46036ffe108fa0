package auth

import (
	"errors"

	"github.com/jobcard-dev/jobcard/internal/client"
	"github.com/jobcard-dev/jobcard/internal/errs"
)

// translateLoginError maps API client failures onto the error taxonomy.
// Whether the backend answered at all decides between a credential and a
// network failure.
func translateLoginError(err error) error {
	if errors.Is(err, client.ErrInvalidCredentials) {
		return &errs.CredentialError{Message: "Username and password are required."}
	}

	var respErr *client.ResponseError
	if errors.As(err, &respErr) {
		return &errs.CredentialError{StatusCode: respErr.StatusCode, Message: respErr.Detail}
	}

	var transportErr *client.TransportError
	if errors.As(err, &transportErr) {
		return &errs.NetworkError{Err: transportErr.Err}
	}

	return &errs.NetworkError{Err: err}
}
