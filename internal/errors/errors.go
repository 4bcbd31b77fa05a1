package errors

import "errors"

var (
	ErrCallbackURLRequired  = errors.New("CALLBACK_URL environment variable is required")
	ErrClientIDRequired     = errors.New("OAuth client_id is required")
	ErrUnsupportedProvider  = errors.New("unsupported identity provider")
	ErrUnsupportedDirectory = errors.New("unsupported account directory")
	ErrNoSessionKeys        = errors.New("no valid session keys found")
)
