// Package service provides business logic services for Alexander DocStore.
package service

import "errors"

// Common service errors.
var (
	// ErrUploadState indicates an upload step was called out of order.
	ErrUploadState = errors.New("upload is not in the expected state")

	// ErrAlreadyReady indicates MarkReady was called twice.
	ErrAlreadyReady = errors.New("services are already initialized")
)
