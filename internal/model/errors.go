// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification with errors.Is across package
// boundaries. Handlers map these to HTTP status codes.
var (
	// ErrModelNotLoaded indicates no snapshot has been published yet.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrUserNotFound indicates the requested user is not present in the
	// active snapshot.
	ErrUserNotFound = errors.New("user not found in model")

	// ErrDataSource indicates a failure reading training data.
	ErrDataSource = errors.New("data source failure")

	// ErrTraining indicates a model training or quality-gate failure.
	ErrTraining = errors.New("training failure")

	// ErrStorage indicates an artifact read or write failure.
	ErrStorage = errors.New("artifact storage failure")

	// ErrLeaseHeld indicates another process holds the training lease.
	ErrLeaseHeld = errors.New("training lease held by another process")
)

// ValidationError describes why a candidate snapshot was rejected by the
// store. A rejected Publish leaves the active snapshot untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid snapshot: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
