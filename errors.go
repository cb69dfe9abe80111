// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/http"
)

// FieldValidationError is returned when a submitted field is malformed.
type FieldValidationError struct {
	Field   string
	Message string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// ConflictError is returned when a login or email is already taken.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is already in use", e.Field, e.Value)
}

// UnresolvedAccountError means an authenticated caller has no account
// record behind it.
type UnresolvedAccountError struct {
	Login string
}

func (e *UnresolvedAccountError) Error() string {
	return fmt.Sprintf("no account found for authenticated login %q", e.Login)
}

var (
	errNoRemoteUser        = errors.New("no authenticated caller")
	errInvalidCredentials  = errors.New("invalid credentials")
	errAccountNotActivated = errors.New("account is not activated")
)

// errorStatus maps an error onto the HTTP status and offending field
// (if any) a caller should see.
func errorStatus(err error) (int, string) {
	var (
		fieldErr    *FieldValidationError
		conflictErr *ConflictError
		unresolved  *UnresolvedAccountError
	)
	switch {
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, fieldErr.Field
	case errors.As(err, &conflictErr):
		return http.StatusConflict, conflictErr.Field
	case errors.As(err, &unresolved):
		return http.StatusInternalServerError, ""
	case errors.Is(err, errNoRemoteUser):
		return http.StatusUnauthorized, ""
	case errors.Is(err, errInvalidCredentials), errors.Is(err, errAccountNotActivated):
		return http.StatusForbidden, ""
	}
	return http.StatusBadRequest, ""
}

// isClientError reports whether err is a rejection the caller caused,
// as opposed to a failure on our side.
func isClientError(err error) bool {
	var (
		fieldErr    *FieldValidationError
		conflictErr *ConflictError
	)
	return errors.As(err, &fieldErr) || errors.As(err, &conflictErr) ||
		errors.Is(err, errNoRemoteUser) || errors.Is(err, errInvalidCredentials) ||
		errors.Is(err, errAccountNotActivated)
}
