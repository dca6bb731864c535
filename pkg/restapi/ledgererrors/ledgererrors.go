/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledgererrors defines the error discriminants carried in the Err arm of every ledger response.
package ledgererrors

// Code is a ledger error discriminant. It is the only machine-readable part of a ledger error.
type Code string

// Ledger error discriminants.
const (
	InvalidInput     Code = "InvalidInput"
	NotFound         Code = "NotFound"
	AlreadyExists    Code = "AlreadyExists"
	UpdateConflict   Code = "UpdateConflict"
	Unauthorized     Code = "Unauthorized"
	DocumentNotReady Code = "DocumentNotReady"
	ConsentRequired  Code = "ConsentRequired"
	ContextNotFound  Code = "ContextNotFound"
	// Uninitialized is reported while the serving replica has not caught up with the context yet.
	Uninitialized Code = "Uninitialized"
)

// Known reports whether c is one of the discriminants above.
func (c Code) Known() bool {
	switch c {
	case InvalidInput, NotFound, AlreadyExists, UpdateConflict, Unauthorized,
		DocumentNotReady, ConsentRequired, ContextNotFound, Uninitialized:
		return true
	default:
		return false
	}
}

// HasPayload reports whether the variant carries a string payload rather than being a unit variant.
func (c Code) HasPayload() bool {
	return c == InvalidInput || c == UpdateConflict
}

// Error is a ledger error: a discriminant with an optional detail.
type Error struct {
	Code   Code
	Detail string
}

// New returns a unit-variant ledger error.
func New(code Code) *Error {
	return &Error{Code: code}
}

// WithDetail returns a ledger error carrying a detail message.
func WithDetail(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Error uses the payload for string variants and the discriminant name for unit variants.
func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}

	return string(e.Code)
}

// Is matches any ledger error with the same discriminant.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Code == e.Code
}

// Sentinels for use with errors.Is.
var (
	ErrInvalidInput     = New(InvalidInput)
	ErrNotFound         = New(NotFound)
	ErrAlreadyExists    = New(AlreadyExists)
	ErrUpdateConflict   = New(UpdateConflict)
	ErrUnauthorized     = New(Unauthorized)
	ErrDocumentNotReady = New(DocumentNotReady)
	ErrConsentRequired  = New(ConsentRequired)
	ErrContextNotFound  = New(ContextNotFound)
	ErrUninitialized    = New(Uninitialized)
)
