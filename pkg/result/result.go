/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package result decodes the tagged Ok/Err union returned by every ledger call and classifies failures.
package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/merosign/merosign/pkg/restapi/ledgererrors"
)

const (
	okKey  = "Ok"
	errKey = "Err"
)

// ErrMalformed is returned when a ledger response does not match the Ok/Err schema.
var ErrMalformed = errors.New("malformed ledger response")

// Kind classifies a failure by what the caller can do about it.
type Kind string

const (
	// Transient failures may succeed if retried.
	Transient Kind = "transient"
	// Domain failures are ledger rule violations and are surfaced verbatim.
	Domain Kind = "domain"
	// Fatal failures are contract or transport errors that retrying will not fix.
	Fatal Kind = "fatal"
)

// Failure is the structured form of every error produced by a ledger call.
// Code is empty for failures that did not come from the ledger's Err arm.
type Failure struct {
	Kind    Kind
	Code    ledgererrors.Code
	Detail  string
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// Response is a decoded ledger response. Exactly one of Ok and Err is set.
type Response struct {
	Ok  json.RawMessage
	Err *ledgererrors.Error
}

// Outcome is the non-throwing view of a response.
type Outcome struct {
	Success bool
	Data    interface{}
	Error   *Failure
}

// Decode parses a response body strictly: the body must be an object with exactly one key, "Ok" or "Err",
// and an Err value must be an object with exactly one known discriminant.
func Decode(body []byte) (*Response, error) {
	var envelope map[string]json.RawMessage

	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	if len(envelope) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one of %q or %q", ErrMalformed, okKey, errKey)
	}

	if ok, found := envelope[okKey]; found {
		return &Response{Ok: ok}, nil
	}

	rawErr, found := envelope[errKey]
	if !found {
		return nil, fmt.Errorf("%w: expected exactly one of %q or %q", ErrMalformed, okKey, errKey)
	}

	ledgerErr, err := decodeVariant(rawErr)
	if err != nil {
		return nil, err
	}

	return &Response{Err: ledgerErr}, nil
}

func decodeVariant(raw json.RawMessage) (*ledgererrors.Error, error) {
	var variant map[string]json.RawMessage

	if err := json.Unmarshal(raw, &variant); err != nil {
		return nil, fmt.Errorf("%w: error variant is not an object: %s", ErrMalformed, err)
	}

	if len(variant) != 1 {
		return nil, fmt.Errorf("%w: error variant must have exactly one discriminant", ErrMalformed)
	}

	for name, payload := range variant {
		code := ledgererrors.Code(name)
		if !code.Known() {
			return nil, fmt.Errorf("%w: unknown error discriminant %q", ErrMalformed, name)
		}

		isNull := bytes.Equal(bytes.TrimSpace(payload), []byte("null"))

		if !code.HasPayload() {
			if !isNull {
				return nil, fmt.Errorf("%w: unit discriminant %q carries a payload", ErrMalformed, name)
			}

			return ledgererrors.New(code), nil
		}

		var detail string

		if err := json.Unmarshal(payload, &detail); err != nil || isNull {
			return nil, fmt.Errorf("%w: discriminant %q requires a string payload", ErrMalformed, name)
		}

		return ledgererrors.WithDetail(code, detail), nil
	}

	return nil, ErrMalformed
}

// Encode produces an Ok body for value.
func Encode(value interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{okKey: value})
}

// EncodeError produces an Err body for e. String variants carry their detail, unit variants carry null.
func EncodeError(e *ledgererrors.Error) ([]byte, error) {
	var payload interface{}

	if e.Code.HasPayload() {
		payload = e.Detail
	}

	return json.Marshal(map[string]interface{}{errKey: map[string]interface{}{string(e.Code): payload}})
}

// UnwrapOrThrow decodes the Ok value into dst, or returns the Err arm as a *Failure.
// dst may be nil when the value is not needed.
func UnwrapOrThrow(res *Response, dst interface{}) error {
	if res == nil {
		return &Failure{Kind: Fatal, Message: ErrMalformed.Error(), Err: ErrMalformed}
	}

	if res.Err != nil {
		return FromError(res.Err)
	}

	if dst == nil {
		return nil
	}

	if err := json.Unmarshal(res.Ok, dst); err != nil {
		wrapped := fmt.Errorf("%w: unexpected Ok value: %s", ErrMalformed, err)

		return &Failure{Kind: Fatal, Message: wrapped.Error(), Err: wrapped}
	}

	return nil
}

// UnwrapSafe is UnwrapOrThrow without the error return: the failure, if any, is carried in the outcome.
func UnwrapSafe(res *Response, dst interface{}) Outcome {
	if err := UnwrapOrThrow(res, dst); err != nil {
		return Fail(err)
	}

	return Outcome{Success: true, Data: dst}
}

// Fail wraps any error into a failed outcome.
func Fail(err error) Outcome {
	return Outcome{Error: FromError(err)}
}

// OK wraps data into a successful outcome.
func OK(data interface{}) Outcome {
	return Outcome{Success: true, Data: data}
}

// FromError converts err into a *Failure. Ledger errors keep their discriminant; the Uninitialized
// discriminant is Transient; anything else without a discriminant is Fatal.
func FromError(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var ledgerErr *ledgererrors.Error
	if errors.As(err, &ledgerErr) {
		kind := Domain
		if ledgerErr.Code == ledgererrors.Uninitialized {
			kind = Transient
		}

		return &Failure{
			Kind:    kind,
			Code:    ledgerErr.Code,
			Detail:  ledgerErr.Detail,
			Message: ledgerErr.Error(),
			Err:     err,
		}
	}

	return &Failure{Kind: Fatal, Message: err.Error(), Err: err}
}

// Unavailable builds a Transient failure for a ledger or node that could not be reached.
func Unavailable(err error) *Failure {
	return &Failure{Kind: Transient, Message: fmt.Sprintf("service unavailable: %s", err), Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	f := FromError(err)

	return f != nil && f.Kind == Transient
}

// IsCode reports whether err carries the given ledger discriminant.
func IsCode(err error, code ledgererrors.Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the ledger discriminant carried by err, or "" when there is none.
func CodeOf(err error) ledgererrors.Code {
	f := FromError(err)
	if f == nil {
		return ""
	}

	return f.Code
}
