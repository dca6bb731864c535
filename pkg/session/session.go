/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package session carries the identity of the current user and the context they are working in.
package session

import (
	"errors"
	"fmt"

	"github.com/merosign/merosign/pkg/storage"
)

var (
	// ErrMissingIdentity is returned when an operation needs the member public key and none is known.
	ErrMissingIdentity = errors.New("no member identity for this session: join a context first")
	// ErrMissingContext is returned when an operation needs a context ID and none is known.
	ErrMissingContext = errors.New("no context for this session: join a context first")
)

// Session is passed explicitly to every operation that acts on behalf of a user.
type Session struct {
	ContextID       string
	MemberPublicKey string
}

// New returns a session for a known context and member.
func New(contextID, memberPublicKey string) *Session {
	return &Session{ContextID: contextID, MemberPublicKey: memberPublicKey}
}

// Load builds a session from what a previous join persisted.
func Load(state *storage.LocalState) (*Session, error) {
	joined, err := state.Joined()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s := New(joined.ContextID, joined.MemberPublicKey)

	return s, s.Validate()
}

// Validate checks that both the context and the identity are known.
func (s *Session) Validate() error {
	if s == nil || s.MemberPublicKey == "" {
		return ErrMissingIdentity
	}

	if s.ContextID == "" {
		return ErrMissingContext
	}

	return nil
}

// Caller returns the ledger principal for this session.
func (s *Session) Caller() string {
	if s == nil {
		return ""
	}

	return s.MemberPublicKey
}
