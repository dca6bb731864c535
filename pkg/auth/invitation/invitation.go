/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package invitation issues and verifies the signed invitations a context admin hands to new members.
//
// An invitation is a compact JWS (EdDSA) whose payload names the context and the inviter. The inviter ID
// is the base58 form of the signing public key, so a verifier needs nothing but the token itself to check
// the signature; callers then compare the inviter against the admin they expect.
package invitation

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/square/go-jose"

	"github.com/merosign/merosign/pkg/ledgerutils"
)

const (
	// ErrMalformed is returned for tokens that are not a JWS with a claims payload.
	ErrMalformed = invitationError("invitation is malformed")
	// ErrBadSignature is returned when the signature does not match the inviter key.
	ErrBadSignature = invitationError("invitation signature is invalid")
	// ErrExpired is returned for invitations past their expiry.
	ErrExpired = invitationError("invitation has expired")
	// ErrWrongContext is returned when the invitation is for another context.
	ErrWrongContext = invitationError("invitation is for a different context")
	// ErrWrongInviter is returned when the invitation was not issued by the expected admin.
	ErrWrongInviter = invitationError("invitation was not issued by the context admin")
)

type invitationError string

func (e invitationError) Error() string { return string(e) }

// Claims is the payload of an invitation.
type Claims struct {
	ContextID string `json:"context_id"`
	Inviter   string `json:"inviter"`
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// Issuer signs invitations with the admin's key.
type Issuer struct {
	key ed25519.PrivateKey
	id  string
	ttl time.Duration
	now func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTTL makes issued invitations expire after ttl. Zero means no expiry.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.ttl = ttl
	}
}

// WithClock overrides the issuer's time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer returns an Issuer for the given admin key.
func NewIssuer(key ed25519.PrivateKey, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		key: key,
		id:  ledgerutils.EncodePublicKey(key.Public().(ed25519.PublicKey)),
		now: time.Now,
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// ID returns the inviter's user ID.
func (i *Issuer) ID() string { return i.id }

// Issue creates an invitation to contextID.
func (i *Issuer) Issue(contextID string) (string, error) {
	if err := ledgerutils.ValidateID(contextID); err != nil {
		return "", fmt.Errorf("invalid context ID: %w", err)
	}

	now := i.now()

	claims := Claims{
		ContextID: contextID,
		Inviter:   i.id,
		Nonce:     uuid.New().String(),
		IssuedAt:  now.Unix(),
	}

	if i.ttl > 0 {
		claims.ExpiresAt = now.Add(i.ttl).Unix()
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal invitation claims: %w", err)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: i.key}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign invitation: %w", err)
	}

	return jws.CompactSerialize()
}

type verifyOpts struct {
	now       func() time.Time
	contextID string
	inviter   string
}

// VerifyOption adds a check to Verify.
type VerifyOption func(*verifyOpts)

// ForContext requires the invitation to name contextID.
func ForContext(contextID string) VerifyOption {
	return func(o *verifyOpts) {
		o.contextID = contextID
	}
}

// FromInviter requires the invitation to be signed by inviter.
func FromInviter(inviter string) VerifyOption {
	return func(o *verifyOpts) {
		o.inviter = inviter
	}
}

// At evaluates expiry at the given time instead of now.
func At(now func() time.Time) VerifyOption {
	return func(o *verifyOpts) {
		o.now = now
	}
}

// Verify checks the signature and expiry of token plus any option constraints and returns its claims.
func Verify(token string, opts ...VerifyOption) (*Claims, error) {
	o := &verifyOpts{now: time.Now}

	for _, opt := range opts {
		opt(o)
	}

	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	var unverified Claims

	if err = json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &unverified); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	pub, err := ledgerutils.DecodePublicKey(unverified.Inviter)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	payload, err := jws.Verify(pub)
	if err != nil {
		return nil, ErrBadSignature
	}

	var claims Claims

	if err = json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	switch {
	case claims.ExpiresAt != 0 && o.now().Unix() > claims.ExpiresAt:
		return nil, ErrExpired
	case o.contextID != "" && claims.ContextID != o.contextID:
		return nil, ErrWrongContext
	case o.inviter != "" && claims.Inviter != o.inviter:
		return nil, ErrWrongInviter
	}

	return &claims, nil
}
