/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package verify checks a document's hash against what the ledger recorded for it. The ledger decides the
// match; this package only presents the answer.
package verify

import (
	"context"
	"fmt"
	"io"

	"github.com/merosign/merosign/pkg/client"
	"github.com/merosign/merosign/pkg/ledgerutils"
	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/result"
	"github.com/merosign/merosign/pkg/session"
)

// MatchType names which recorded hash matched.
type MatchType string

// Match types.
const (
	MatchNone     MatchType = ""
	MatchOriginal MatchType = "original"
	MatchFinal    MatchType = "final"
)

// Ledger is the part of the registry client verification needs.
type Ledger interface {
	VerifyDocumentHash(ctx context.Context, documentID, hashToCheck string,
		opts ...client.ReqOption) (models.VerificationStatus, error)
}

// Report is the presentation of a verification status.
type Report struct {
	Verified  bool
	MatchType MatchType
	Message   string
	Status    models.VerificationStatus
}

// Engine verifies documents against the ledger.
type Engine struct {
	ledger Ledger
}

// New returns an Engine.
func New(ledger Ledger) *Engine {
	return &Engine{ledger: ledger}
}

// Verify returns the ledger's verdict on candidateHash. Verification is public, so sess may be nil or
// carry no identity; when it names a member the request is made as that member, otherwise the
// client's default caller applies.
func (e *Engine) Verify(ctx context.Context, sess *session.Session, documentID,
	candidateHash string) (models.VerificationStatus, error) {
	var opts []client.ReqOption
	if caller := sess.Caller(); caller != "" {
		opts = append(opts, client.AsCaller(caller))
	}

	return e.ledger.VerifyDocumentHash(ctx, documentID, candidateHash, opts...)
}

// Check verifies candidateHash and returns the report. The failure is set only when the ledger could not
// be asked.
func (e *Engine) Check(ctx context.Context, sess *session.Session, documentID,
	candidateHash string) (Report, *result.Failure) {
	status, err := e.Verify(ctx, sess, documentID, candidateHash)
	if err != nil {
		return Report{Message: fmt.Sprintf("Verification failed: %s", err)}, result.FromError(err)
	}

	return Classify(status), nil
}

// CheckFile hashes content and checks the digest.
func (e *Engine) CheckFile(ctx context.Context, sess *session.Session, documentID string,
	content io.Reader) (Report, *result.Failure) {
	hash, err := ledgerutils.HashReader(content)
	if err != nil {
		return Report{Message: fmt.Sprintf("Verification failed: %s", err)}, result.FromError(err)
	}

	return e.Check(ctx, sess, documentID, hash)
}

// Classify maps every verification status to a report.
func Classify(status models.VerificationStatus) Report {
	switch status {
	case models.FinalMatch:
		return Report{
			Verified:  true,
			MatchType: MatchFinal,
			Message:   "Document matches the final signed version.",
			Status:    status,
		}
	case models.OriginalMatch:
		return Report{
			Verified:  true,
			MatchType: MatchOriginal,
			Message:   "Document matches the original uploaded version.",
			Status:    status,
		}
	case models.NoMatch:
		return Report{Message: "Document does not match any recorded version.", Status: status}
	case models.Unrecorded:
		return Report{Message: "Document is not recorded on the ledger.", Status: status}
	default:
		return Report{Message: fmt.Sprintf("Unknown verification status %q.", status), Status: status}
	}
}
