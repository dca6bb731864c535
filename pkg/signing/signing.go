/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package signing gates signing behind consent. Consent and signature are separate ledger records that are
// not written together; the coordinator always records consent first and treats a consented but unsigned
// document as a valid state to resume from.
package signing

import (
	"context"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/client"
	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/restapi/ledgererrors"
	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/result"
	"github.com/merosign/merosign/pkg/session"
)

var logger = log.New("merosign-signing")

// Reasons a user cannot sign.
const (
	ReasonDocumentNotFound = "Document not found."
	ReasonFullySigned      = "Document is already fully signed."
	ReasonNotParticipant   = "User is not a participant in this context."
	ReasonAlreadySigned    = "User has already signed this document."
	ReasonConsentMissing   = "User has not consented to sign this document."
)

const (
	msgConsentNotAcknowledged = "Consent must be acknowledged before signing."
	msgNoConsentRecord        = "No consent recorded for this document."
)

// Ledger is the part of the registry client the coordinator needs.
type Ledger interface {
	GetDocument(ctx context.Context, documentID string, opts ...client.ReqOption) (*models.Document, error)
	IsUserContextParticipant(ctx context.Context, contextID, userID string, opts ...client.ReqOption) (bool, error)
	HasUserConsented(ctx context.Context, contextID, userID, documentID string, opts ...client.ReqOption) (bool, error)
	RecordConsent(ctx context.Context, contextID, documentID string, opts ...client.ReqOption) error
	SignDocument(ctx context.Context, req *models.SignDocumentRequest, opts ...client.ReqOption) (*models.Document,
		error)
	GetSigningProgress(ctx context.Context, contextID string, opts ...client.ReqOption) (*models.SigningProgress,
		error)
}

// CanSignResult says whether a user may sign, and if not, why.
type CanSignResult struct {
	CanSign bool
	Reason  string
	Code    ledgererrors.Code
	Error   *result.Failure
}

// SignRequest describes a signature. SignedHash and ArtifactRef name the artifact the signature produced.
type SignRequest struct {
	DocumentID          string
	ConsentAcknowledged bool
	SignedHash          string
	ArtifactRef         string
}

// Progress is the signing progress of a context.
type Progress struct {
	RequiredSigners  []string
	ConsentedUsers   []string
	DocumentStatuses []models.DocumentStatusEntry
}

// Complete reports whether every document is fully signed.
func (p *Progress) Complete() bool {
	if len(p.DocumentStatuses) == 0 {
		return false
	}

	for _, s := range p.DocumentStatuses {
		if s.Status != models.DocumentFullySigned {
			return false
		}
	}

	return true
}

// Coordinator sequences consent and signature for a session.
type Coordinator struct {
	ledger Ledger
	collab collab.Client
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCollab enables the signature bookkeeping on the collaboration context.
func WithCollab(c collab.Client) Option {
	return func(co *Coordinator) {
		co.collab = c
	}
}

// New returns a Coordinator.
func New(ledger Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{ledger: ledger}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CheckCanSign fails closed: any error while checking means the user cannot sign.
func (c *Coordinator) CheckCanSign(ctx context.Context, sess *session.Session, documentID string) CanSignResult {
	if err := sess.Validate(); err != nil {
		return cannotSign(err)
	}

	caller := client.AsCaller(sess.Caller())

	doc, err := c.ledger.GetDocument(ctx, documentID, caller)
	if err != nil {
		if result.IsCode(err, ledgererrors.NotFound) {
			return CanSignResult{Reason: ReasonDocumentNotFound, Code: ledgererrors.NotFound}
		}

		return cannotSign(err)
	}

	if doc.Status == models.DocumentFullySigned {
		return CanSignResult{Reason: ReasonFullySigned, Code: ledgererrors.UpdateConflict}
	}

	participant, err := c.ledger.IsUserContextParticipant(ctx, doc.ContextID, sess.Caller(), caller)
	if err != nil {
		return cannotSign(err)
	}

	if !participant {
		return CanSignResult{Reason: ReasonNotParticipant, Code: ledgererrors.Unauthorized}
	}

	if doc.HasSigned(sess.Caller()) {
		return CanSignResult{Reason: ReasonAlreadySigned, Code: ledgererrors.UpdateConflict}
	}

	consented, err := c.ledger.HasUserConsented(ctx, doc.ContextID, sess.Caller(), documentID, caller)
	if err != nil {
		return cannotSign(err)
	}

	if !consented {
		return CanSignResult{Reason: ReasonConsentMissing, Code: ledgererrors.ConsentRequired}
	}

	return CanSignResult{CanSign: true}
}

// RecordConsent records the session user's consent to sign a document. Consent that already exists counts
// as recorded.
func (c *Coordinator) RecordConsent(ctx context.Context, sess *session.Session, documentID string) result.Outcome {
	if err := sess.Validate(); err != nil {
		return result.Fail(err)
	}

	err := c.ledger.RecordConsent(ctx, sess.ContextID, documentID, client.AsCaller(sess.Caller()))

	switch {
	case err == nil:
		logger.Infof("Consent recorded for %s on %s", sess.Caller(), documentID)
	case result.IsCode(err, ledgererrors.AlreadyExists):
		logger.Debugf("Consent for %s on %s was already recorded", sess.Caller(), documentID)
	default:
		return result.Fail(err)
	}

	return result.OK(nil)
}

// SignDocument signs a document on behalf of the session user. It refuses without an acknowledged consent
// and without a consent record on the ledger. On success Data is the *models.Document the ledger returned.
func (c *Coordinator) SignDocument(ctx context.Context, sess *session.Session, req SignRequest) result.Outcome {
	if err := sess.Validate(); err != nil {
		return result.Fail(err)
	}

	if !req.ConsentAcknowledged {
		return result.Fail(ledgererrors.WithDetail(ledgererrors.ConsentRequired, msgConsentNotAcknowledged))
	}

	caller := client.AsCaller(sess.Caller())

	consented, err := c.ledger.HasUserConsented(ctx, sess.ContextID, sess.Caller(), req.DocumentID, caller)
	if err != nil {
		return result.Fail(err)
	}

	if !consented {
		return result.Fail(ledgererrors.WithDetail(ledgererrors.ConsentRequired, msgNoConsentRecord))
	}

	doc, err := c.ledger.SignDocument(ctx, &models.SignDocumentRequest{
		DocumentID:          req.DocumentID,
		ConsentAcknowledged: true,
		SignedHash:          req.SignedHash,
		ArtifactRef:         req.ArtifactRef,
	}, caller)
	if err != nil {
		return result.Fail(err)
	}

	logger.Infof("%s signed %s, document is now %s", sess.Caller(), doc.DocumentID, doc.Status)

	return result.OK(doc)
}

// SignWithConsent records consent, signs, then marks the signature on the collaboration context.
// A consent failure stops before signing. A signing failure leaves consent in place, so the call can be
// repeated. The collaboration bookkeeping is best-effort.
func (c *Coordinator) SignWithConsent(ctx context.Context, sess *session.Session, req SignRequest) result.Outcome {
	if consent := c.RecordConsent(ctx, sess, req.DocumentID); !consent.Success {
		return consent
	}

	req.ConsentAcknowledged = true

	signed := c.SignDocument(ctx, sess, req)
	if !signed.Success {
		logger.Warnf("Consent for %s on %s is recorded but signing failed: %s", sess.Caller(), req.DocumentID,
			signed.Error)

		return signed
	}

	if c.collab != nil {
		err := c.collab.MarkParticipantSigned(ctx, &collab.SignatureMark{
			ContextID:       sess.ContextID,
			MemberPublicKey: sess.Caller(),
			DocumentID:      req.DocumentID,
		})
		if err != nil {
			logger.Warnf("Failed to mark %s as signed on %s in context %s: %s", sess.Caller(), req.DocumentID,
				sess.ContextID, err)
		}
	}

	return signed
}

// GetSigningProgress returns the progress of the session's context. On success Data is a *Progress.
func (c *Coordinator) GetSigningProgress(ctx context.Context, sess *session.Session) result.Outcome {
	if err := sess.Validate(); err != nil {
		return result.Fail(err)
	}

	p, err := c.ledger.GetSigningProgress(ctx, sess.ContextID, client.AsCaller(sess.Caller()))
	if err != nil {
		return result.Fail(err)
	}

	return result.OK(&Progress{
		RequiredSigners:  p.RequiredSigners,
		ConsentedUsers:   p.ConsentedUsers,
		DocumentStatuses: p.DocumentStatuses,
	})
}

func cannotSign(err error) CanSignResult {
	f := result.FromError(err)

	return CanSignResult{Reason: f.Message, Code: f.Code, Error: f}
}
