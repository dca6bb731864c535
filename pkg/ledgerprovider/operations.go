/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledgerprovider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/merosign/merosign/pkg/auth/invitation"
	"github.com/merosign/merosign/pkg/ledgerutils"
	"github.com/merosign/merosign/pkg/restapi/ledgererrors"
	"github.com/merosign/merosign/pkg/restapi/models"
)

const (
	msgAlreadyParticipant = "User is already a participant in this context."
	msgAlreadySigned      = "User has already signed this document."
	msgFinalHashRecorded  = "Final hash has already been recorded."
	msgContextNotActive   = "Context is no longer active."
	msgSigningStarted     = "Participants cannot be added after signing has started."
	msgExpiryInPast       = "Expiry must be in the future."
)

var (
	errUnauthorized     = ledgererrors.New(ledgererrors.Unauthorized)
	errNotFound         = ledgererrors.New(ledgererrors.NotFound)
	errAlreadyExists    = ledgererrors.New(ledgererrors.AlreadyExists)
	errContextNotFound  = ledgererrors.New(ledgererrors.ContextNotFound)
	errConsentRequired  = ledgererrors.New(ledgererrors.ConsentRequired)
	errDocumentNotReady = ledgererrors.New(ledgererrors.DocumentNotReady)
)

func conflict(detail string) error {
	return ledgererrors.WithDetail(ledgererrors.UpdateConflict, detail)
}

func requireCaller(caller string) error {
	if caller == "" {
		return errUnauthorized
	}

	return nil
}

// CreateContext creates a context administered by caller.
func (p *Provider) CreateContext(caller string, req *models.CreateContextRequest) error {
	if err := requireCaller(caller); err != nil {
		return err
	}

	if err := ledgerutils.ValidateID(req.ContextID); err != nil {
		return err
	}

	participants := make([]string, 0, len(req.Participants))
	seen := map[string]struct{}{caller: {}}

	for _, id := range req.Participants {
		if err := ledgerutils.ValidateID(id); err != nil {
			return err
		}

		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		participants = append(participants, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.timestamp()

	if req.ExpiresAt != 0 && req.ExpiresAt <= now {
		return ledgererrors.WithDetail(ledgererrors.InvalidInput, msgExpiryInPast)
	}

	existing, err := p.loadContext(req.ContextID)
	if err != nil {
		return err
	}

	if existing != nil {
		return errAlreadyExists
	}

	c := &models.Context{
		ContextID:    req.ContextID,
		AdminID:      caller,
		Participants: participants,
		DocumentIDs:  []string{},
		Status:       models.ContextActive,
		Metadata: models.ContextMetadata{
			Title:         req.Title,
			Description:   req.Description,
			AgreementType: req.AgreementType,
			ExpiresAt:     req.ExpiresAt,
		},
		CreatedAt: now,
	}

	if err = p.saveContext(c); err != nil {
		return err
	}

	logger.Infof("Context %s created by %s with %d participant(s)", c.ContextID, caller, len(participants))

	return p.appendAudit(models.AuditEntry{
		ContextID: c.ContextID,
		UserID:    caller,
		Action:    models.ActionContextCreated,
		Timestamp: now,
		Metadata:  "Context created",
	})
}

// AddParticipant adds participantID to a context. Only the admin may add participants.
func (p *Provider) AddParticipant(caller, contextID, participantID string) error {
	if err := ledgerutils.ValidateID(contextID); err != nil {
		return err
	}

	if err := ledgerutils.ValidateID(participantID); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.loadContext(contextID)
	if err != nil {
		return err
	}

	if c == nil {
		return errContextNotFound
	}

	if c.AdminID != caller {
		return errUnauthorized
	}

	if c.IsParticipant(participantID) {
		return conflict(msgAlreadyParticipant)
	}

	if err = p.checkCanGrow(c); err != nil {
		return err
	}

	return p.addParticipant(c, caller, participantID, fmt.Sprintf("Added participant: %s", participantID))
}

// RegisterSelfAsParticipant adds caller to a context on the strength of an invitation signed by its admin.
func (p *Provider) RegisterSelfAsParticipant(caller string, req *models.RegisterSelfRequest) error {
	if err := ledgerutils.ValidateID(req.ContextID); err != nil {
		return err
	}

	if err := ledgerutils.ValidateID(caller); err != nil {
		return errUnauthorized
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.loadContext(req.ContextID)
	if err != nil {
		return err
	}

	if c == nil {
		return errContextNotFound
	}

	_, err = invitation.Verify(req.Invitation,
		invitation.ForContext(req.ContextID), invitation.FromInviter(c.AdminID), invitation.At(p.now))
	if err != nil {
		logger.Warnf("Rejected self-registration of %s in context %s: %s", caller, req.ContextID, err)

		return errUnauthorized
	}

	if c.IsParticipant(caller) {
		return errAlreadyExists
	}

	if err = p.checkCanGrow(c); err != nil {
		return err
	}

	return p.addParticipant(c, caller, caller, fmt.Sprintf("Self-registered participant: %s", caller))
}

// checkCanGrow rejects new participants once the context is closed or any document has a signature,
// since a new required signer would invalidate documents that are already complete.
func (p *Provider) checkCanGrow(c *models.Context) error {
	if c.Status != models.ContextActive {
		return conflict(msgContextNotActive)
	}

	documents, err := p.loadDocuments(c.DocumentIDs)
	if err != nil {
		return err
	}

	for i := range documents {
		if len(documents[i].CurrentSigners) > 0 {
			return conflict(msgSigningStarted)
		}
	}

	return nil
}

func (p *Provider) addParticipant(c *models.Context, actor, participantID, note string) error {
	c.Participants = append(c.Participants, participantID)

	if err := p.saveContext(c); err != nil {
		return err
	}

	logger.Infof("Participant %s added to context %s", participantID, c.ContextID)

	return p.appendAudit(models.AuditEntry{
		ContextID: c.ContextID,
		UserID:    actor,
		Action:    models.ActionParticipantAdded,
		Metadata:  note,
	})
}

// UploadDocument registers a new document and its original hash in a context. Only the admin may upload.
func (p *Provider) UploadDocument(caller string, req *models.UploadDocumentRequest) error {
	if err := ledgerutils.ValidateID(req.ContextID); err != nil {
		return err
	}

	if err := ledgerutils.ValidateID(req.DocumentID); err != nil {
		return err
	}

	if err := ledgerutils.ValidateHash(req.DocumentHash); err != nil {
		return err
	}

	hash := strings.ToLower(req.DocumentHash)

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.loadContext(req.ContextID)
	if err != nil {
		return err
	}

	if c == nil {
		return errContextNotFound
	}

	if c.AdminID != caller {
		return errUnauthorized
	}

	if c.Status != models.ContextActive {
		return conflict(msgContextNotActive)
	}

	existing, err := p.loadDocument(req.DocumentID)
	if err != nil {
		return err
	}

	if existing != nil {
		return errAlreadyExists
	}

	now := p.timestamp()

	d := &models.Document{
		DocumentID:        req.DocumentID,
		ContextID:         req.ContextID,
		OriginalHash:      hash,
		TimestampOriginal: now,
		CurrentSigners:    []string{},
		Status:            models.DocumentPending,
		Metadata: models.DocumentMetadata{
			CreatedAt:   now,
			Name:        req.Name,
			ArtifactRef: req.ArtifactRef,
			CurrentHash: hash,
		},
	}

	if err = p.saveDocument(d); err != nil {
		return err
	}

	c.DocumentIDs = append(c.DocumentIDs, d.DocumentID)

	if err = p.saveContext(c); err != nil {
		return err
	}

	logger.Infof("Document %s uploaded to context %s", d.DocumentID, c.ContextID)

	return p.appendAudit(models.AuditEntry{
		ContextID:               c.ContextID,
		DocumentID:              d.DocumentID,
		UserID:                  caller,
		Action:                  models.ActionDocumentUploaded,
		Timestamp:               now,
		DocumentHashAfterAction: hash,
	})
}

// GetDocument returns a document.
func (p *Provider) GetDocument(documentID string) (*models.Document, error) {
	if err := ledgerutils.ValidateID(documentID); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.loadDocument(documentID)
	if err != nil {
		return nil, err
	}

	if d == nil {
		return nil, errNotFound
	}

	return d, nil
}

// GetContextDocuments returns every document of a context in upload order.
func (p *Provider) GetContextDocuments(contextID string) ([]models.Document, error) {
	if err := ledgerutils.ValidateID(contextID); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.loadContext(contextID)
	if err != nil {
		return nil, err
	}

	if c == nil {
		return nil, errContextNotFound
	}

	return p.loadDocuments(c.DocumentIDs)
}

// GetContext returns a context.
func (p *Provider) GetContext(contextID string) (*models.Context, error) {
	if err := ledgerutils.ValidateID(contextID); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.loadContext(contextID)
	if err != nil {
		return nil, err
	}

	if c == nil {
		return nil, errContextNotFound
	}

	return c, nil
}

// RecordFinalHash lets the admin attest the final hash of a fully signed document.
// The final hash is written once, by the signature that completes the document, so recording the same
// value again succeeds and recording a different one is a conflict.
func (p *Provider) RecordFinalHash(caller, documentID, hash string) error {
	if err := ledgerutils.ValidateID(documentID); err != nil {
		return err
	}

	if err := ledgerutils.ValidateHash(hash); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.loadDocument(documentID)
	if err != nil {
		return err
	}

	if d == nil {
		return errNotFound
	}

	c, err := p.loadContext(d.ContextID)
	if err != nil {
		return err
	}

	if c == nil || c.AdminID != caller {
		return errUnauthorized
	}

	if d.Status != models.DocumentFullySigned {
		return errDocumentNotReady
	}

	if !strings.EqualFold(d.FinalHash, hash) {
		return conflict(msgFinalHashRecorded)
	}

	return nil
}

// RecordConsent records that caller consents to sign a document. Consent is write-once:
// a second call for the same context, user and document returns AlreadyExists.
func (p *Provider) RecordConsent(caller, contextID, documentID string) error {
	if err := ledgerutils.ValidateID(contextID); err != nil {
		return err
	}

	if err := ledgerutils.ValidateID(documentID); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.loadContext(contextID)
	if err != nil {
		return err
	}

	if c == nil {
		return errContextNotFound
	}

	if !c.IsParticipant(caller) {
		return errUnauthorized
	}

	d, err := p.loadDocument(documentID)
	if err != nil {
		return err
	}

	if d == nil || d.ContextID != contextID {
		return errNotFound
	}

	consented, err := p.hasConsent(contextID, caller, documentID)
	if err != nil {
		return err
	}

	if consented {
		return errAlreadyExists
	}

	if c.Status != models.ContextActive {
		return conflict(msgContextNotActive)
	}

	now := p.timestamp()

	if err = p.putConsent(contextID, caller, documentID, now); err != nil {
		return fmt.Errorf("failed to store consent: %w", err)
	}

	logger.Infof("Consent recorded for %s on document %s", caller, documentID)

	return p.appendAudit(models.AuditEntry{
		ContextID:    contextID,
		DocumentID:   documentID,
		UserID:       caller,
		Action:       models.ActionConsentGiven,
		Timestamp:    now,
		ConsentGiven: boolPtr(true),
	})
}

// SignDocument adds caller to the document's signers and advances its status. The signature that
// completes the document also fixes its final hash: the signed hash when one is given, otherwise the
// current hash. When every document of the context is fully signed the context is completed.
func (p *Provider) SignDocument(caller string, req *models.SignDocumentRequest) (*models.Document, error) {
	if err := ledgerutils.ValidateID(req.DocumentID); err != nil {
		return nil, err
	}

	if !req.ConsentAcknowledged {
		return nil, errConsentRequired
	}

	if req.SignedHash != "" {
		if err := ledgerutils.ValidateHash(req.SignedHash); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.loadDocument(req.DocumentID)
	if err != nil {
		return nil, err
	}

	if d == nil {
		return nil, errNotFound
	}

	c, err := p.loadContext(d.ContextID)
	if err != nil {
		return nil, err
	}

	if c == nil || !c.IsParticipant(caller) {
		return nil, errUnauthorized
	}

	if d.HasSigned(caller) {
		return nil, conflict(msgAlreadySigned)
	}

	if c.Status != models.ContextActive {
		return nil, conflict(msgContextNotActive)
	}

	consented, err := p.hasConsent(c.ContextID, caller, d.DocumentID)
	if err != nil {
		return nil, err
	}

	if !consented {
		return nil, errConsentRequired
	}

	now := p.timestamp()
	signedHash := strings.ToLower(req.SignedHash)

	d.CurrentSigners = append(d.CurrentSigners, caller)

	if signedHash != "" {
		d.Metadata.CurrentHash = signedHash
	}

	if req.ArtifactRef != "" {
		d.Metadata.ArtifactRef = req.ArtifactRef
	}

	complete := containsAll(d.CurrentSigners, c.RequiredSigners())

	switch {
	case complete:
		d.Status = models.DocumentFullySigned
		d.FinalHash = d.Metadata.CurrentHash
		d.TimestampFinal = now
	case d.Status == models.DocumentPending:
		d.Status = models.DocumentPartiallySigned
	}

	if err = p.saveDocument(d); err != nil {
		return nil, err
	}

	logger.Infof("Document %s signed by %s (%d/%d), status %s", d.DocumentID, caller,
		len(d.CurrentSigners), len(c.RequiredSigners()), d.Status)

	err = p.appendAudit(models.AuditEntry{
		ContextID:               c.ContextID,
		DocumentID:              d.DocumentID,
		UserID:                  caller,
		Action:                  models.ActionSignatureApplied,
		Timestamp:               now,
		ConsentGiven:            boolPtr(true),
		DocumentHashAfterAction: signedHash,
		Metadata:                fmt.Sprintf("Signed by: %s", caller),
	})
	if err != nil {
		return nil, err
	}

	if !complete {
		return d, nil
	}

	err = p.appendAudit(models.AuditEntry{
		ContextID:               c.ContextID,
		DocumentID:              d.DocumentID,
		UserID:                  systemUserID,
		Action:                  models.ActionDocumentCompleted,
		Timestamp:               now,
		DocumentHashAfterAction: d.FinalHash,
		Metadata:                "Document fully signed",
	})
	if err != nil {
		return nil, err
	}

	if err = p.completeContextIfDone(c, now); err != nil {
		return nil, err
	}

	return d, nil
}

func (p *Provider) completeContextIfDone(c *models.Context, now int64) error {
	documents, err := p.loadDocuments(c.DocumentIDs)
	if err != nil {
		return err
	}

	for i := range documents {
		if documents[i].Status != models.DocumentFullySigned {
			return nil
		}
	}

	c.Status = models.ContextCompleted

	if err = p.saveContext(c); err != nil {
		return err
	}

	logger.Infof("Context %s completed", c.ContextID)

	return p.appendAudit(models.AuditEntry{
		ContextID: c.ContextID,
		UserID:    systemUserID,
		Action:    models.ActionContextCompleted,
		Timestamp: now,
		Metadata:  "All documents fully signed",
	})
}

// GetSigningProgress returns the required signers, the users who consented to at least one document
// and the status of every document of a context.
func (p *Provider) GetSigningProgress(contextID string) (*models.SigningProgress, error) {
	if err := ledgerutils.ValidateID(contextID); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.loadContext(contextID)
	if err != nil {
		return nil, err
	}

	if c == nil {
		return nil, errContextNotFound
	}

	required := c.RequiredSigners()
	sort.Strings(required)

	consented, err := p.consentedUsers(contextID)
	if err != nil {
		return nil, err
	}

	documents, err := p.loadDocuments(c.DocumentIDs)
	if err != nil {
		return nil, err
	}

	statuses := make([]models.DocumentStatusEntry, 0, len(documents))

	for i := range documents {
		statuses = append(statuses, models.DocumentStatusEntry{
			DocumentID: documents[i].DocumentID,
			Status:     documents[i].Status,
		})
	}

	return &models.SigningProgress{
		RequiredSigners:  required,
		ConsentedUsers:   consented,
		DocumentStatuses: statuses,
	}, nil
}

// VerifyDocumentHash compares hashToCheck against the hashes recorded for a document.
// Unknown or malformed document IDs are Unrecorded. A malformed hash for a known document is NoMatch.
func (p *Provider) VerifyDocumentHash(documentID, hashToCheck string) (models.VerificationStatus, error) {
	if ledgerutils.ValidateID(documentID) != nil {
		return models.Unrecorded, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.loadDocument(documentID)
	if err != nil {
		return "", err
	}

	if d == nil {
		return models.Unrecorded, nil
	}

	return Classify(hashToCheck, d.OriginalHash, d.FinalHash), nil
}

// Classify is the verification rule. An original hash match takes precedence over a final hash match.
func Classify(candidate, originalHash, finalHash string) models.VerificationStatus {
	if ledgerutils.ValidateHash(candidate) != nil {
		return models.NoMatch
	}

	switch {
	case strings.EqualFold(candidate, originalHash):
		return models.OriginalMatch
	case finalHash != "" && strings.EqualFold(candidate, finalHash):
		return models.FinalMatch
	default:
		return models.NoMatch
	}
}

// GetAuditTrail returns the audit trail of a context in append order.
func (p *Provider) GetAuditTrail(contextID string) ([]models.AuditEntry, error) {
	if err := ledgerutils.ValidateID(contextID); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.loadAudit(contextID)
}

// GetAuditTrailForDocument returns the entries of a context's audit trail that concern one document.
func (p *Provider) GetAuditTrailForDocument(contextID, documentID string) ([]models.AuditEntry, error) {
	if err := ledgerutils.ValidateID(contextID); err != nil {
		return nil, err
	}

	if err := ledgerutils.ValidateID(documentID); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.loadAudit(contextID)
	if err != nil {
		return nil, err
	}

	filtered := []models.AuditEntry{}

	for _, e := range entries {
		if e.DocumentID == documentID {
			filtered = append(filtered, e)
		}
	}

	return filtered, nil
}

// IsUserContextParticipant reports whether userID is the admin or a participant of a context.
func (p *Provider) IsUserContextParticipant(contextID, userID string) (bool, error) {
	if ledgerutils.ValidateID(contextID) != nil {
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.loadContext(contextID)
	if err != nil || c == nil {
		return false, err
	}

	return c.IsParticipant(userID), nil
}

// HasUserConsented reports whether userID consented to sign a document of a context.
func (p *Provider) HasUserConsented(contextID, userID, documentID string) (bool, error) {
	if ledgerutils.ValidateID(contextID) != nil || ledgerutils.ValidateID(documentID) != nil {
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.hasConsent(contextID, userID, documentID)
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))

	for _, h := range have {
		set[h] = struct{}{}
	}

	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}

	return true
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
