/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package models

// ContextStatus is the lifecycle state of a signing context.
type ContextStatus string

// Context statuses.
const (
	ContextActive    ContextStatus = "Active"
	ContextCompleted ContextStatus = "Completed"
	ContextExpired   ContextStatus = "Expired"
)

// DocumentStatus is the signing state of a document.
type DocumentStatus string

// Document statuses.
const (
	DocumentPending         DocumentStatus = "Pending"
	DocumentPartiallySigned DocumentStatus = "PartiallySigned"
	DocumentFullySigned     DocumentStatus = "FullySigned"
)

// AuditAction names the kind of event recorded in an audit trail.
type AuditAction string

// Audit actions.
const (
	ActionContextCreated    AuditAction = "ContextCreated"
	ActionParticipantAdded  AuditAction = "ParticipantAdded"
	ActionDocumentUploaded  AuditAction = "DocumentUploaded"
	ActionConsentGiven      AuditAction = "ConsentGiven"
	ActionSignatureApplied  AuditAction = "SignatureApplied"
	ActionDocumentCompleted AuditAction = "DocumentCompleted"
	ActionContextCompleted  AuditAction = "ContextCompleted"
)

// VerificationStatus is the result of comparing a candidate hash against the hashes recorded for a document.
type VerificationStatus string

// Verification statuses.
const (
	Unrecorded    VerificationStatus = "Unrecorded"
	OriginalMatch VerificationStatus = "OriginalMatch"
	FinalMatch    VerificationStatus = "FinalMatch"
	NoMatch       VerificationStatus = "NoMatch"
)

// ContextMetadata holds the descriptive, optional fields of a context.
// ExpiresAt is a Unix timestamp in nanoseconds; zero means the context never expires.
type ContextMetadata struct {
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	AgreementType string `json:"agreement_type,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
}

// Context represents a signing context: an admin, a set of participants and the documents they sign together.
type Context struct {
	ContextID    string          `json:"context_id"`
	AdminID      string          `json:"admin_id"`
	Participants []string        `json:"participants"`
	DocumentIDs  []string        `json:"document_ids"`
	Status       ContextStatus   `json:"context_status"`
	Metadata     ContextMetadata `json:"metadata"`
	CreatedAt    int64           `json:"created_at"`
}

// RequiredSigners returns the participants plus the admin, deduplicated and in insertion order.
func (c *Context) RequiredSigners() []string {
	seen := make(map[string]struct{}, len(c.Participants)+1)
	signers := make([]string, 0, len(c.Participants)+1)

	for _, id := range append([]string{c.AdminID}, c.Participants...) {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		signers = append(signers, id)
	}

	return signers
}

// IsParticipant reports whether userID is the admin or one of the participants.
func (c *Context) IsParticipant(userID string) bool {
	if c.AdminID == userID {
		return true
	}

	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}

	return false
}

// DocumentMetadata holds the mutable, descriptive fields of a document.
type DocumentMetadata struct {
	CreatedAt   int64  `json:"created_at"`
	Name        string `json:"name,omitempty"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
	CurrentHash string `json:"current_hash,omitempty"`
}

// Document is the ledger record for a single PDF.
type Document struct {
	DocumentID        string           `json:"document_id"`
	ContextID         string           `json:"context_id"`
	OriginalHash      string           `json:"original_hash"`
	TimestampOriginal int64            `json:"timestamp_original"`
	FinalHash         string           `json:"final_hash,omitempty"`
	TimestampFinal    int64            `json:"timestamp_final,omitempty"`
	CurrentSigners    []string         `json:"current_signers"`
	Status            DocumentStatus   `json:"document_status"`
	Metadata          DocumentMetadata `json:"metadata"`
}

// HasSigned reports whether userID is already in the signer list.
func (d *Document) HasSigned(userID string) bool {
	for _, s := range d.CurrentSigners {
		if s == userID {
			return true
		}
	}

	return false
}

// AuditEntry is one append-only record in a context's audit trail.
type AuditEntry struct {
	EntryID                 string      `json:"entry_id"`
	ContextID               string      `json:"context_id"`
	DocumentID              string      `json:"document_id,omitempty"`
	UserID                  string      `json:"user_id"`
	Action                  AuditAction `json:"action"`
	Timestamp               int64       `json:"timestamp"`
	ConsentGiven            *bool       `json:"consent_given,omitempty"`
	DocumentHashAfterAction string      `json:"document_hash_after_action,omitempty"`
	Metadata                string      `json:"metadata,omitempty"`
}

// DocumentStatusEntry pairs a document with its status inside a progress report.
type DocumentStatusEntry struct {
	DocumentID string         `json:"document_id"`
	Status     DocumentStatus `json:"status"`
}

// SigningProgress aggregates the signing state of a whole context.
type SigningProgress struct {
	RequiredSigners  []string              `json:"required_signers"`
	ConsentedUsers   []string              `json:"consented_users"`
	DocumentStatuses []DocumentStatusEntry `json:"document_statuses"`
}

// CreateContextRequest is the input of create_context. The caller becomes the admin.
type CreateContextRequest struct {
	ContextID     string   `json:"context_id"`
	Participants  []string `json:"participants"`
	Title         string   `json:"title,omitempty"`
	Description   string   `json:"description,omitempty"`
	AgreementType string   `json:"agreement_type,omitempty"`
	ExpiresAt     int64    `json:"expires_at,omitempty"`
}

// AddParticipantRequest is the input of add_participant_to_context.
type AddParticipantRequest struct {
	ContextID     string `json:"context_id"`
	ParticipantID string `json:"participant_id"`
}

// UploadDocumentRequest is the input of upload_document_to_context.
type UploadDocumentRequest struct {
	ContextID    string `json:"context_id"`
	DocumentID   string `json:"document_id"`
	DocumentHash string `json:"document_hash"`
	Name         string `json:"name,omitempty"`
	ArtifactRef  string `json:"artifact_ref,omitempty"`
}

// ContextRef identifies a context.
type ContextRef struct {
	ContextID string `json:"context_id"`
}

// DocumentRef identifies a document, optionally scoped to a context.
type DocumentRef struct {
	ContextID  string `json:"context_id,omitempty"`
	DocumentID string `json:"document_id"`
}

// UserRef identifies a user within a context, optionally for a single document.
type UserRef struct {
	ContextID  string `json:"context_id"`
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id,omitempty"`
}

// RecordFinalHashRequest is the input of record_final_hash.
type RecordFinalHashRequest struct {
	DocumentID string `json:"document_id"`
	Hash       string `json:"hash"`
}

// SignDocumentRequest is the input of sign_document.
// SignedHash and ArtifactRef describe the artifact produced by this signature and are optional.
type SignDocumentRequest struct {
	DocumentID          string `json:"document_id"`
	ConsentAcknowledged bool   `json:"consent_acknowledged"`
	SignedHash          string `json:"signed_hash,omitempty"`
	ArtifactRef         string `json:"artifact_ref,omitempty"`
}

// VerifyHashRequest is the input of verify_document_hash.
type VerifyHashRequest struct {
	DocumentID  string `json:"document_id"`
	HashToCheck string `json:"hash_to_check"`
}

// RegisterSelfRequest is the input of register_self_as_participant.
// Invitation is the signed invitation the caller received from the context admin.
type RegisterSelfRequest struct {
	ContextID  string `json:"context_id"`
	Invitation string `json:"invitation"`
}
