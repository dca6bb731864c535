/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operation

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/internal/common/support"
	"github.com/merosign/merosign/pkg/restapi/models"
)

const (
	logModuleName = "restapi"

	// CallerHeader carries the principal a request is made on behalf of.
	CallerHeader = "X-Caller-ID"

	ledgerEndpointPathRoot = "/ledger"

	// Operation names double as the last path segment of each endpoint.
	CreateContext             = "create_context"
	AddParticipantToContext   = "add_participant_to_context"
	UploadDocumentToContext   = "upload_document_to_context"
	GetDocument               = "get_document"
	GetContextDocuments       = "get_context_documents"
	RecordFinalHash           = "record_final_hash"
	RecordConsentForContext   = "record_consent_for_context"
	SignDocument              = "sign_document"
	GetContextSigningProgress = "get_context_signing_progress"
	VerifyDocumentHash        = "verify_document_hash"
	GetAuditTrail             = "get_audit_trail"
	GetAuditTrailForDocument  = "get_audit_trail_for_document"
	IsUserContextParticipant  = "is_user_context_participant"
	HasUserConsented          = "has_user_consented"
	GetContext                = "get_context"
	RegisterSelfAsParticipant = "register_self_as_participant"

	maxRequestBodySize = 1 << 20
)

var logger = log.New(logModuleName)

// EndpointPath returns the path of a ledger operation.
func EndpointPath(operation string) string {
	return ledgerEndpointPathRoot + "/" + operation
}

// Ledger is the state machine behind the REST API.
type Ledger interface {
	CreateContext(caller string, req *models.CreateContextRequest) error
	AddParticipant(caller, contextID, participantID string) error
	RegisterSelfAsParticipant(caller string, req *models.RegisterSelfRequest) error
	UploadDocument(caller string, req *models.UploadDocumentRequest) error
	GetDocument(documentID string) (*models.Document, error)
	GetContextDocuments(contextID string) ([]models.Document, error)
	GetContext(contextID string) (*models.Context, error)
	RecordFinalHash(caller, documentID, hash string) error
	RecordConsent(caller, contextID, documentID string) error
	SignDocument(caller string, req *models.SignDocumentRequest) (*models.Document, error)
	GetSigningProgress(contextID string) (*models.SigningProgress, error)
	VerifyDocumentHash(documentID, hashToCheck string) (models.VerificationStatus, error)
	GetAuditTrail(contextID string) ([]models.AuditEntry, error)
	GetAuditTrailForDocument(contextID, documentID string) ([]models.AuditEntry, error)
	IsUserContextParticipant(contextID, userID string) (bool, error)
	HasUserConsented(contextID, userID, documentID string) (bool, error)
}

// Handler represents an HTTP handler for each controller API endpoint.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}

// Operation defines handler logic for the ledger service.
type Operation struct {
	handlers []Handler
	ledger   Ledger
}

// Config defines configuration for ledger operations.
type Config struct {
	Ledger Ledger
}

// New returns a new ledger operations instance.
func New(config *Config) *Operation {
	svc := &Operation{ledger: config.Ledger}

	svc.registerHandler()

	return svc
}

// registerHandler register handlers to be exposed from this service as REST API endpoints.
func (c *Operation) registerHandler() {
	routes := []struct {
		name   string
		handle http.HandlerFunc
	}{
		{CreateContext, c.createContextHandler},
		{AddParticipantToContext, c.addParticipantHandler},
		{UploadDocumentToContext, c.uploadDocumentHandler},
		{GetDocument, c.getDocumentHandler},
		{GetContextDocuments, c.getContextDocumentsHandler},
		{RecordFinalHash, c.recordFinalHashHandler},
		{RecordConsentForContext, c.recordConsentHandler},
		{SignDocument, c.signDocumentHandler},
		{GetContextSigningProgress, c.getSigningProgressHandler},
		{VerifyDocumentHash, c.verifyDocumentHashHandler},
		{GetAuditTrail, c.getAuditTrailHandler},
		{GetAuditTrailForDocument, c.getAuditTrailForDocumentHandler},
		{IsUserContextParticipant, c.isUserContextParticipantHandler},
		{HasUserConsented, c.hasUserConsentedHandler},
		{GetContext, c.getContextHandler},
		{RegisterSelfAsParticipant, c.registerSelfHandler},
	}

	c.handlers = make([]Handler, 0, len(routes))

	for _, r := range routes {
		c.handlers = append(c.handlers, support.NewHTTPHandler(EndpointPath(r.name), http.MethodPost, r.handle))
	}
}

// GetRESTHandlers gets all controller API handler available for this service.
func (c *Operation) GetRESTHandlers() []Handler {
	return c.handlers
}

// Create Context swagger:route POST /ledger/create_context createContextReq
//
// Creates a signing context administered by the caller.
//
// Responses:
//
//	default: genericError
//	    200: unitRes
func (c *Operation) createContextHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.CreateContextRequest

	c.serve(rw, req, CreateContext, &request, func(caller string) (interface{}, error) {
		return nil, c.ledger.CreateContext(caller, &request)
	})
}

// Add Participant swagger:route POST /ledger/add_participant_to_context addParticipantReq
//
// Adds a participant to a context. Admin only.
//
// Responses:
//
//	default: genericError
//	    200: unitRes
func (c *Operation) addParticipantHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.AddParticipantRequest

	c.serve(rw, req, AddParticipantToContext, &request, func(caller string) (interface{}, error) {
		return nil, c.ledger.AddParticipant(caller, request.ContextID, request.ParticipantID)
	})
}

// Upload Document swagger:route POST /ledger/upload_document_to_context uploadDocumentReq
//
// Records a new document and its original hash. Admin only.
//
// Responses:
//
//	default: genericError
//	    200: unitRes
func (c *Operation) uploadDocumentHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.UploadDocumentRequest

	c.serve(rw, req, UploadDocumentToContext, &request, func(caller string) (interface{}, error) {
		return nil, c.ledger.UploadDocument(caller, &request)
	})
}

// Get Document swagger:route POST /ledger/get_document documentRefReq
//
// Returns a document.
//
// Responses:
//
//	default: genericError
//	    200: documentRes
func (c *Operation) getDocumentHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.DocumentRef

	c.serve(rw, req, GetDocument, &request, func(string) (interface{}, error) {
		return c.ledger.GetDocument(request.DocumentID)
	})
}

// Get Context Documents swagger:route POST /ledger/get_context_documents contextRefReq
//
// Returns every document of a context.
//
// Responses:
//
//	default: genericError
//	    200: documentsRes
func (c *Operation) getContextDocumentsHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.ContextRef

	c.serve(rw, req, GetContextDocuments, &request, func(string) (interface{}, error) {
		return c.ledger.GetContextDocuments(request.ContextID)
	})
}

// Record Final Hash swagger:route POST /ledger/record_final_hash recordFinalHashReq
//
// Attests the final hash of a fully signed document. Admin only.
//
// Responses:
//
//	default: genericError
//	    200: unitRes
func (c *Operation) recordFinalHashHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.RecordFinalHashRequest

	c.serve(rw, req, RecordFinalHash, &request, func(caller string) (interface{}, error) {
		return nil, c.ledger.RecordFinalHash(caller, request.DocumentID, request.Hash)
	})
}

// Record Consent swagger:route POST /ledger/record_consent_for_context documentRefReq
//
// Records the caller's consent to sign a document.
//
// Responses:
//
//	default: genericError
//	    200: unitRes
func (c *Operation) recordConsentHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.DocumentRef

	c.serve(rw, req, RecordConsentForContext, &request, func(caller string) (interface{}, error) {
		return nil, c.ledger.RecordConsent(caller, request.ContextID, request.DocumentID)
	})
}

// Sign Document swagger:route POST /ledger/sign_document signDocumentReq
//
// Adds the caller's signature to a document.
//
// Responses:
//
//	default: genericError
//	    200: documentRes
func (c *Operation) signDocumentHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.SignDocumentRequest

	c.serve(rw, req, SignDocument, &request, func(caller string) (interface{}, error) {
		return c.ledger.SignDocument(caller, &request)
	})
}

// Signing Progress swagger:route POST /ledger/get_context_signing_progress contextRefReq
//
// Returns the signing progress of a context.
//
// Responses:
//
//	default: genericError
//	    200: progressRes
func (c *Operation) getSigningProgressHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.ContextRef

	c.serve(rw, req, GetContextSigningProgress, &request, func(string) (interface{}, error) {
		return c.ledger.GetSigningProgress(request.ContextID)
	})
}

// Verify Hash swagger:route POST /ledger/verify_document_hash verifyHashReq
//
// Compares a hash against the hashes recorded for a document.
//
// Responses:
//
//	default: genericError
//	    200: verificationRes
func (c *Operation) verifyDocumentHashHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.VerifyHashRequest

	c.serve(rw, req, VerifyDocumentHash, &request, func(string) (interface{}, error) {
		return c.ledger.VerifyDocumentHash(request.DocumentID, request.HashToCheck)
	})
}

// Audit Trail swagger:route POST /ledger/get_audit_trail contextRefReq
//
// Returns the audit trail of a context.
//
// Responses:
//
//	default: genericError
//	    200: auditRes
func (c *Operation) getAuditTrailHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.ContextRef

	c.serve(rw, req, GetAuditTrail, &request, func(string) (interface{}, error) {
		return c.ledger.GetAuditTrail(request.ContextID)
	})
}

// Document Audit Trail swagger:route POST /ledger/get_audit_trail_for_document documentRefReq
//
// Returns the audit entries of one document.
//
// Responses:
//
//	default: genericError
//	    200: auditRes
func (c *Operation) getAuditTrailForDocumentHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.DocumentRef

	c.serve(rw, req, GetAuditTrailForDocument, &request, func(string) (interface{}, error) {
		return c.ledger.GetAuditTrailForDocument(request.ContextID, request.DocumentID)
	})
}

// Is Participant swagger:route POST /ledger/is_user_context_participant userRefReq
//
// Reports whether a user belongs to a context.
//
// Responses:
//
//	default: genericError
//	    200: boolRes
func (c *Operation) isUserContextParticipantHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.UserRef

	c.serve(rw, req, IsUserContextParticipant, &request, func(string) (interface{}, error) {
		return c.ledger.IsUserContextParticipant(request.ContextID, request.UserID)
	})
}

// Has Consented swagger:route POST /ledger/has_user_consented userRefReq
//
// Reports whether a user consented to sign a document.
//
// Responses:
//
//	default: genericError
//	    200: boolRes
func (c *Operation) hasUserConsentedHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.UserRef

	c.serve(rw, req, HasUserConsented, &request, func(string) (interface{}, error) {
		return c.ledger.HasUserConsented(request.ContextID, request.UserID, request.DocumentID)
	})
}

// Get Context swagger:route POST /ledger/get_context contextRefReq
//
// Returns a context.
//
// Responses:
//
//	default: genericError
//	    200: contextRes
func (c *Operation) getContextHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.ContextRef

	c.serve(rw, req, GetContext, &request, func(string) (interface{}, error) {
		return c.ledger.GetContext(request.ContextID)
	})
}

// Register Self swagger:route POST /ledger/register_self_as_participant registerSelfReq
//
// Adds the caller to a context using an invitation signed by the admin.
//
// Responses:
//
//	default: genericError
//	    200: unitRes
func (c *Operation) registerSelfHandler(rw http.ResponseWriter, req *http.Request) {
	var request models.RegisterSelfRequest

	c.serve(rw, req, RegisterSelfAsParticipant, &request, func(caller string) (interface{}, error) {
		return nil, c.ledger.RegisterSelfAsParticipant(caller, &request)
	})
}

// serve decodes the request body into request, runs call on behalf of the caller and writes the result.
func (c *Operation) serve(rw http.ResponseWriter, req *http.Request, operation string, request interface{},
	call func(caller string) (interface{}, error)) {
	caller := req.Header.Get(CallerHeader)

	body, ok := readBody(rw, req, operation)
	if !ok {
		return
	}

	if err := decodeStrict(body, request); err != nil {
		writeInvalidRequest(rw, operation, err, body)
		return
	}

	value, err := call(caller)

	writeResult(rw, operation, caller, value, err)
}

func decodeStrict(body []byte, v interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()

	return decoder.Decode(v)
}
