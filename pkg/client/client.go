/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/restapi/operation"
	"github.com/merosign/merosign/pkg/result"
)

const (
	failMarshalRequest = "failed to marshal %s request: %w"
	failSendRequest    = "failure while sending %s request to the ledger: %w"
	unexpectedStatus   = "the ledger returned status code %d for %s along with the following message: %s"
)

var logger = log.New("merosign-registry-client")

type addHeaders func(req *http.Request) (*http.Header, error)

type marshalFunc func(interface{}) ([]byte, error)

// Client is used to interact with the document ledger. It holds no ledger state.
type Client struct {
	ledgerURL   string
	httpClient  *http.Client
	marshal     marshalFunc
	headersFunc addHeaders
	caller      string
}

// Option configures the registry client.
type Option func(opts *Client)

// WithTLSConfig option is for definition of secured HTTP transport using a tls.Config instance
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(opts *Client) {
		opts.httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
}

// WithHeaders option is for setting additional http request headers
func WithHeaders(addHeadersFunc addHeaders) Option {
	return func(opts *Client) {
		opts.headersFunc = addHeadersFunc
	}
}

// WithCaller sets the default principal requests are made on behalf of.
func WithCaller(caller string) Option {
	return func(opts *Client) {
		opts.caller = caller
	}
}

// ReqOpts holds per-request options.
type ReqOpts struct {
	addHeadersFunc addHeaders
	caller         string
}

// ReqOption is a per-request option.
type ReqOption func(opts *ReqOpts)

// WithRequestHeader option is for setting additional http request headers
func WithRequestHeader(addHeadersFunc addHeaders) ReqOption {
	return func(opts *ReqOpts) {
		opts.addHeadersFunc = addHeadersFunc
	}
}

// AsCaller overrides the principal for a single request.
func AsCaller(caller string) ReqOption {
	return func(opts *ReqOpts) {
		opts.caller = caller
	}
}

// New returns a new registry client for the ledger at ledgerURL.
func New(ledgerURL string, opts ...Option) *Client {
	c := &Client{
		ledgerURL:  strings.TrimSuffix(ledgerURL, "/"),
		httpClient: &http.Client{},
		marshal:    json.Marshal,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateContext creates a context administered by the caller.
func (c *Client) CreateContext(ctx context.Context, req *models.CreateContextRequest, opts ...ReqOption) error {
	return c.call(ctx, operation.CreateContext, req, nil, opts)
}

// AddParticipant adds participantID to a context.
func (c *Client) AddParticipant(ctx context.Context, contextID, participantID string, opts ...ReqOption) error {
	return c.call(ctx, operation.AddParticipantToContext,
		&models.AddParticipantRequest{ContextID: contextID, ParticipantID: participantID}, nil, opts)
}

// RegisterSelfAsParticipant adds the caller to a context using an invitation signed by its admin.
func (c *Client) RegisterSelfAsParticipant(ctx context.Context, contextID, invitation string,
	opts ...ReqOption) error {
	return c.call(ctx, operation.RegisterSelfAsParticipant,
		&models.RegisterSelfRequest{ContextID: contextID, Invitation: invitation}, nil, opts)
}

// UploadDocument records a document and its original hash.
func (c *Client) UploadDocument(ctx context.Context, req *models.UploadDocumentRequest, opts ...ReqOption) error {
	return c.call(ctx, operation.UploadDocumentToContext, req, nil, opts)
}

// GetDocument returns a document.
func (c *Client) GetDocument(ctx context.Context, documentID string, opts ...ReqOption) (*models.Document, error) {
	var doc models.Document

	if err := c.call(ctx, operation.GetDocument, &models.DocumentRef{DocumentID: documentID}, &doc, opts); err != nil {
		return nil, err
	}

	return &doc, nil
}

// GetContextDocuments returns every document of a context.
func (c *Client) GetContextDocuments(ctx context.Context, contextID string,
	opts ...ReqOption) ([]models.Document, error) {
	var docs []models.Document

	if err := c.call(ctx, operation.GetContextDocuments, &models.ContextRef{ContextID: contextID}, &docs,
		opts); err != nil {
		return nil, err
	}

	return docs, nil
}

// GetContext returns a context.
func (c *Client) GetContext(ctx context.Context, contextID string, opts ...ReqOption) (*models.Context, error) {
	var sc models.Context

	if err := c.call(ctx, operation.GetContext, &models.ContextRef{ContextID: contextID}, &sc, opts); err != nil {
		return nil, err
	}

	return &sc, nil
}

// RecordFinalHash attests the final hash of a fully signed document.
func (c *Client) RecordFinalHash(ctx context.Context, documentID, hash string, opts ...ReqOption) error {
	return c.call(ctx, operation.RecordFinalHash,
		&models.RecordFinalHashRequest{DocumentID: documentID, Hash: hash}, nil, opts)
}

// RecordConsent records the caller's consent to sign a document.
func (c *Client) RecordConsent(ctx context.Context, contextID, documentID string, opts ...ReqOption) error {
	return c.call(ctx, operation.RecordConsentForContext,
		&models.DocumentRef{ContextID: contextID, DocumentID: documentID}, nil, opts)
}

// SignDocument adds the caller's signature to a document and returns the document as updated by the ledger.
func (c *Client) SignDocument(ctx context.Context, req *models.SignDocumentRequest,
	opts ...ReqOption) (*models.Document, error) {
	var doc models.Document

	if err := c.call(ctx, operation.SignDocument, req, &doc, opts); err != nil {
		return nil, err
	}

	return &doc, nil
}

// GetSigningProgress returns the signing progress of a context.
func (c *Client) GetSigningProgress(ctx context.Context, contextID string,
	opts ...ReqOption) (*models.SigningProgress, error) {
	var progress models.SigningProgress

	if err := c.call(ctx, operation.GetContextSigningProgress, &models.ContextRef{ContextID: contextID},
		&progress, opts); err != nil {
		return nil, err
	}

	return &progress, nil
}

// VerifyDocumentHash compares hashToCheck against the hashes the ledger recorded for a document.
func (c *Client) VerifyDocumentHash(ctx context.Context, documentID, hashToCheck string,
	opts ...ReqOption) (models.VerificationStatus, error) {
	var status models.VerificationStatus

	err := c.call(ctx, operation.VerifyDocumentHash,
		&models.VerifyHashRequest{DocumentID: documentID, HashToCheck: hashToCheck}, &status, opts)

	return status, err
}

// GetAuditTrail returns the audit trail of a context.
func (c *Client) GetAuditTrail(ctx context.Context, contextID string,
	opts ...ReqOption) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry

	if err := c.call(ctx, operation.GetAuditTrail, &models.ContextRef{ContextID: contextID}, &entries,
		opts); err != nil {
		return nil, err
	}

	return entries, nil
}

// GetAuditTrailForDocument returns the audit entries of one document.
func (c *Client) GetAuditTrailForDocument(ctx context.Context, contextID, documentID string,
	opts ...ReqOption) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry

	if err := c.call(ctx, operation.GetAuditTrailForDocument,
		&models.DocumentRef{ContextID: contextID, DocumentID: documentID}, &entries, opts); err != nil {
		return nil, err
	}

	return entries, nil
}

// IsUserContextParticipant reports whether userID belongs to a context.
func (c *Client) IsUserContextParticipant(ctx context.Context, contextID, userID string,
	opts ...ReqOption) (bool, error) {
	var participant bool

	err := c.call(ctx, operation.IsUserContextParticipant,
		&models.UserRef{ContextID: contextID, UserID: userID}, &participant, opts)

	return participant, err
}

// HasUserConsented reports whether userID consented to sign a document.
func (c *Client) HasUserConsented(ctx context.Context, contextID, userID, documentID string,
	opts ...ReqOption) (bool, error) {
	var consented bool

	err := c.call(ctx, operation.HasUserConsented,
		&models.UserRef{ContextID: contextID, UserID: userID, DocumentID: documentID}, &consented, opts)

	return consented, err
}

// call sends request to a ledger operation and decodes the Ok value into dst.
// Every returned error is a *result.Failure.
func (c *Client) call(ctx context.Context, op string, request, dst interface{}, opts []ReqOption) error {
	reqOpt := &ReqOpts{caller: c.caller}

	for _, o := range opts {
		o(reqOpt)
	}

	jsonToSend, err := c.marshal(request)
	if err != nil {
		return result.FromError(fmt.Errorf(failMarshalRequest, op, err))
	}

	logger.Debugf("Sending %s request on behalf of %q: %s", op, reqOpt.caller, jsonToSend)

	statusCode, respBytes, err := c.sendHTTPRequest(ctx, c.ledgerURL+operation.EndpointPath(op), jsonToSend,
		reqOpt)
	if err != nil {
		if ctx.Err() != nil {
			return result.FromError(ctx.Err())
		}

		return result.FromError(fmt.Errorf(failSendRequest, op, err))
	}

	switch statusCode {
	case http.StatusOK, http.StatusBadRequest:
	case http.StatusServiceUnavailable:
		return result.Unavailable(fmt.Errorf(unexpectedStatus, statusCode, op, respBytes))
	default:
		return result.FromError(fmt.Errorf(unexpectedStatus, statusCode, op, respBytes))
	}

	res, err := result.Decode(respBytes)
	if err != nil {
		return result.FromError(fmt.Errorf("%s: %w", op, err))
	}

	return result.UnwrapOrThrow(res, dst)
}

func (c *Client) sendHTTPRequest(ctx context.Context, endpoint string, body []byte,
	reqOpt *ReqOpts) (int, []byte, error) {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if errReq != nil {
		return -1, nil, errReq
	}

	if addHeadersFunc := c.getHeaderFunc(reqOpt); addHeadersFunc != nil {
		httpHeaders, err := addHeadersFunc(req)
		if err != nil {
			return -1, nil, fmt.Errorf("add optional request headers error: %w", err)
		}

		if httpHeaders != nil {
			req.Header = httpHeaders.Clone()
		}
	}

	req.Header.Set("Content-Type", "application/json")

	if reqOpt.caller != "" {
		req.Header.Set(operation.CallerHeader, reqOpt.caller)
	}

	resp, err := c.httpClient.Do(req) //nolint: bodyclose
	if err != nil {
		return -1, nil, err
	}

	defer closeReadCloser(resp.Body)

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return -1, nil, err
	}

	logger.Debugf(`sent POST request to %s response status code: %d response body: %s`, endpoint,
		resp.StatusCode, respBytes)

	return resp.StatusCode, respBytes, nil
}

func (c *Client) getHeaderFunc(reqOpt *ReqOpts) addHeaders {
	headersFunc := c.headersFunc

	if reqOpt.addHeadersFunc != nil {
		headersFunc = reqOpt.addHeadersFunc
	}

	return headersFunc
}

func closeReadCloser(respBody io.ReadCloser) {
	err := respBody.Close()
	if err != nil {
		logger.Errorf("Failed to close response body: %s", err)
	}
}
