/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package collab is an HTTP client for the admin API of a collaboration node.
package collab

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/result"
)

const (
	defaultPollInterval = 2 * time.Second
	eventBufferSize     = 16
)

// Client is used to interact with a collaboration node.
type Client struct {
	nodeURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

var _ collab.Client = (*Client)(nil)

// Option configures the collaboration client
type Option func(opts *Client)

// WithTLSConfig option is for definition of secured HTTP transport using a tls.Config instance
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(opts *Client) {
		opts.httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
}

// WithPollInterval sets how often a subscription polls the context root hash.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *Client) {
		opts.pollInterval = interval
	}
}

// New returns a new instance of a collaboration node client.
func New(nodeURL string, opts ...Option) *Client {
	c := &Client{
		nodeURL:      strings.TrimSuffix(nodeURL, "/"),
		httpClient:   &http.Client{},
		pollInterval: defaultPollInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateIdentity asks the node for a new member identity.
func (c *Client) CreateIdentity(ctx context.Context) (*collab.Identity, error) {
	var identity collab.Identity

	if err := c.send(ctx, http.MethodPost, collab.IdentityPath, nil, &identity); err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	return &identity, nil
}

// JoinContext joins the context named by the invitation with the given identity.
func (c *Client) JoinContext(ctx context.Context, invitation string,
	identity *collab.Identity) (*collab.JoinResult, error) {
	if identity == nil {
		return nil, fmt.Errorf("%w: missing identity", collab.ErrNotMember)
	}

	var joined collab.JoinResult

	err := c.send(ctx, http.MethodPost, collab.JoinPath,
		&collab.JoinRequest{Invitation: invitation, PublicKey: identity.PublicKey}, &joined)
	if err != nil {
		return nil, fmt.Errorf("failed to join context: %w", err)
	}

	return &joined, nil
}

// GetContext returns the node's replica info for a context.
func (c *Client) GetContext(ctx context.Context, contextID string) (*collab.ContextInfo, error) {
	var info collab.ContextInfo

	if err := c.send(ctx, http.MethodGet, contextPath(collab.ContextPath, contextID), nil, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// RegisterInWorkspace records a joined context in the member's private workspace.
func (c *Client) RegisterInWorkspace(ctx context.Context, entry *collab.WorkspaceEntry) error {
	if err := c.send(ctx, http.MethodPost, collab.WorkspacePath, entry, nil); err != nil {
		return fmt.Errorf("failed to register context %s in workspace: %w", entry.ContextID, err)
	}

	return nil
}

// ListWorkspace returns the contexts registered in the member's private workspace.
func (c *Client) ListWorkspace(ctx context.Context) ([]collab.WorkspaceEntry, error) {
	entries := []collab.WorkspaceEntry{}

	if err := c.send(ctx, http.MethodGet, collab.WorkspacePath, nil, &entries); err != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", err)
	}

	return entries, nil
}

// LeaveWorkspace removes a context from the member's private workspace.
func (c *Client) LeaveWorkspace(ctx context.Context, contextID string) error {
	if err := c.send(ctx, http.MethodDelete, contextPath(collab.WorkspaceEntryPath, contextID), nil, nil); err != nil {
		return fmt.Errorf("failed to leave context %s: %w", contextID, err)
	}

	return nil
}

// MarkParticipantSigned records a signature in the replicated state.
func (c *Client) MarkParticipantSigned(ctx context.Context, mark *collab.SignatureMark) error {
	return c.send(ctx, http.MethodPost, contextPath(collab.SignaturesPath, mark.ContextID), mark, nil)
}

// Subscribe polls the context root hash and emits a StateChanged event whenever it changes.
// The event channel is closed on unsubscribe or when ctx is done.
func (c *Client) Subscribe(ctx context.Context, contextID string) (collab.Subscription, error) {
	info, err := c.GetContext(ctx, contextID)
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(ctx)

	sub := &subscription{
		events: make(chan collab.Event, eventBufferSize),
		cancel: cancel,
	}

	ticker := backoff.NewTicker(backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), pollCtx))

	go func() {
		defer close(sub.events)
		defer ticker.Stop()

		last := info.RootHash

		for {
			select {
			case <-pollCtx.Done():
				return
			case _, ok := <-ticker.C:
				if !ok {
					return
				}
			}

			current, err := c.GetContext(pollCtx, contextID)
			if err != nil {
				if pollCtx.Err() == nil {
					log.Warnf("Failed to poll context %s: %s", contextID, err)
				}

				continue
			}

			if current.RootHash == last {
				continue
			}

			last = current.RootHash

			select {
			case sub.events <- collab.Event{Type: collab.StateChanged, ContextID: contextID, RootHash: last}:
			case <-pollCtx.Done():
				return
			}
		}
	}()

	return sub, nil
}

type subscription struct {
	events chan collab.Event
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Events() <-chan collab.Event {
	return s.events
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

func (c *Client) send(ctx context.Context, method, path string, request, response interface{}) error {
	var body io.Reader

	if request != nil {
		jsonToSend, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("failed to marshal object: %w", err)
		}

		body = bytes.NewBuffer(jsonToSend)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.nodeURL+path, body)
	if err != nil {
		return err
	}

	if request != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// The linter falsely claims that the body is not being closed
	// https://github.com/golangci/golangci-lint/issues/637
	resp, err := c.httpClient.Do(req) //nolint: bodyclose
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return result.Unavailable(fmt.Errorf("failed to send %s message: %w", method, err))
	}

	defer closeReadCloser(resp.Body)

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if response == nil {
			return nil
		}

		return json.Unmarshal(respBytes, response)
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", collab.ErrContextNotFound, respBytes)
	case http.StatusForbidden:
		return statusForbiddenErr(respBytes)
	case http.StatusServiceUnavailable:
		return result.Unavailable(fmt.Errorf("the node returned status code %d", resp.StatusCode))
	default:
		return fmt.Errorf("the node returned status code %d along with the following message: %s",
			resp.StatusCode, respBytes)
	}
}

func statusForbiddenErr(respBytes []byte) error {
	respString := string(respBytes)

	if strings.HasPrefix(respString, collab.ErrInvalidInvitation.Error()) {
		return fmt.Errorf("%w: %s", collab.ErrInvalidInvitation, strings.TrimPrefix(respString,
			collab.ErrInvalidInvitation.Error()+": "))
	}

	return fmt.Errorf("%w: %s", collab.ErrNotMember, respString)
}

func contextPath(pattern, contextID string) string {
	return strings.Replace(pattern, "{"+collab.ContextIDPathParam+"}", url.PathEscape(contextID), 1)
}

func closeReadCloser(respBody io.ReadCloser) {
	err := respBody.Close()
	if err != nil {
		log.Errorf("Failed to close response body: %s", err.Error())
	}
}
