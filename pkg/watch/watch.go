/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package watch refreshes a view of a context whenever the collaboration context changes.
package watch

import (
	"context"
	"fmt"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/client"
	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/session"
)

var logger = log.New("merosign-watch")

// Ledger is the part of the registry client a watcher reads from.
type Ledger interface {
	GetContext(ctx context.Context, contextID string, opts ...client.ReqOption) (*models.Context, error)
	GetContextDocuments(ctx context.Context, contextID string, opts ...client.ReqOption) ([]models.Document, error)
}

// Snapshot is a fresh read of a context and its documents.
type Snapshot struct {
	Event     *collab.Event
	Context   *models.Context
	Documents []models.Document
}

// Watcher re-reads the ledger on every context event. It keeps no copy of what it read.
type Watcher struct {
	collab  collab.Client
	ledger  Ledger
	handle  func(Snapshot)
	onError func(error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithErrorHandler receives refresh failures. Failures are logged either way.
func WithErrorHandler(onError func(error)) Option {
	return func(w *Watcher) {
		w.onError = onError
	}
}

// New returns a Watcher that passes every snapshot to handle.
func New(collabClient collab.Client, ledger Ledger, handle func(Snapshot), opts ...Option) *Watcher {
	w := &Watcher{collab: collabClient, ledger: ledger, handle: handle}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Watch delivers a snapshot right away and then one per event, until ctx is done or the subscription ends.
func (w *Watcher) Watch(ctx context.Context, sess *session.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	sub, err := w.collab.Subscribe(ctx, sess.ContextID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to context %s: %w", sess.ContextID, err)
	}

	defer sub.Unsubscribe()

	w.refresh(ctx, sess, nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}

			w.refresh(ctx, sess, &event)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context, sess *session.Session, event *collab.Event) {
	caller := client.AsCaller(sess.Caller())

	sc, err := w.ledger.GetContext(ctx, sess.ContextID, caller)
	if err != nil {
		w.fail(fmt.Errorf("failed to refresh context %s: %w", sess.ContextID, err))

		return
	}

	docs, err := w.ledger.GetContextDocuments(ctx, sess.ContextID, caller)
	if err != nil {
		w.fail(fmt.Errorf("failed to refresh documents of context %s: %w", sess.ContextID, err))

		return
	}

	w.handle(Snapshot{Event: event, Context: sc, Documents: docs})
}

func (w *Watcher) fail(err error) {
	logger.Warnf("%s", err)

	if w.onError != nil {
		w.onError(err)
	}
}
