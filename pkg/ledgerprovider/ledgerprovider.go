/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledgerprovider implements the document ledger over an Aries storage provider.
//
// Four stores back the ledger: contexts and documents keyed by ID, consents keyed by
// context, user and document, and one append-only audit trail per context. Every operation
// runs under a single lock, which makes the provider the serialization point for all writers.
package ledgerprovider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/restapi/models"
)

const (
	logModuleName = "ledger-provider"

	contextStoreName  = "contexts"
	documentStoreName = "documents"
	consentStoreName  = "consents"
	auditStoreName    = "audit"

	contextTagName = "contextID"
	userTagName    = "userID"

	consentKeySeparator = "|"

	systemUserID = "system"

	defaultRetrievalPageSize = 100
)

var logger = log.New(logModuleName)

// Provider is the ledger state machine. It is safe for concurrent use.
type Provider struct {
	mu                sync.Mutex
	contexts          storage.Store
	documents         storage.Store
	consents          storage.Store
	audit             storage.Store
	retrievalPageSize int
	now               func() time.Time
	newEntryID        func() string
}

// Option configures a Provider.
type Option func(p *Provider)

// WithClock overrides the time source used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithRetrievalPageSize sets the page size used when querying the underlying storage.
func WithRetrievalPageSize(size int) Option {
	return func(p *Provider) {
		p.retrievalPageSize = size
	}
}

// New opens the ledger stores in storageProvider.
func New(storageProvider storage.Provider, opts ...Option) (*Provider, error) {
	p := &Provider{
		retrievalPageSize: defaultRetrievalPageSize,
		now:               time.Now,
		newEntryID:        func() string { return "audit_" + uuid.New().String() },
	}

	for _, opt := range opts {
		opt(p)
	}

	var err error

	if p.contexts, err = storageProvider.OpenStore(contextStoreName); err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", contextStoreName, err)
	}

	if p.documents, err = storageProvider.OpenStore(documentStoreName); err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", documentStoreName, err)
	}

	if p.consents, err = storageProvider.OpenStore(consentStoreName); err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", consentStoreName, err)
	}

	if p.audit, err = storageProvider.OpenStore(auditStoreName); err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", auditStoreName, err)
	}

	err = storageProvider.SetStoreConfig(consentStoreName,
		storage.StoreConfiguration{TagNames: []string{contextTagName, userTagName}})
	if err != nil {
		return nil, fmt.Errorf("failed to set %s store configuration: %w", consentStoreName, err)
	}

	err = storageProvider.SetStoreConfig(documentStoreName,
		storage.StoreConfiguration{TagNames: []string{contextTagName}})
	if err != nil {
		return nil, fmt.Errorf("failed to set %s store configuration: %w", documentStoreName, err)
	}

	return p, nil
}

func (p *Provider) timestamp() int64 {
	return p.now().UnixNano()
}

// loadContext returns the context or nil when it does not exist. An active context past its expiry
// is moved to Expired and persisted before being returned.
func (p *Provider) loadContext(contextID string) (*models.Context, error) {
	var c models.Context

	found, err := getJSON(p.contexts, contextID, &c)
	if err != nil || !found {
		return nil, err
	}

	if c.Status == models.ContextActive && c.Metadata.ExpiresAt != 0 && p.timestamp() > c.Metadata.ExpiresAt {
		c.Status = models.ContextExpired

		logger.Infof("Context %s expired", contextID)

		if err = p.saveContext(&c); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

func (p *Provider) saveContext(c *models.Context) error {
	return putJSON(p.contexts, c.ContextID, c)
}

func (p *Provider) loadDocument(documentID string) (*models.Document, error) {
	var d models.Document

	found, err := getJSON(p.documents, documentID, &d)
	if err != nil || !found {
		return nil, err
	}

	return &d, nil
}

func (p *Provider) saveDocument(d *models.Document) error {
	return putJSON(p.documents, d.DocumentID, d, storage.Tag{Name: contextTagName, Value: d.ContextID})
}

func (p *Provider) loadDocuments(documentIDs []string) ([]models.Document, error) {
	if len(documentIDs) == 0 {
		return []models.Document{}, nil
	}

	values, err := p.documents.GetBulk(documentIDs...)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}

	documents := make([]models.Document, 0, len(values))

	for i, v := range values {
		if v == nil {
			logger.Warnf("Document %s is listed in its context but missing from storage", documentIDs[i])

			continue
		}

		var d models.Document

		if err = json.Unmarshal(v, &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s: %w", documentIDs[i], err)
		}

		documents = append(documents, d)
	}

	return documents, nil
}

func consentKey(contextID, userID, documentID string) string {
	return strings.Join([]string{contextID, userID, documentID}, consentKeySeparator)
}

func (p *Provider) hasConsent(contextID, userID, documentID string) (bool, error) {
	_, err := p.consents.Get(consentKey(contextID, userID, documentID))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read consent: %w", err)
	}

	return true, nil
}

func (p *Provider) putConsent(contextID, userID, documentID string, timestamp int64) error {
	value, err := json.Marshal(map[string]interface{}{"document_id": documentID, "timestamp": timestamp})
	if err != nil {
		return err
	}

	return p.consents.Put(consentKey(contextID, userID, documentID), value,
		storage.Tag{Name: contextTagName, Value: contextID},
		storage.Tag{Name: userTagName, Value: userID})
}

// consentedUsers returns every user who consented to at least one document of the context.
func (p *Provider) consentedUsers(contextID string) ([]string, error) {
	iterator, err := p.consents.Query(contextTagName+":"+contextID, storage.WithPageSize(p.retrievalPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to query consents: %w", err)
	}

	defer storage.Close(iterator, logger)

	seen := make(map[string]struct{})

	more, err := iterator.Next()
	if err != nil {
		return nil, err
	}

	for more {
		tags, tagsErr := iterator.Tags()
		if tagsErr != nil {
			return nil, tagsErr
		}

		for _, tag := range tags {
			if tag.Name == userTagName {
				seen[tag.Value] = struct{}{}
			}
		}

		more, err = iterator.Next()
		if err != nil {
			return nil, err
		}
	}

	return sortedKeys(seen), nil
}

func (p *Provider) loadAudit(contextID string) ([]models.AuditEntry, error) {
	entries := []models.AuditEntry{}

	if _, err := getJSON(p.audit, contextID, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

func (p *Provider) appendAudit(entry models.AuditEntry) error {
	entries, err := p.loadAudit(entry.ContextID)
	if err != nil {
		return err
	}

	entry.EntryID = p.newEntryID()
	if entry.Timestamp == 0 {
		entry.Timestamp = p.timestamp()
	}

	return putJSON(p.audit, entry.ContextID, append(entries, entry))
}

func getJSON(store storage.Store, key string, v interface{}) (bool, error) {
	value, err := store.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err = json.Unmarshal(value, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return true, nil
}

func putJSON(store storage.Store, key string, v interface{}, tags ...storage.Tag) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err = store.Put(key, value, tags...); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}

	return nil
}

func boolPtr(b bool) *bool { return &b }
