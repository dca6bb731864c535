/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	spi "github.com/hyperledger/aries-framework-go/spi/storage"
)

// Supported database types.
const (
	DatabaseTypeMem     = "mem"
	DatabaseTypeMongoDB = "mongodb"
)

const (
	localStateStoreName = "merosign_session"

	keyContextID         = "context_id"
	keyMemberPublicKey   = "member_public_key"
	keyPendingInvitation = "pending_invitation"
	keySigningKey        = "signing_key"
)

// ErrInvalidDatabaseType is returned by NewProvider for an unsupported database type.
var ErrInvalidDatabaseType = errors.New("database type not set to a valid type")

// NewProvider returns an aries storage provider for the given database type.
// url and prefix are only used by mongodb.
func NewProvider(databaseType, url, prefix string) (spi.Provider, error) {
	switch {
	case strings.EqualFold(databaseType, DatabaseTypeMem):
		return mem.NewProvider(), nil
	case strings.EqualFold(databaseType, DatabaseTypeMongoDB):
		p, err := mongodb.NewProvider(url, mongodb.WithDBPrefix(prefix))
		if err != nil {
			return nil, fmt.Errorf("failed to create mongodb provider: %w", err)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidDatabaseType, databaseType,
			DatabaseTypeMem, DatabaseTypeMongoDB)
	}
}

// LocalState is the durable per-user state shared by every operation of a session:
// the joined context, the member public key and a pending invitation.
type LocalState struct {
	store spi.Store
}

// Joined is the outcome of a completed join.
type Joined struct {
	ContextID       string
	MemberPublicKey string
}

// OpenLocalState opens the session store in provider.
func OpenLocalState(provider spi.Provider) (*LocalState, error) {
	store, err := provider.OpenStore(localStateStoreName)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", localStateStoreName, err)
	}

	return &LocalState{store: store}, nil
}

// PendingInvitation returns the stashed invitation, or "" when there is none.
func (s *LocalState) PendingInvitation() (string, error) {
	return s.get(keyPendingInvitation)
}

// StashInvitation persists an invitation so a restart can resume the join.
func (s *LocalState) StashInvitation(invitation string) error {
	return s.put(keyPendingInvitation, invitation)
}

// ClearInvitation removes the stashed invitation. Clearing an empty stash is not an error.
func (s *LocalState) ClearInvitation() error {
	return s.delete(keyPendingInvitation)
}

// SaveJoined persists the context and member key produced by a join.
func (s *LocalState) SaveJoined(joined Joined) error {
	err := s.store.Batch([]spi.Operation{
		{Key: keyContextID, Value: []byte(joined.ContextID)},
		{Key: keyMemberPublicKey, Value: []byte(joined.MemberPublicKey)},
	})
	if err != nil {
		return fmt.Errorf("failed to save joined context: %w", err)
	}

	return nil
}

// Joined returns the persisted join outcome. Missing fields are returned empty.
func (s *LocalState) Joined() (Joined, error) {
	contextID, err := s.get(keyContextID)
	if err != nil {
		return Joined{}, err
	}

	memberKey, err := s.get(keyMemberPublicKey)
	if err != nil {
		return Joined{}, err
	}

	return Joined{ContextID: contextID, MemberPublicKey: memberKey}, nil
}

// SaveSigningKey persists the encoded private key used to sign invitations. It survives Reset.
func (s *LocalState) SaveSigningKey(key string) error {
	return s.put(keySigningKey, key)
}

// SigningKey returns the encoded signing key, or "" when none was saved.
func (s *LocalState) SigningKey() (string, error) {
	return s.get(keySigningKey)
}

// Reset forgets the joined context and any pending invitation.
func (s *LocalState) Reset() error {
	for _, k := range []string{keyContextID, keyMemberPublicKey, keyPendingInvitation} {
		if err := s.delete(k); err != nil {
			return err
		}
	}

	return nil
}

func (s *LocalState) get(key string) (string, error) {
	v, err := s.store.Get(key)
	if err != nil {
		if errors.Is(err, spi.ErrDataNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}

	return string(v), nil
}

func (s *LocalState) put(key, value string) error {
	if err := s.store.Put(key, []byte(value)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	return nil
}

func (s *LocalState) delete(key string) error {
	if err := s.store.Delete(key); err != nil && !errors.Is(err, spi.ErrDataNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}
