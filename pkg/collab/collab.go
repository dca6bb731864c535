/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package collab defines the collaboration context: the peer-replicated state shared by the members of a
// signing context, reached through a local node.
package collab

import (
	"context"
	"errors"
)

// EmptyRootHash is the root hash of a context replica that has not synced any state yet
// (base58 of 32 zero bytes).
const EmptyRootHash = "11111111111111111111111111111111"

var (
	// ErrContextNotFound is returned for contexts the node has no replica of.
	ErrContextNotFound = errors.New("collaboration context not found")
	// ErrNotMember is returned when an identity is not a member of the context.
	ErrNotMember = errors.New("identity is not a member of the context")
	// ErrInvalidInvitation is returned when a node rejects an invitation.
	ErrInvalidInvitation = errors.New("invitation rejected by node")
)

// Identity is a member identity created by the node. The node keeps the private key.
type Identity struct {
	PublicKey string `json:"public_key"`
}

// JoinResult is returned by a successful join.
type JoinResult struct {
	ContextID       string `json:"context_id"`
	MemberPublicKey string `json:"member_public_key"`
}

// ContextInfo describes a context replica.
type ContextInfo struct {
	ContextID string `json:"context_id"`
	RootHash  string `json:"root_hash"`
}

// Synced reports whether the replica has received any state.
func (c *ContextInfo) Synced() bool {
	return c.RootHash != "" && c.RootHash != EmptyRootHash
}

// WorkspaceEntry registers a joined context in the member's private workspace.
// JoinedAt is a Unix timestamp in nanoseconds set by the node on registration.
type WorkspaceEntry struct {
	ContextID       string `json:"context_id"`
	ContextName     string `json:"context_name"`
	MemberPublicKey string `json:"member_public_key"`
	JoinedAt        int64  `json:"joined_at,omitempty"`
}

// SignatureMark notes, for the other members, that a participant signed a document.
type SignatureMark struct {
	ContextID       string `json:"context_id"`
	MemberPublicKey string `json:"member_public_key"`
	DocumentID      string `json:"document_id"`
}

// EventType names a context event.
type EventType string

const (
	// StateChanged is emitted whenever the replicated state of a context changes.
	StateChanged EventType = "StateChanged"
)

// Event is a notification about a context.
type Event struct {
	Type      EventType `json:"type"`
	ContextID string    `json:"context_id"`
	RootHash  string    `json:"root_hash"`
}

// Subscription delivers events until Unsubscribe is called.
type Subscription interface {
	Events() <-chan Event
	Unsubscribe()
}

// Client is the collaboration context API used by the join flow, the signing coordinator and watchers.
type Client interface {
	CreateIdentity(ctx context.Context) (*Identity, error)
	JoinContext(ctx context.Context, invitation string, identity *Identity) (*JoinResult, error)
	GetContext(ctx context.Context, contextID string) (*ContextInfo, error)
	RegisterInWorkspace(ctx context.Context, entry *WorkspaceEntry) error
	ListWorkspace(ctx context.Context) ([]WorkspaceEntry, error)
	LeaveWorkspace(ctx context.Context, contextID string) error
	MarkParticipantSigned(ctx context.Context, mark *SignatureMark) error
	Subscribe(ctx context.Context, contextID string) (Subscription, error)
}

// Node admin API paths.
const (
	AdminAPIRoot       = "/admin-api"
	IdentityPath       = AdminAPIRoot + "/identity"
	JoinPath           = AdminAPIRoot + "/contexts/join"
	ContextPath        = AdminAPIRoot + "/contexts/{contextID}"
	SignaturesPath     = AdminAPIRoot + "/contexts/{contextID}/signatures"
	WorkspacePath      = AdminAPIRoot + "/workspace"
	WorkspaceEntryPath = WorkspacePath + "/{contextID}"
	ContextIDPathParam = "contextID"
)

// JoinRequest is the body of a join call.
type JoinRequest struct {
	Invitation string `json:"invitation"`
	PublicKey  string `json:"public_key"`
}
