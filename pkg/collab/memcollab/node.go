/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package memcollab is an in-process collaboration node. Context replicas live in memory and
// invitations are verified locally.
package memcollab

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/auth/invitation"
	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/ledgerutils"
)

const eventBufferSize = 16

var logger = log.New("merosign-memcollab")

var _ collab.Client = (*Node)(nil)

// Node is an in-memory collaboration node.
type Node struct {
	mu         sync.Mutex
	identities map[string]ed25519.PrivateKey
	replicas   map[string]*replica
	workspace  map[string]collab.WorkspaceEntry
	syncDelay  int
	neverSync  bool
	now        func() time.Time
	nextSubID  int
}

type replica struct {
	members     []string
	signatures  map[string][]string
	reads       int
	subscribers map[int]*subscription
}

// Option configures a Node.
type Option func(*Node)

// WithSyncDelay makes a replica report the empty root hash for its first reads context reads.
func WithSyncDelay(reads int) Option {
	return func(n *Node) {
		n.syncDelay = reads
	}
}

// WithoutSync makes replicas never leave the empty root hash.
func WithoutSync() Option {
	return func(n *Node) {
		n.neverSync = true
	}
}

// WithClock overrides the clock used to check invitation expiry.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		n.now = now
	}
}

// New returns an empty node.
func New(opts ...Option) *Node {
	n := &Node{
		identities: make(map[string]ed25519.PrivateKey),
		replicas:   make(map[string]*replica),
		workspace:  make(map[string]collab.WorkspaceEntry),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// CreateIdentity creates a member key pair held by the node.
func (n *Node) CreateIdentity(context.Context) (*collab.Identity, error) {
	id, key, err := ledgerutils.NewIdentity()
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.identities[id] = key
	n.mu.Unlock()

	return &collab.Identity{PublicKey: id}, nil
}

// JoinContext verifies the invitation and adds identity to the context replica, creating the replica
// on first use. Joining twice with the same identity is a no-op.
func (n *Node) JoinContext(_ context.Context, token string, identity *collab.Identity) (*collab.JoinResult, error) {
	if identity == nil {
		return nil, fmt.Errorf("%w: missing identity", collab.ErrNotMember)
	}

	claims, err := invitation.Verify(token, invitation.At(n.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", collab.ErrInvalidInvitation, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.identities[identity.PublicKey]; !ok {
		return nil, fmt.Errorf("%w: identity %s was not created by this node", collab.ErrNotMember,
			identity.PublicKey)
	}

	r, ok := n.replicas[claims.ContextID]
	if !ok {
		r = &replica{
			members:     []string{claims.Inviter},
			signatures:  make(map[string][]string),
			subscribers: make(map[int]*subscription),
		}
		n.replicas[claims.ContextID] = r
	}

	if !contains(r.members, identity.PublicKey) {
		r.members = append(r.members, identity.PublicKey)

		logger.Infof("Member %s joined context %s", identity.PublicKey, claims.ContextID)

		n.emitLocked(claims.ContextID, r)
	}

	return &collab.JoinResult{ContextID: claims.ContextID, MemberPublicKey: identity.PublicKey}, nil
}

// GetContext returns the replica's current root hash.
func (n *Node) GetContext(_ context.Context, contextID string) (*collab.ContextInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.replicas[contextID]
	if !ok {
		return nil, collab.ErrContextNotFound
	}

	r.reads++

	return &collab.ContextInfo{ContextID: contextID, RootHash: n.rootHashLocked(contextID, r)}, nil
}

// RegisterInWorkspace records a joined context in the private workspace.
func (n *Node) RegisterInWorkspace(_ context.Context, entry *collab.WorkspaceEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.replicas[entry.ContextID]
	if !ok {
		return collab.ErrContextNotFound
	}

	if !contains(r.members, entry.MemberPublicKey) {
		return collab.ErrNotMember
	}

	registered := *entry
	if registered.JoinedAt == 0 {
		registered.JoinedAt = n.now().UnixNano()
	}

	n.workspace[entry.ContextID] = registered

	return nil
}

// ListWorkspace returns the workspace entries, oldest join first.
func (n *Node) ListWorkspace(context.Context) ([]collab.WorkspaceEntry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	entries := make([]collab.WorkspaceEntry, 0, len(n.workspace))
	for _, entry := range n.workspace {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAt != entries[j].JoinedAt {
			return entries[i].JoinedAt < entries[j].JoinedAt
		}

		return entries[i].ContextID < entries[j].ContextID
	})

	return entries, nil
}

// LeaveWorkspace removes a context from the workspace. The replica and its membership are kept.
func (n *Node) LeaveWorkspace(_ context.Context, contextID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.workspace[contextID]; !ok {
		return collab.ErrContextNotFound
	}

	delete(n.workspace, contextID)

	logger.Infof("Left context %s", contextID)

	return nil
}

// MarkParticipantSigned records a signature in the replicated state.
func (n *Node) MarkParticipantSigned(_ context.Context, mark *collab.SignatureMark) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.replicas[mark.ContextID]
	if !ok {
		return collab.ErrContextNotFound
	}

	if !contains(r.members, mark.MemberPublicKey) {
		return collab.ErrNotMember
	}

	if contains(r.signatures[mark.DocumentID], mark.MemberPublicKey) {
		return nil
	}

	r.signatures[mark.DocumentID] = append(r.signatures[mark.DocumentID], mark.MemberPublicKey)

	n.emitLocked(mark.ContextID, r)

	return nil
}

// Subscribe delivers StateChanged events for a context until Unsubscribe is called or ctx is done.
// The event channel is closed on unsubscribe.
func (n *Node) Subscribe(ctx context.Context, contextID string) (collab.Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.replicas[contextID]
	if !ok {
		return nil, collab.ErrContextNotFound
	}

	n.nextSubID++

	sub := &subscription{
		id:     n.nextSubID,
		events: make(chan collab.Event, eventBufferSize),
		done:   make(chan struct{}),
	}

	sub.cancel = func() {
		n.mu.Lock()
		delete(r.subscribers, sub.id)
		close(sub.events)
		n.mu.Unlock()
	}

	r.subscribers[sub.id] = sub

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Workspace returns the workspace entry of a context.
func (n *Node) Workspace(contextID string) (collab.WorkspaceEntry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	entry, ok := n.workspace[contextID]

	return entry, ok
}

// Members returns the members of a context replica.
func (n *Node) Members(contextID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.replicas[contextID]
	if !ok {
		return nil
	}

	return append([]string(nil), r.members...)
}

// Signers returns the members that marked a document as signed.
func (n *Node) Signers(contextID, documentID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, ok := n.replicas[contextID]
	if !ok {
		return nil
	}

	return append([]string(nil), r.signatures[documentID]...)
}

func (n *Node) synced(r *replica) bool {
	return !n.neverSync && r.reads > n.syncDelay
}

func (n *Node) rootHashLocked(contextID string, r *replica) string {
	if !n.synced(r) {
		return collab.EmptyRootHash
	}

	state, err := json.Marshal(struct {
		ContextID  string              `json:"context_id"`
		Members    []string            `json:"members"`
		Signatures map[string][]string `json:"signatures"`
	}{contextID, r.members, r.signatures})
	if err != nil {
		logger.Errorf("Failed to marshal state of context %s: %s", contextID, err)

		return collab.EmptyRootHash
	}

	sum := sha256.Sum256(state)

	return base58.Encode(sum[:])
}

// emitLocked notifies subscribers without blocking. A subscriber with a full buffer misses the event.
func (n *Node) emitLocked(contextID string, r *replica) {
	event := collab.Event{Type: collab.StateChanged, ContextID: contextID, RootHash: n.rootHashLocked(contextID, r)}

	for _, sub := range r.subscribers {
		select {
		case sub.events <- event:
		default:
			logger.Warnf("Dropped event for a slow subscriber of context %s", contextID)
		}
	}
}

type subscription struct {
	id     int
	events chan collab.Event
	done   chan struct{}
	once   sync.Once
	cancel func()
}

func (s *subscription) Events() <-chan collab.Event {
	return s.events
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}

	return false
}
