/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memcollab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/merosign/merosign/pkg/auth/invitation"
	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/ledgerutils"
)

const testContextID = "rental-7"

func issueInvitation(t *testing.T, opts ...invitation.IssuerOption) (string, string) {
	t.Helper()

	adminID, adminKey, err := ledgerutils.NewIdentity()
	require.NoError(t, err)

	token, err := invitation.NewIssuer(adminKey, opts...).Issue(testContextID)
	require.NoError(t, err)

	return adminID, token
}

func TestNode_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("success and idempotent", func(t *testing.T) {
		node := New()
		adminID, token := issueInvitation(t)

		identity, err := node.CreateIdentity(ctx)
		require.NoError(t, err)

		joined, err := node.JoinContext(ctx, token, identity)
		require.NoError(t, err)
		require.Equal(t, testContextID, joined.ContextID)
		require.Equal(t, identity.PublicKey, joined.MemberPublicKey)

		again, err := node.JoinContext(ctx, token, identity)
		require.NoError(t, err)
		require.Equal(t, joined, again)

		require.Equal(t, []string{adminID, identity.PublicKey}, node.Members(testContextID))
	})
	t.Run("invalid invitation", func(t *testing.T) {
		node := New()

		identity, err := node.CreateIdentity(ctx)
		require.NoError(t, err)

		_, err = node.JoinContext(ctx, "not-a-token", identity)
		require.True(t, errors.Is(err, collab.ErrInvalidInvitation))
	})
	t.Run("expired invitation", func(t *testing.T) {
		node := New()
		_, token := issueInvitation(t, invitation.WithTTL(time.Minute),
			invitation.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))

		identity, err := node.CreateIdentity(ctx)
		require.NoError(t, err)

		_, err = node.JoinContext(ctx, token, identity)
		require.True(t, errors.Is(err, collab.ErrInvalidInvitation))
	})
	t.Run("foreign identity", func(t *testing.T) {
		node := New()
		_, token := issueInvitation(t)

		_, err := node.JoinContext(ctx, token, &collab.Identity{PublicKey: "someone"})
		require.True(t, errors.Is(err, collab.ErrNotMember))

		_, err = node.JoinContext(ctx, token, nil)
		require.True(t, errors.Is(err, collab.ErrNotMember))
	})
}

func TestNode_GetContext(t *testing.T) {
	ctx := context.Background()

	join := func(t *testing.T, node *Node) *collab.Identity {
		t.Helper()

		_, token := issueInvitation(t)

		identity, err := node.CreateIdentity(ctx)
		require.NoError(t, err)

		_, err = node.JoinContext(ctx, token, identity)
		require.NoError(t, err)

		return identity
	}

	t.Run("not found", func(t *testing.T) {
		_, err := New().GetContext(ctx, testContextID)
		require.Equal(t, collab.ErrContextNotFound, err)
	})
	t.Run("synced immediately", func(t *testing.T) {
		node := New()
		join(t, node)

		info, err := node.GetContext(ctx, testContextID)
		require.NoError(t, err)
		require.True(t, info.Synced())
		require.NotEqual(t, collab.EmptyRootHash, info.RootHash)
	})
	t.Run("sync delay", func(t *testing.T) {
		node := New(WithSyncDelay(2))
		join(t, node)

		for i := 0; i < 2; i++ {
			info, err := node.GetContext(ctx, testContextID)
			require.NoError(t, err)
			require.Equal(t, collab.EmptyRootHash, info.RootHash)
			require.False(t, info.Synced())
		}

		info, err := node.GetContext(ctx, testContextID)
		require.NoError(t, err)
		require.True(t, info.Synced())
	})
	t.Run("never syncs", func(t *testing.T) {
		node := New(WithoutSync())
		join(t, node)

		for i := 0; i < 10; i++ {
			info, err := node.GetContext(ctx, testContextID)
			require.NoError(t, err)
			require.False(t, info.Synced())
		}
	})
	t.Run("root hash follows state", func(t *testing.T) {
		node := New()
		identity := join(t, node)

		before, err := node.GetContext(ctx, testContextID)
		require.NoError(t, err)

		require.NoError(t, node.MarkParticipantSigned(ctx, &collab.SignatureMark{
			ContextID:       testContextID,
			MemberPublicKey: identity.PublicKey,
			DocumentID:      "doc",
		}))

		after, err := node.GetContext(ctx, testContextID)
		require.NoError(t, err)
		require.NotEqual(t, before.RootHash, after.RootHash)
		require.Equal(t, []string{identity.PublicKey}, node.Signers(testContextID, "doc"))
	})
}

func TestNode_Workspace(t *testing.T) {
	ctx := context.Background()
	node := New()
	_, token := issueInvitation(t)

	identity, err := node.CreateIdentity(ctx)
	require.NoError(t, err)

	entry := &collab.WorkspaceEntry{ContextID: testContextID, ContextName: "Rental", MemberPublicKey: identity.PublicKey}

	require.Equal(t, collab.ErrContextNotFound, node.RegisterInWorkspace(ctx, entry))

	_, err = node.JoinContext(ctx, token, identity)
	require.NoError(t, err)

	require.Equal(t, collab.ErrNotMember, node.RegisterInWorkspace(ctx, &collab.WorkspaceEntry{
		ContextID:       testContextID,
		MemberPublicKey: "stranger",
	}))

	require.NoError(t, node.RegisterInWorkspace(ctx, entry))

	got, ok := node.Workspace(testContextID)
	require.True(t, ok)
	require.Equal(t, entry.ContextName, got.ContextName)
	require.Equal(t, entry.MemberPublicKey, got.MemberPublicKey)
	require.NotZero(t, got.JoinedAt)
}

func TestNode_ListAndLeaveWorkspace(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1700000000, 0)
	clock := start

	node := New(WithClock(func() time.Time { return clock }))

	entries, err := node.ListWorkspace(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, adminKey, err := ledgerutils.NewIdentity()
	require.NoError(t, err)

	identity, err := node.CreateIdentity(ctx)
	require.NoError(t, err)

	for _, contextID := range []string{"zoning-2024", testContextID} {
		token, errIssue := invitation.NewIssuer(adminKey).Issue(contextID)
		require.NoError(t, errIssue)

		_, err = node.JoinContext(ctx, token, identity)
		require.NoError(t, err)

		require.NoError(t, node.RegisterInWorkspace(ctx, &collab.WorkspaceEntry{
			ContextID:       contextID,
			ContextName:     contextID,
			MemberPublicKey: identity.PublicKey,
		}))

		clock = clock.Add(time.Second)
	}

	entries, err = node.ListWorkspace(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "zoning-2024", entries[0].ContextID)
	require.Equal(t, start.UnixNano(), entries[0].JoinedAt)
	require.Equal(t, testContextID, entries[1].ContextID)

	require.NoError(t, node.LeaveWorkspace(ctx, "zoning-2024"))
	require.Equal(t, collab.ErrContextNotFound, node.LeaveWorkspace(ctx, "zoning-2024"))

	entries, err = node.ListWorkspace(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, testContextID, entries[0].ContextID)

	require.Contains(t, node.Members("zoning-2024"), identity.PublicKey)
}

func TestNode_MarkParticipantSigned(t *testing.T) {
	ctx := context.Background()
	node := New()

	err := node.MarkParticipantSigned(ctx, &collab.SignatureMark{ContextID: testContextID})
	require.Equal(t, collab.ErrContextNotFound, err)

	_, token := issueInvitation(t)

	identity, err := node.CreateIdentity(ctx)
	require.NoError(t, err)

	_, err = node.JoinContext(ctx, token, identity)
	require.NoError(t, err)

	err = node.MarkParticipantSigned(ctx, &collab.SignatureMark{ContextID: testContextID, MemberPublicKey: "x"})
	require.Equal(t, collab.ErrNotMember, err)

	mark := &collab.SignatureMark{ContextID: testContextID, MemberPublicKey: identity.PublicKey, DocumentID: "d"}
	require.NoError(t, node.MarkParticipantSigned(ctx, mark))
	require.NoError(t, node.MarkParticipantSigned(ctx, mark))
	require.Len(t, node.Signers(testContextID, "d"), 1)
	require.Nil(t, node.Signers("unknown", "d"))
	require.Nil(t, node.Members("unknown"))
}

func TestNode_Subscribe(t *testing.T) {
	ctx := context.Background()
	node := New()

	_, err := node.Subscribe(ctx, testContextID)
	require.Equal(t, collab.ErrContextNotFound, err)

	_, token := issueInvitation(t)

	identity, err := node.CreateIdentity(ctx)
	require.NoError(t, err)

	_, err = node.JoinContext(ctx, token, identity)
	require.NoError(t, err)

	t.Run("events until unsubscribe", func(t *testing.T) {
		sub, err := node.Subscribe(ctx, testContextID)
		require.NoError(t, err)

		require.NoError(t, node.MarkParticipantSigned(ctx, &collab.SignatureMark{
			ContextID:       testContextID,
			MemberPublicKey: identity.PublicKey,
			DocumentID:      "doc-a",
		}))

		select {
		case event := <-sub.Events():
			require.Equal(t, collab.StateChanged, event.Type)
			require.Equal(t, testContextID, event.ContextID)
		case <-time.After(time.Second):
			require.Fail(t, "no event received")
		}

		sub.Unsubscribe()
		sub.Unsubscribe()

		_, open := <-sub.Events()
		require.False(t, open)
	})
	t.Run("context cancel unsubscribes", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)

		sub, err := node.Subscribe(subCtx, testContextID)
		require.NoError(t, err)

		cancel()

		select {
		case _, open := <-sub.Events():
			require.False(t, open)
		case <-time.After(time.Second):
			require.Fail(t, "subscription not closed")
		}
	})
}
