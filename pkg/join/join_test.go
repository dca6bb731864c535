/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package join

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/merosign/merosign/internal/ledgertest"
	"github.com/merosign/merosign/pkg/auth/invitation"
	"github.com/merosign/merosign/pkg/client"
	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/collab/memcollab"
	"github.com/merosign/merosign/pkg/ledgerutils"
	"github.com/merosign/merosign/pkg/restapi/ledgererrors"
	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/storage"
)

const testContextID = "merger-2024"

type fakeRegistry struct {
	mu          sync.Mutex
	registerErr []error
	registered  int
	contextErr  error
	title       string
}

func (f *fakeRegistry) RegisterSelfAsParticipant(context.Context, string, string, ...client.ReqOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.registered++

	if len(f.registerErr) == 0 {
		return nil
	}

	err := f.registerErr[0]
	f.registerErr = f.registerErr[1:]

	return err
}

func (f *fakeRegistry) GetContext(_ context.Context, contextID string, _ ...client.ReqOption) (*models.Context, error) {
	if f.contextErr != nil {
		return nil, f.contextErr
	}

	return &models.Context{ContextID: contextID, Metadata: models.ContextMetadata{Title: f.title}}, nil
}

type transitionLog struct {
	mu    sync.Mutex
	steps []State
}

func (l *transitionLog) hook(_, to State, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.steps = append(l.steps, to)
}

func (l *transitionLog) get() []State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]State(nil), l.steps...)
}

func fastOptions(extra ...Option) []Option {
	return append([]Option{
		WithSyncSchedule(3, 1, time.Millisecond, time.Millisecond),
		WithRegistrationRetry(3, time.Millisecond),
		WithNameRetry(2, time.Millisecond),
	}, extra...)
}

func newLocalState(t *testing.T) *storage.LocalState {
	t.Helper()

	state, err := storage.OpenLocalState(mem.NewProvider())
	require.NoError(t, err)

	return state
}

func stashInvitation(t *testing.T, state *storage.LocalState) string {
	t.Helper()

	_, adminKey, err := ledgerutils.NewIdentity()
	require.NoError(t, err)

	token, err := invitation.NewIssuer(adminKey).Issue(testContextID)
	require.NoError(t, err)

	require.NoError(t, state.StashInvitation(token))

	return token
}

func TestJoiner_Run(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		node := memcollab.New(memcollab.WithSyncDelay(1))
		state := newLocalState(t)
		stashInvitation(t, state)

		steps := &transitionLog{}
		registry := &fakeRegistry{title: "Merger"}

		j := New(node, registry, state, fastOptions(WithTransitionHook(steps.hook))...)

		sess, err := j.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, testContextID, sess.ContextID)
		require.NotEmpty(t, sess.MemberPublicKey)

		require.Equal(t, []State{Joining, Syncing, Registering, Done}, steps.get())
		require.Equal(t, Status{State: Done}, j.Status())
		require.Equal(t, 1, registry.registered)

		entry, ok := node.Workspace(testContextID)
		require.True(t, ok)
		require.Equal(t, "Merger", entry.ContextName)
		require.Equal(t, sess.MemberPublicKey, entry.MemberPublicKey)

		pending, err := state.PendingInvitation()
		require.NoError(t, err)
		require.Empty(t, pending)

		joined, err := state.Joined()
		require.NoError(t, err)
		require.Equal(t, storage.Joined{ContextID: testContextID, MemberPublicKey: sess.MemberPublicKey}, joined)

		again, err := j.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, sess, again)
	})
	t.Run("sync never completes", func(t *testing.T) {
		node := memcollab.New(memcollab.WithoutSync())
		state := newLocalState(t)
		stashInvitation(t, state)

		steps := &transitionLog{}

		j := New(node, &fakeRegistry{}, state, fastOptions(WithTransitionHook(steps.hook))...)

		_, err := j.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, []State{Joining, Syncing, Registering, Done}, steps.get())
	})
	t.Run("transient registration errors are retried", func(t *testing.T) {
		state := newLocalState(t)
		stashInvitation(t, state)

		registry := &fakeRegistry{registerErr: []error{
			ledgererrors.New(ledgererrors.Uninitialized),
			ledgererrors.New(ledgererrors.Uninitialized),
		}}

		j := New(memcollab.New(), registry, state, fastOptions()...)

		_, err := j.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 3, registry.registered)
	})
	t.Run("already a participant", func(t *testing.T) {
		state := newLocalState(t)
		stashInvitation(t, state)

		registry := &fakeRegistry{registerErr: []error{ledgererrors.New(ledgererrors.AlreadyExists)}}

		j := New(memcollab.New(), registry, state, fastOptions()...)

		_, err := j.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, registry.registered)
	})
	t.Run("registration failure does not stop the flow", func(t *testing.T) {
		state := newLocalState(t)
		stashInvitation(t, state)

		registry := &fakeRegistry{registerErr: []error{ledgererrors.New(ledgererrors.Unauthorized)}}

		j := New(memcollab.New(), registry, state, fastOptions()...)

		_, err := j.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, registry.registered)
	})
	t.Run("default context name", func(t *testing.T) {
		node := memcollab.New()
		state := newLocalState(t)
		stashInvitation(t, state)

		j := New(node, &fakeRegistry{contextErr: errors.New("ledger down")}, state, fastOptions()...)

		_, err := j.Run(context.Background())
		require.NoError(t, err)

		entry, ok := node.Workspace(testContextID)
		require.True(t, ok)
		require.Equal(t, DefaultContextName, entry.ContextName)
	})
	t.Run("no invitation", func(t *testing.T) {
		j := New(memcollab.New(), &fakeRegistry{}, newLocalState(t), fastOptions()...)

		_, err := j.Run(context.Background())
		require.Equal(t, ErrNoInvitation, err)
		require.Equal(t, Idle, j.Status().State)
	})
}

func TestJoiner_FailedRetryCancel(t *testing.T) {
	state := newLocalState(t)
	require.NoError(t, state.StashInvitation("not-a-token"))

	node := memcollab.New()
	j := New(node, &fakeRegistry{}, state, fastOptions()...)

	_, err := j.Retry(context.Background())
	require.Equal(t, ErrNotFailed, err)
	require.Equal(t, ErrNotFailed, j.Cancel())

	_, err = j.Run(context.Background())
	require.True(t, errors.Is(err, collab.ErrInvalidInvitation))

	status := j.Status()
	require.Equal(t, Failed, status.State)
	require.True(t, errors.Is(status.Err, collab.ErrInvalidInvitation))

	t.Run("retry with a fixed invitation", func(t *testing.T) {
		token := stashInvitation(t, state)
		require.NotEmpty(t, token)

		sess, err := j.Retry(context.Background())
		require.NoError(t, err)
		require.Equal(t, testContextID, sess.ContextID)
		require.Equal(t, Done, j.Status().State)
	})
	t.Run("cancel discards the invitation", func(t *testing.T) {
		state := newLocalState(t)
		require.NoError(t, state.StashInvitation("not-a-token"))

		j := New(node, &fakeRegistry{}, state, fastOptions()...)

		_, err := j.Run(context.Background())
		require.Error(t, err)

		require.NoError(t, j.Cancel())
		require.Equal(t, Status{State: Idle}, j.Status())

		pending, err := state.PendingInvitation()
		require.NoError(t, err)
		require.Empty(t, pending)
	})
}

// blockingCollab holds CreateIdentity until released or canceled.
type blockingCollab struct {
	*memcollab.Node
	entered chan struct{}
	release chan struct{}
}

func (b *blockingCollab) CreateIdentity(ctx context.Context) (*collab.Identity, error) {
	close(b.entered)

	select {
	case <-b.release:
		return b.Node.CreateIdentity(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestJoiner_ConcurrentRun(t *testing.T) {
	state := newLocalState(t)
	stashInvitation(t, state)

	blocking := &blockingCollab{Node: memcollab.New(), entered: make(chan struct{}), release: make(chan struct{})}
	registry := &fakeRegistry{}

	j := New(blocking, registry, state, fastOptions()...)

	done := make(chan error, 1)

	go func() {
		_, err := j.Run(context.Background())
		done <- err
	}()

	<-blocking.entered

	_, err := j.Run(context.Background())
	require.Equal(t, ErrJoinInProgress, err)
	require.Equal(t, Joining, j.Status().State)

	close(blocking.release)

	require.NoError(t, <-done)
	require.Equal(t, 1, registry.registered)
}

func TestJoiner_Close(t *testing.T) {
	state := newLocalState(t)
	stashInvitation(t, state)

	blocking := &blockingCollab{Node: memcollab.New(), entered: make(chan struct{}), release: make(chan struct{})}

	j := New(blocking, &fakeRegistry{}, state, fastOptions()...)

	done := make(chan error, 1)

	go func() {
		_, err := j.Run(context.Background())
		done <- err
	}()

	<-blocking.entered

	j.Close()

	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		require.Fail(t, "run did not stop")
	}

	require.Equal(t, Failed, j.Status().State)

	_, err := j.Run(context.Background())
	require.Equal(t, ErrClosed, err)
}

func TestJoiner_AgainstLedger(t *testing.T) {
	srv, _ := ledgertest.NewServer(t)

	adminID, adminKey, err := ledgerutils.NewIdentity()
	require.NoError(t, err)

	registry := client.New(srv.URL)
	ctx := context.Background()

	require.NoError(t, registry.CreateContext(ctx, &models.CreateContextRequest{
		ContextID: testContextID,
		Title:     "Merger agreement",
	}, client.AsCaller(adminID)))

	token, err := invitation.NewIssuer(adminKey).Issue(testContextID)
	require.NoError(t, err)

	state := newLocalState(t)
	require.NoError(t, state.StashInvitation(token))

	node := memcollab.New()

	sess, err := New(node, registry, state, fastOptions()...).Run(ctx)
	require.NoError(t, err)

	participant, err := registry.IsUserContextParticipant(ctx, testContextID, sess.MemberPublicKey)
	require.NoError(t, err)
	require.True(t, participant)

	entry, ok := node.Workspace(testContextID)
	require.True(t, ok)
	require.Equal(t, "Merger agreement", entry.ContextName)
}
