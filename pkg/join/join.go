/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package join turns a pending invitation into a joined session: it joins the collaboration context,
// waits for the replica to sync, registers the member with the ledger and records the context in the
// member's workspace.
package join

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/client"
	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/restapi/ledgererrors"
	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/result"
	"github.com/merosign/merosign/pkg/retry"
	"github.com/merosign/merosign/pkg/session"
	"github.com/merosign/merosign/pkg/storage"
)

// DefaultContextName labels a context whose title could not be fetched.
const DefaultContextName = "Shared Context"

var logger = log.New("merosign-join")

var (
	// ErrJoinInProgress is returned by Run while another run is active.
	ErrJoinInProgress = errors.New("join already in progress")
	// ErrNoInvitation is returned when there is no pending invitation to join with.
	ErrNoInvitation = errors.New("no pending invitation")
	// ErrNotFailed is returned by Retry and Cancel outside the Failed state.
	ErrNotFailed = errors.New("join has not failed")
	// ErrClosed is returned once the joiner has been closed.
	ErrClosed = errors.New("joiner closed")

	errNotSynced = errors.New("context replica has not synced")
)

// State is a step of the join flow.
type State string

// Join states.
const (
	Idle        State = "Idle"
	Joining     State = "Joining"
	Syncing     State = "Syncing"
	Registering State = "Registering"
	Done        State = "Done"
	Failed      State = "Failed"
)

func (s State) active() bool {
	return s == Joining || s == Syncing || s == Registering
}

// Retry bounds used when no option overrides them.
const (
	DefaultSyncMaxAttempts         = 30
	DefaultSyncFastAttempts        = 5
	DefaultSyncFastInterval        = 500 * time.Millisecond
	DefaultSyncSlowInterval        = 2 * time.Second
	DefaultRegistrationMaxAttempts = 5
	DefaultRegistrationInterval    = time.Second
	DefaultNameMaxAttempts         = 3
	DefaultNameInterval            = 500 * time.Millisecond
)

// Status is a snapshot of the flow.
type Status struct {
	State State
	Err   error
}

// Registry is the part of the ledger client the join flow needs.
type Registry interface {
	RegisterSelfAsParticipant(ctx context.Context, contextID, invitation string, opts ...client.ReqOption) error
	GetContext(ctx context.Context, contextID string, opts ...client.ReqOption) (*models.Context, error)
}

// Joiner runs the join flow. At most one run is active at a time.
type Joiner struct {
	collab   collab.Client
	registry Registry
	state    *storage.LocalState
	opts     options

	mu        sync.Mutex
	current   State
	lastErr   error
	runCancel context.CancelFunc
	closed    bool
}

type options struct {
	syncAttempts     int
	syncFastAttempts int
	syncFast         time.Duration
	syncSlow         time.Duration
	regAttempts      int
	regDelay         time.Duration
	nameAttempts     int
	nameDelay        time.Duration
	onTransition     func(from, to State, err error)
}

// Option configures a Joiner.
type Option func(*options)

// WithSyncSchedule bounds the wait for the replica to sync: fastAttempts polls fast apart, then slow,
// up to maxAttempts polls in total.
func WithSyncSchedule(maxAttempts, fastAttempts int, fast, slow time.Duration) Option {
	return func(o *options) {
		o.syncAttempts = maxAttempts
		o.syncFastAttempts = fastAttempts
		o.syncFast = fast
		o.syncSlow = slow
	}
}

// WithRegistrationRetry bounds the retries of ledger self-registration on transient errors.
func WithRegistrationRetry(maxAttempts int, delay time.Duration) Option {
	return func(o *options) {
		o.regAttempts = maxAttempts
		o.regDelay = delay
	}
}

// WithNameRetry bounds the retries of the context name lookup.
func WithNameRetry(maxAttempts int, delay time.Duration) Option {
	return func(o *options) {
		o.nameAttempts = maxAttempts
		o.nameDelay = delay
	}
}

// WithTransitionHook is called on every state change, outside the joiner's lock.
func WithTransitionHook(hook func(from, to State, err error)) Option {
	return func(o *options) {
		o.onTransition = hook
	}
}

// New returns a Joiner in the Idle state.
func New(collabClient collab.Client, registry Registry, state *storage.LocalState, opts ...Option) *Joiner {
	o := options{
		syncAttempts:     DefaultSyncMaxAttempts,
		syncFastAttempts: DefaultSyncFastAttempts,
		syncFast:         DefaultSyncFastInterval,
		syncSlow:         DefaultSyncSlowInterval,
		regAttempts:      DefaultRegistrationMaxAttempts,
		regDelay:         DefaultRegistrationInterval,
		nameAttempts:     DefaultNameMaxAttempts,
		nameDelay:        DefaultNameInterval,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return &Joiner{collab: collabClient, registry: registry, state: state, opts: o, current: Idle}
}

// Status returns the current state and, in the Failed state, the failure.
func (j *Joiner) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	return Status{State: j.current, Err: j.lastErr}
}

// Run joins with the pending invitation. A second call while a run is active returns ErrJoinInProgress
// without side effects. After Done, Run returns the persisted session.
func (j *Joiner) Run(ctx context.Context) (*session.Session, error) {
	return j.start(ctx, func(s State) error {
		if s.active() {
			return ErrJoinInProgress
		}

		return nil
	})
}

// Retry re-runs a failed join.
func (j *Joiner) Retry(ctx context.Context) (*session.Session, error) {
	return j.start(ctx, func(s State) error {
		if s != Failed {
			return ErrNotFailed
		}

		return nil
	})
}

// Cancel discards the pending invitation of a failed join and returns to Idle.
func (j *Joiner) Cancel() error {
	j.mu.Lock()

	if j.current != Failed {
		j.mu.Unlock()

		return ErrNotFailed
	}

	if err := j.state.ClearInvitation(); err != nil {
		j.mu.Unlock()

		return err
	}

	j.current = Idle
	j.lastErr = nil

	j.mu.Unlock()

	j.notify(Failed, Idle, nil)

	return nil
}

// Close stops an active run. Outstanding polls and waits return promptly.
func (j *Joiner) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.closed = true

	if j.runCancel != nil {
		j.runCancel()
	}
}

func (j *Joiner) start(ctx context.Context, allowed func(State) error) (*session.Session, error) {
	j.mu.Lock()

	if j.closed {
		j.mu.Unlock()

		return nil, ErrClosed
	}

	if err := allowed(j.current); err != nil {
		j.mu.Unlock()

		return nil, err
	}

	if j.current == Done {
		j.mu.Unlock()

		return session.Load(j.state)
	}

	invitation, err := j.state.PendingInvitation()
	if err != nil {
		j.mu.Unlock()

		return nil, err
	}

	if invitation == "" {
		j.mu.Unlock()

		return nil, ErrNoInvitation
	}

	runCtx, cancel := context.WithCancel(ctx)

	from := j.current
	j.current = Joining
	j.lastErr = nil
	j.runCancel = cancel

	j.mu.Unlock()

	defer cancel()

	j.notify(from, Joining, nil)

	sess, err := j.run(runCtx, invitation)
	if err != nil {
		j.transition(j.Status().State, Failed, err)

		return nil, err
	}

	j.transition(Registering, Done, nil)

	return sess, nil
}

func (j *Joiner) run(ctx context.Context, invitation string) (*session.Session, error) {
	identity, err := j.collab.CreateIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	joined, err := j.collab.JoinContext(ctx, invitation, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to join context: %w", err)
	}

	logger.Infof("Joined context %s as %s", joined.ContextID, joined.MemberPublicKey)

	j.transition(Joining, Syncing, nil)

	if err = j.waitForSync(ctx, joined.ContextID); err != nil {
		return nil, err
	}

	j.transition(Syncing, Registering, nil)

	j.registerWithLedger(ctx, joined, invitation)

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	name := j.contextName(ctx, joined)

	err = j.collab.RegisterInWorkspace(ctx, &collab.WorkspaceEntry{
		ContextID:       joined.ContextID,
		ContextName:     name,
		MemberPublicKey: joined.MemberPublicKey,
	})
	if err != nil {
		return nil, err
	}

	if err = j.state.SaveJoined(storage.Joined{
		ContextID:       joined.ContextID,
		MemberPublicKey: joined.MemberPublicKey,
	}); err != nil {
		return nil, err
	}

	if err = j.state.ClearInvitation(); err != nil {
		return nil, err
	}

	return session.New(joined.ContextID, joined.MemberPublicKey), nil
}

// waitForSync polls until the replica's root hash leaves the empty sentinel. Running out of attempts is
// not fatal: the flow moves on and the replica keeps syncing in the background.
func (j *Joiner) waitForSync(ctx context.Context, contextID string) error {
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: j.opts.syncAttempts,
		Schedule:    retry.Tiered(j.opts.syncFastAttempts, j.opts.syncFast, j.opts.syncSlow),
		IsTransient: func(err error) bool {
			return errors.Is(err, errNotSynced) || errors.Is(err, collab.ErrContextNotFound) ||
				result.IsTransient(err)
		},
	}, func(ctx context.Context) error {
		info, err := j.collab.GetContext(ctx, contextID)
		if err != nil {
			return err
		}

		if !info.Synced() {
			return errNotSynced
		}

		return nil
	})

	if errors.Is(err, retry.ErrExhausted) {
		logger.Warnf("Context %s did not sync after %d attempts, continuing: %s", contextID, j.opts.syncAttempts, err)

		return nil
	}

	return err
}

// registerWithLedger adds the member to the ledger context. Failures are logged and do not stop the flow.
func (j *Joiner) registerWithLedger(ctx context.Context, joined *collab.JoinResult, invitation string) {
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: j.opts.regAttempts,
		Schedule:    retry.Fixed(j.opts.regDelay),
		IsTransient: result.IsTransient,
		OnRetry: func(err error, next time.Duration) {
			logger.Debugf("Ledger not ready for %s, retrying in %s: %s", joined.ContextID, next, err)
		},
	}, func(ctx context.Context) error {
		return j.registry.RegisterSelfAsParticipant(ctx, joined.ContextID, invitation,
			client.AsCaller(joined.MemberPublicKey))
	})

	switch {
	case err == nil:
		logger.Infof("Registered %s as participant of %s", joined.MemberPublicKey, joined.ContextID)
	case result.IsCode(err, ledgererrors.AlreadyExists):
		logger.Debugf("%s is already a participant of %s", joined.MemberPublicKey, joined.ContextID)
	default:
		logger.Warnf("Failed to register %s as participant of %s: %s", joined.MemberPublicKey,
			joined.ContextID, err)
	}
}

func (j *Joiner) contextName(ctx context.Context, joined *collab.JoinResult) string {
	var name string

	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: j.opts.nameAttempts,
		Schedule:    retry.Fixed(j.opts.nameDelay),
	}, func(ctx context.Context) error {
		sc, err := j.registry.GetContext(ctx, joined.ContextID, client.AsCaller(joined.MemberPublicKey))
		if err != nil {
			return err
		}

		name = sc.Metadata.Title

		return nil
	})
	if err != nil {
		logger.Warnf("Failed to fetch the name of context %s: %s", joined.ContextID, err)
	}

	if name == "" {
		return DefaultContextName
	}

	return name
}

func (j *Joiner) transition(from, to State, err error) {
	j.mu.Lock()
	j.current = to
	j.lastErr = err

	if to == Done || to == Failed {
		j.runCancel = nil
	}
	j.mu.Unlock()

	j.notify(from, to, err)
}

func (j *Joiner) notify(from, to State, err error) {
	if to == Failed {
		logger.Errorf("Join failed in state %s: %s", from, err)
	} else {
		logger.Debugf("Join state %s -> %s", from, to)
	}

	if j.opts.onTransition != nil {
		j.opts.onTransition(from, to, err)
	}
}
