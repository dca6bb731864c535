/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package signing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/merosign/merosign/pkg/auth/invitation"
	"github.com/merosign/merosign/pkg/client"
	"github.com/merosign/merosign/pkg/collab/memcollab"
	"github.com/merosign/merosign/pkg/join"
	"github.com/merosign/merosign/pkg/ledgerutils"
	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/session"
	"github.com/merosign/merosign/pkg/signing"
	"github.com/merosign/merosign/pkg/verify"
	"github.com/merosign/merosign/test/bdd/pkg/common"
	bddctx "github.com/merosign/merosign/test/bdd/pkg/context"
)

const (
	invitationLink = "merosign://join"

	syncAttempts = 3
	syncInterval = 10 * time.Millisecond
)

// Steps is steps for signing BDD tests.
type Steps struct {
	bddContext *bddctx.BDDContext
}

// NewSteps returns BDD test steps for the signing flow.
func NewSteps(ctx *bddctx.BDDContext) *Steps {
	return &Steps{bddContext: ctx}
}

// RegisterSteps registers signing test steps.
func (e *Steps) RegisterSteps(s *godog.Suite) {
	s.Step(`^a ledger and a collaboration node$`, e.start)
	s.Step(`^the collaboration node never syncs$`, e.startWithoutSync)
	s.Step(`^"([^"]*)" creates context "([^"]*)"$`, e.createContext)
	s.Step(`^"([^"]*)" uploads document "([^"]*)" with content "([^"]*)"$`, e.uploadDocument)
	s.Step(`^"([^"]*)" invites "([^"]*)" who joins the context$`, e.inviteAndJoin)
	s.Step(`^"([^"]*)" signs "([^"]*)" producing "([^"]*)"$`, e.sign)
	s.Step(`^document "([^"]*)" has status "([^"]*)" and (\d+) signers$`, e.documentStatus)
	s.Step(`^content "([^"]*)" verifies against "([^"]*)" as "([^"]*)"$`, e.verifyContent)
	s.Step(`^hash "([^"]*)" verifies against "([^"]*)" as "([^"]*)"$`, e.verifyHash)
	s.Step(`^"([^"]*)" sees the signing progress of "([^"]*)" as complete$`, e.progressComplete)
	s.Step(`^"([^"]*)" passed through "([^"]*)"$`, e.passedThrough)
	s.Step(`^"([^"]*)" is a participant of "([^"]*)"$`, e.isParticipant)
}

func (e *Steps) start() error {
	return e.bddContext.Start()
}

func (e *Steps) startWithoutSync() error {
	return e.bddContext.Start(memcollab.WithoutSync())
}

func (e *Steps) createContext(adminName, contextID string) error {
	admin, err := e.bddContext.Admin(adminName)
	if err != nil {
		return err
	}

	err = e.bddContext.Ledger.CreateContext(context.Background(), &models.CreateContextRequest{ContextID: contextID},
		client.AsCaller(admin.ID()))
	if err != nil {
		return fmt.Errorf("failed to create context %s: %w", contextID, err)
	}

	admin.Session = session.New(contextID, admin.ID())

	return nil
}

func (e *Steps) uploadDocument(userName, documentID, content string) error {
	u, err := e.bddContext.User(userName)
	if err != nil {
		return err
	}

	return e.bddContext.Ledger.UploadDocument(context.Background(), &models.UploadDocumentRequest{
		ContextID:    u.Session.ContextID,
		DocumentID:   documentID,
		DocumentHash: ledgerutils.HashBytes([]byte(content)),
	}, client.AsCaller(u.ID()))
}

func (e *Steps) inviteAndJoin(adminName, inviteeName string) error {
	admin, err := e.bddContext.Admin(adminName)
	if err != nil {
		return err
	}

	invitee, err := e.bddContext.User(inviteeName)
	if err != nil {
		return err
	}

	token, err := invitation.NewIssuer(admin.Key).Issue(admin.Session.ContextID)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s#%s=%s", invitationLink, join.InvitationParam, token)

	if _, _, err = join.ResolveInvitation(link, invitee.State); err != nil {
		return err
	}

	joiner := join.New(e.bddContext.Collab, e.bddContext.Ledger, invitee.State,
		join.WithSyncSchedule(syncAttempts, 1, syncInterval, syncInterval),
		join.WithRegistrationRetry(syncAttempts, syncInterval),
		join.WithNameRetry(syncAttempts, syncInterval),
		join.WithTransitionHook(func(_, to join.State, _ error) {
			invitee.Transitions = append(invitee.Transitions, to)
		}))
	defer joiner.Close()

	invitee.Session, err = joiner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("%s failed to join: %w", inviteeName, err)
	}

	return nil
}

func (e *Steps) sign(userName, documentID, signedContent string) error {
	u, err := e.bddContext.User(userName)
	if err != nil {
		return err
	}

	coordinator := signing.New(e.bddContext.Ledger, signing.WithCollab(e.bddContext.Collab))

	if res := coordinator.CheckCanSign(context.Background(), u.Session, documentID); res.CanSign {
		return fmt.Errorf("%s can sign %s before consenting", userName, documentID)
	}

	out := coordinator.SignWithConsent(context.Background(), u.Session, signing.SignRequest{
		DocumentID:          documentID,
		ConsentAcknowledged: true,
		SignedHash:          ledgerutils.HashBytes([]byte(signedContent)),
	})

	return common.OutcomeError("sign "+documentID, out)
}

func (e *Steps) documentStatus(documentID, status string, signers int) error {
	doc, err := e.bddContext.Ledger.GetDocument(context.Background(), documentID)
	if err != nil {
		return err
	}

	if err = common.ExpectEqual("status of "+documentID, status, doc.Status); err != nil {
		return err
	}

	return common.ExpectEqual("signer count of "+documentID, signers, len(doc.CurrentSigners))
}

func (e *Steps) verifyContent(content, documentID, status string) error {
	report, failure := verify.New(e.bddContext.Ledger).CheckFile(context.Background(), nil, documentID,
		strings.NewReader(content))
	if failure != nil {
		return failure
	}

	return common.ExpectEqual("verification of "+documentID, status, report.Status)
}

func (e *Steps) verifyHash(hash, documentID, status string) error {
	report, failure := verify.New(e.bddContext.Ledger).Check(context.Background(), nil, documentID, hash)
	if failure != nil {
		return failure
	}

	return common.ExpectEqual("verification of "+documentID, status, report.Status)
}

func (e *Steps) progressComplete(userName, contextID string) error {
	u, err := e.bddContext.User(userName)
	if err != nil {
		return err
	}

	if u.Session == nil || u.Session.ContextID != contextID {
		return fmt.Errorf("%s has not joined %s", userName, contextID)
	}

	out := signing.New(e.bddContext.Ledger).GetSigningProgress(context.Background(), u.Session)
	if err = common.OutcomeError("progress of "+contextID, out); err != nil {
		return err
	}

	if p := out.Data.(*signing.Progress); !p.Complete() {
		return fmt.Errorf("progress of %s is not complete: %v", contextID, p.DocumentStatuses)
	}

	return nil
}

func (e *Steps) passedThrough(userName, state string) error {
	u, err := e.bddContext.User(userName)
	if err != nil {
		return err
	}

	for _, s := range u.Transitions {
		if string(s) == state {
			return nil
		}
	}

	return fmt.Errorf("%s never entered %s, transitions were %v", userName, state, u.Transitions)
}

func (e *Steps) isParticipant(userName, contextID string) error {
	u, err := e.bddContext.User(userName)
	if err != nil {
		return err
	}

	ok, err := e.bddContext.Ledger.IsUserContextParticipant(context.Background(), contextID, u.ID())
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%s is not a participant of %s", userName, contextID)
	}

	return nil
}
