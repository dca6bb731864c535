/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package clicmd

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/spf13/cobra"

	"github.com/merosign/merosign/pkg/auth/invitation"
	"github.com/merosign/merosign/pkg/client"
	"github.com/merosign/merosign/pkg/join"
	"github.com/merosign/merosign/pkg/ledgerutils"
	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/storage"
)

const defaultInviteLink = "merosign://join"

func keygenCmd(s *settings) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the identity used to administer contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			if key, errKey := e.signingKey(); errKey == nil && !force {
				printf(cmd, "Identity: %s", identityOf(key))

				return nil
			}

			id, key, err := ledgerutils.NewIdentity()
			if err != nil {
				return err
			}

			if err = e.state.SaveSigningKey(base58.Encode(key)); err != nil {
				return err
			}

			printf(cmd, "Identity: %s", id)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing identity.")

	return cmd
}

func createCmd(s *settings) *cobra.Command {
	var (
		req       models.CreateContextRequest
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create <context-id>",
		Short: "Create a signing context administered by this identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			key, err := e.signingKey()
			if err != nil {
				return err
			}

			adminID := identityOf(key)

			req.ContextID = args[0]
			if expiresIn > 0 {
				req.ExpiresAt = time.Now().Add(expiresIn).UnixNano()
			}

			if err = e.ledger.CreateContext(commandContext(cmd), &req, client.AsCaller(adminID)); err != nil {
				return err
			}

			if err = e.state.SaveJoined(storage.Joined{ContextID: req.ContextID, MemberPublicKey: adminID}); err != nil {
				return err
			}

			printf(cmd, "Created context %s", req.ContextID)

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&req.Participants, "participant", nil, "Participant identity. Repeatable.")
	cmd.Flags().StringVar(&req.Title, "title", "", "Context title.")
	cmd.Flags().StringVar(&req.Description, "description", "", "Context description.")
	cmd.Flags().StringVar(&req.AgreementType, "agreement-type", "", "Kind of agreement.")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Time after which the context can no longer change.")

	return cmd
}

func inviteCmd(s *settings) *cobra.Command {
	var (
		link string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Issue an invitation to the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			sess, err := e.session()
			if err != nil {
				return err
			}

			key, err := e.signingKey()
			if err != nil {
				return err
			}

			if identityOf(key) != sess.MemberPublicKey {
				return errNotAdmin
			}

			var opts []invitation.IssuerOption
			if ttl > 0 {
				opts = append(opts, invitation.WithTTL(ttl))
			}

			token, err := invitation.NewIssuer(key, opts...).Issue(sess.ContextID)
			if err != nil {
				return err
			}

			printf(cmd, "%s#%s=%s", link, join.InvitationParam, token)

			return nil
		},
	}

	cmd.Flags().StringVar(&link, "link", defaultInviteLink, "Base of the invitation link.")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Validity of the invitation. Defaults to the issuer default.")

	return cmd
}

func addParticipantCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "add-participant <identity>",
		Short: "Add a participant to the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			sess, err := e.session()
			if err != nil {
				return err
			}

			if err = e.ledger.AddParticipant(commandContext(cmd), sess.ContextID, args[0],
				client.AsCaller(sess.Caller())); err != nil {
				return err
			}

			printf(cmd, "Added %s to %s", args[0], sess.ContextID)

			return nil
		},
	}
}

func uploadCmd(s *settings) *cobra.Command {
	var name, artifactRef string

	cmd := &cobra.Command{
		Use:   "upload <document-id> <file>",
		Short: "Record a document in the current context",
		Args:  cobra.ExactArgs(2), //nolint: gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			sess, err := e.session()
			if err != nil {
				return err
			}

			hash, err := hashFile(args[1])
			if err != nil {
				return err
			}

			if name == "" {
				name = filepath.Base(args[1])
			}

			err = e.ledger.UploadDocument(commandContext(cmd), &models.UploadDocumentRequest{
				ContextID:    sess.ContextID,
				DocumentID:   args[0],
				DocumentHash: hash,
				Name:         name,
				ArtifactRef:  artifactRef,
			}, client.AsCaller(sess.Caller()))
			if err != nil {
				return err
			}

			printf(cmd, "Uploaded %s (%s)", args[0], hash)

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name. Defaults to the file name.")
	cmd.Flags().StringVar(&artifactRef, "artifact-ref", "", "Where the document content is stored.")

	return cmd
}

func documentsCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "documents",
		Short: "List the documents of the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			sess, err := e.session()
			if err != nil {
				return err
			}

			docs, err := e.ledger.GetContextDocuments(commandContext(cmd), sess.ContextID, client.AsCaller(sess.Caller()))
			if err != nil {
				return err
			}

			for i := range docs {
				printDocument(cmd, &docs[i])
			}

			return nil
		},
	}
}

func statusCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			joined, err := e.state.Joined()
			if err != nil {
				return err
			}

			pending, err := e.state.PendingInvitation()
			if err != nil {
				return err
			}

			printf(cmd, "Context: %s", orNone(joined.ContextID))
			printf(cmd, "Member: %s", orNone(joined.MemberPublicKey))
			printf(cmd, "Pending invitation: %t", pending != "")

			if key, errKey := e.signingKey(); errKey == nil {
				printf(cmd, "Admin identity: %s", identityOf(key))
			}

			return nil
		},
	}
}

func resetCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the joined context and any pending invitation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			if err = e.state.Reset(); err != nil {
				return err
			}

			printf(cmd, "Session cleared")

			return nil
		},
	}
}

func identityOf(key ed25519.PrivateKey) string {
	return ledgerutils.EncodePublicKey(key.Public().(ed25519.PublicKey))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}

	defer func() {
		if errClose := f.Close(); errClose != nil {
			logger.Warnf("failed to close %s: %s", path, errClose)
		}
	}()

	return ledgerutils.HashReader(f)
}

func printDocument(cmd *cobra.Command, doc *models.Document) {
	printf(cmd, "%s\t%s\t%s", doc.DocumentID, doc.Status, strings.Join(doc.CurrentSigners, ","))
}

func orNone(v string) string {
	if v == "" {
		return "(none)"
	}

	return v
}
