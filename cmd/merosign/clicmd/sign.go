/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package clicmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/merosign/merosign/pkg/client"
	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/result"
	"github.com/merosign/merosign/pkg/signing"
)

func consentCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "consent <document-id>",
		Short: "Record consent to sign a document electronically",
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

			if err = outcomeErr(signing.New(e.ledger).RecordConsent(commandContext(cmd), sess, args[0])); err != nil {
				return err
			}

			printf(cmd, "Consent recorded for %s", args[0])

			return nil
		},
	}
}

func canSignCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "can-sign <document-id>",
		Short: "Check whether this member may sign a document",
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

			res := signing.New(e.ledger).CheckCanSign(commandContext(cmd), sess, args[0])
			if res.CanSign {
				printf(cmd, "Yes")

				return nil
			}

			printf(cmd, "No: %s", res.Reason)

			return nil
		},
	}
}

func signCmd(s *settings) *cobra.Command {
	var (
		acknowledged bool
		signedFile   string
		artifactRef  string
	)

	cmd := &cobra.Command{
		Use:   "sign <document-id>",
		Short: "Consent to and sign a document",
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

			req := signing.SignRequest{
				DocumentID:          args[0],
				ConsentAcknowledged: acknowledged,
				ArtifactRef:         artifactRef,
			}

			if signedFile != "" {
				if req.SignedHash, err = hashFile(signedFile); err != nil {
					return err
				}
			}

			coordinator := signing.New(e.ledger, signing.WithCollab(e.collab))

			var out result.Outcome

			if acknowledged {
				out = coordinator.SignWithConsent(commandContext(cmd), sess, req)
			} else {
				out = coordinator.SignDocument(commandContext(cmd), sess, req)
			}

			if err = outcomeErr(out); err != nil {
				return err
			}

			printDocument(cmd, out.Data.(*models.Document))

			return nil
		},
	}

	cmd.Flags().BoolVar(&acknowledged, "i-consent", false,
		"Acknowledge consent to sign electronically. Required.")
	cmd.Flags().StringVar(&signedFile, "signed-file", "", "The signed PDF this signature produced.")
	cmd.Flags().StringVar(&artifactRef, "artifact-ref", "", "Where the signed PDF is stored.")

	return cmd
}

func finalizeCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <document-id> <file>",
		Short: "Confirm the final hash of a fully signed document",
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

			if err = e.ledger.RecordFinalHash(commandContext(cmd), args[0], hash,
				client.AsCaller(sess.Caller())); err != nil {
				return err
			}

			printf(cmd, "Final hash of %s is %s", args[0], hash)

			return nil
		},
	}
}

func progressCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show the signing progress of the current context",
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

			out := signing.New(e.ledger).GetSigningProgress(commandContext(cmd), sess)
			if err = outcomeErr(out); err != nil {
				return err
			}

			p := out.Data.(*signing.Progress)

			printf(cmd, "Required signers: %s", strings.Join(p.RequiredSigners, ","))
			printf(cmd, "Consented: %s", strings.Join(p.ConsentedUsers, ","))

			for _, d := range p.DocumentStatuses {
				printf(cmd, "%s\t%s", d.DocumentID, d.Status)
			}

			printf(cmd, "Complete: %t", p.Complete())

			return nil
		},
	}
}

func auditCmd(s *settings) *cobra.Command {
	var documentID string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the audit trail of the current context",
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

			var entries []models.AuditEntry

			if documentID == "" {
				entries, err = e.ledger.GetAuditTrail(commandContext(cmd), sess.ContextID, client.AsCaller(sess.Caller()))
			} else {
				entries, err = e.ledger.GetAuditTrailForDocument(commandContext(cmd), sess.ContextID, documentID,
					client.AsCaller(sess.Caller()))
			}

			if err != nil {
				return err
			}

			for i := range entries {
				entry := &entries[i]

				printf(cmd, "%s\t%s\t%s\t%s", time.Unix(0, entry.Timestamp).UTC().Format(time.RFC3339),
					entry.Action, entry.UserID, entry.DocumentID)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "Only show entries for this document.")

	return cmd
}

func outcomeErr(out result.Outcome) error {
	if out.Success {
		return nil
	}

	return out.Error
}
