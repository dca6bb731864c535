/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package clicmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/merosign/merosign/pkg/session"
	"github.com/merosign/merosign/pkg/verify"
	"github.com/merosign/merosign/pkg/watch"
)

func verifyCmd(s *settings) *cobra.Command {
	var hash string

	cmd := &cobra.Command{
		Use:   "verify <document-id> [file]",
		Short: "Check a file, or a hash, against the hashes recorded for a document",
		Args:  cobra.RangeArgs(1, 2), //nolint: gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 2) == (hash != "") {
				return errors.New("give either a file or --hash")
			}

			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			engine := verify.New(e.ledger)

			// verification is public; a joined user verifies as themselves
			sess, errSession := e.session()
			if errSession != nil {
				sess = nil
			}

			var (
				report  verify.Report
				failure error
			)

			if hash != "" {
				report, failure = checkHash(commandContext(cmd), engine, sess, args[0], hash)
			} else {
				report, failure = checkFile(commandContext(cmd), engine, sess, args[0], args[1])
			}

			if failure != nil {
				return failure
			}

			printf(cmd, "%s", report.Message)

			return nil
		},
	}

	cmd.Flags().StringVar(&hash, "hash", "", "Hash to check instead of a file.")

	return cmd
}

func checkHash(ctx context.Context, engine *verify.Engine, sess *session.Session, documentID,
	hash string) (verify.Report, error) {
	report, failure := engine.Check(ctx, sess, documentID, hash)
	if failure != nil {
		return report, failure
	}

	return report, nil
}

func checkFile(ctx context.Context, engine *verify.Engine, sess *session.Session, documentID,
	path string) (verify.Report, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return verify.Report{}, err
	}

	defer func() {
		if errClose := f.Close(); errClose != nil {
			logger.Warnf("failed to close %s: %s", path, errClose)
		}
	}()

	report, failure := engine.CheckFile(ctx, sess, documentID, f)
	if failure != nil {
		return report, failure
	}

	return report, nil
}

func watchCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the documents of the current context every time it changes",
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

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
			defer stop()

			w := watch.New(e.collab, e.ledger, func(snapshot watch.Snapshot) {
				printf(cmd, "%s\t%s", snapshot.Context.ContextID, snapshot.Context.Status)

				for i := range snapshot.Documents {
					printDocument(cmd, &snapshot.Documents[i])
				}
			})

			err = w.Watch(ctx, sess)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		},
	}
}
