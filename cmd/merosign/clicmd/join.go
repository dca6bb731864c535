/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package clicmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/merosign/merosign/pkg/join"
)

func joinCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "join [invitation-link]",
		Short: "Join a context with an invitation link, or resume a pending join",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			var link string
			if len(args) == 1 {
				link = args[0]
			}

			if _, _, err = join.ResolveInvitation(link, e.state); err != nil {
				return err
			}

			opts := append(e.cfg.JoinOptions(), join.WithTransitionHook(func(from, to join.State, err error) {
				if err != nil {
					printf(cmd, "%s -> %s: %s", from, to, err)

					return
				}

				printf(cmd, "%s -> %s", from, to)
			}))

			joiner := join.New(e.collab, e.ledger, e.state, opts...)
			defer joiner.Close()

			sess, err := joiner.Run(commandContext(cmd))
			if err != nil {
				return err
			}

			printf(cmd, "Joined context %s as %s", sess.ContextID, sess.MemberPublicKey)

			return nil
		},
	}
}

func contextsCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List the contexts registered in the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			entries, err := e.collab.ListWorkspace(commandContext(cmd))
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				printf(cmd, "No joined contexts")

				return nil
			}

			for _, entry := range entries {
				printf(cmd, "%s\t%s\t%s\t%s", entry.ContextID, entry.ContextName, entry.MemberPublicKey,
					time.Unix(0, entry.JoinedAt).UTC().Format(time.RFC3339))
			}

			return nil
		},
	}
}

func leaveCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <context-id>",
		Short: "Remove a context from the workspace, forgetting the session if it is the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.open(cmd)
			if err != nil {
				return err
			}

			if err = e.collab.LeaveWorkspace(commandContext(cmd), args[0]); err != nil {
				return err
			}

			joined, err := e.state.Joined()
			if err != nil {
				return err
			}

			if joined.ContextID == args[0] {
				if err = e.state.Reset(); err != nil {
					return err
				}
			}

			printf(cmd, "Left context %s", args[0])

			return nil
		},
	}
}
