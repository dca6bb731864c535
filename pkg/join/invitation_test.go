/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package join

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveInvitation(t *testing.T) {
	t.Run("URL wins and is scrubbed", func(t *testing.T) {
		state := newLocalState(t)
		require.NoError(t, state.StashInvitation("old"))

		payload, scrubbed, err := ResolveInvitation("https://app.example.com/join#invitation=abc.def-ghi_j", state)
		require.NoError(t, err)
		require.Equal(t, "abc.def-ghi_j", payload)
		require.Equal(t, "https://app.example.com/join", scrubbed)

		pending, err := state.PendingInvitation()
		require.NoError(t, err)
		require.Equal(t, "abc.def-ghi_j", pending)
	})
	t.Run("other fragment parameters survive", func(t *testing.T) {
		payload, scrubbed, err := ResolveInvitation("https://app.example.com/#invitation=tok&tab=docs",
			newLocalState(t))
		require.NoError(t, err)
		require.Equal(t, "tok", payload)
		require.Equal(t, "https://app.example.com/#tab=docs", scrubbed)
	})
	t.Run("falls back to the stash", func(t *testing.T) {
		state := newLocalState(t)
		require.NoError(t, state.StashInvitation("stashed"))

		payload, scrubbed, err := ResolveInvitation("https://app.example.com/#tab=docs", state)
		require.NoError(t, err)
		require.Equal(t, "stashed", payload)
		require.Equal(t, "https://app.example.com/#tab=docs", scrubbed)

		payload, scrubbed, err = ResolveInvitation("", state)
		require.NoError(t, err)
		require.Equal(t, "stashed", payload)
		require.Empty(t, scrubbed)
	})
	t.Run("nothing to join", func(t *testing.T) {
		payload, _, err := ResolveInvitation("https://app.example.com/", newLocalState(t))
		require.NoError(t, err)
		require.Empty(t, payload)
	})
	t.Run("bad URL", func(t *testing.T) {
		_, _, err := ResolveInvitation("://bad", newLocalState(t))
		require.Error(t, err)

		_, _, err = ResolveInvitation("https://app.example.com/#%zz", newLocalState(t))
		require.Error(t, err)
	})
}
