/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/merosign/merosign/pkg/storage"
)

func TestLoad(t *testing.T) {
	state, err := storage.OpenLocalState(mem.NewProvider())
	require.NoError(t, err)

	s, err := Load(state)
	require.Equal(t, ErrMissingIdentity, err)
	require.NotNil(t, s)

	require.NoError(t, state.SaveJoined(storage.Joined{ContextID: "ctx1", MemberPublicKey: "member1"}))

	s, err = Load(state)
	require.NoError(t, err)
	require.Equal(t, "ctx1", s.ContextID)
	require.Equal(t, "member1", s.Caller())
}

func TestValidate(t *testing.T) {
	var nilSession *Session

	require.Equal(t, ErrMissingIdentity, nilSession.Validate())
	require.Empty(t, nilSession.Caller())
	require.Equal(t, ErrMissingContext, New("", "member").Validate())
	require.NoError(t, New("ctx", "member").Validate())
}
