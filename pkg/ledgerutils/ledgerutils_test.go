/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledgerutils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merosign/merosign/pkg/restapi/ledgererrors"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestGenerateID(t *testing.T) {
	id, err := GenerateID()
	require.NoError(t, err)
	require.NoError(t, ValidateID(id))
}

func Test_generateID_Failure(t *testing.T) {
	id, err := generateID(failingGenerateRandomBytesFunc)
	require.EqualError(t, err, errRandomByteGeneration.Error())
	require.Empty(t, id)
}

func TestValidateID(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		require.NoError(t, ValidateID("ctx_2024-lease"))
	})
	t.Run("Empty", func(t *testing.T) {
		err := ValidateID("")
		require.True(t, errors.Is(err, ledgererrors.ErrInvalidInput))
		require.EqualError(t, err, "ID cannot be empty.")
	})
	t.Run("Too long", func(t *testing.T) {
		err := ValidateID(strings.Repeat("a", MaxIDLength+1))
		require.EqualError(t, err, "ID exceeds max length of 128 bytes.")
	})
	t.Run("Invalid characters", func(t *testing.T) {
		err := ValidateID("ctx/1")
		require.EqualError(t, err, "ID contains invalid characters.")
	})
}

func TestValidateHash(t *testing.T) {
	require.NoError(t, ValidateHash(emptySHA256))

	err := ValidateHash("garbage")
	require.EqualError(t, err, "Hash must be 64 characters long.")

	err = ValidateHash(strings.Repeat("z", HashLength))
	require.EqualError(t, err, "Hash contains non-hexadecimal characters.")
}

func TestHash(t *testing.T) {
	require.Equal(t, emptySHA256, HashBytes(nil))

	h, err := HashReader(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, emptySHA256, h)
}

func TestIdentity(t *testing.T) {
	id, priv, err := NewIdentity()
	require.NoError(t, err)
	require.NotNil(t, priv)
	require.NoError(t, ValidateID(id))

	pub, err := DecodePublicKey(id)
	require.NoError(t, err)
	require.Equal(t, id, EncodePublicKey(pub))

	_, err = DecodePublicKey("abc")
	require.Error(t, err)
}

var errRandomByteGeneration = errors.New("failingGenerateRandomBytesFunc always fails")

func failingGenerateRandomBytesFunc(_ []byte) (int, error) {
	return -1, errRandomByteGeneration
}
