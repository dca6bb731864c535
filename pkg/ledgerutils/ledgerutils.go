/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledgerutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"unicode"

	"github.com/btcsuite/btcutil/base58"

	"github.com/merosign/merosign/pkg/restapi/ledgererrors"
)

const (
	// MaxIDLength is the longest context, document or user ID the ledger accepts.
	MaxIDLength = 128
	// HashLength is the length of a hex-encoded SHA-256 digest.
	HashLength = 64
)

type generateRandomBytesFunc func([]byte) (int, error)

// GenerateID generates a random base58 ID that passes ValidateID.
func GenerateID() (string, error) {
	return generateID(rand.Read)
}

func generateID(generateRandomBytes generateRandomBytesFunc) (string, error) {
	randomBytes := make([]byte, 16)

	_, err := generateRandomBytes(randomBytes)
	if err != nil {
		return "", err
	}

	return base58.Encode(randomBytes), nil
}

// ValidateID checks that id is non-empty, at most MaxIDLength bytes and made only of
// letters, digits, '-' and '_'.
func ValidateID(id string) error {
	if id == "" {
		return ledgererrors.WithDetail(ledgererrors.InvalidInput, "ID cannot be empty.")
	}

	if len(id) > MaxIDLength {
		return ledgererrors.WithDetail(ledgererrors.InvalidInput,
			fmt.Sprintf("ID exceeds max length of %d bytes.", MaxIDLength))
	}

	for _, c := range id {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-' && c != '_' {
			return ledgererrors.WithDetail(ledgererrors.InvalidInput, "ID contains invalid characters.")
		}
	}

	return nil
}

// ValidateHash checks that hash is a hex-encoded SHA-256 digest.
func ValidateHash(hash string) error {
	if len(hash) != HashLength {
		return ledgererrors.WithDetail(ledgererrors.InvalidInput,
			fmt.Sprintf("Hash must be %d characters long.", HashLength))
	}

	if _, err := hex.DecodeString(hash); err != nil {
		return ledgererrors.WithDetail(ledgererrors.InvalidInput, "Hash contains non-hexadecimal characters.")
	}

	return nil
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// HashReader returns the lowercase hex SHA-256 digest of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// EncodePublicKey returns the base58 form of an Ed25519 public key, which is also the user's ID.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// DecodePublicKey parses a base58 user ID back into an Ed25519 public key.
func DecodePublicKey(id string) (ed25519.PublicKey, error) {
	raw := base58.Decode(id)
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%q is not a base58-encoded ed25519 public key", id)
	}

	return ed25519.PublicKey(raw), nil
}

// NewIdentity creates a fresh Ed25519 key pair and returns it together with its user ID.
func NewIdentity() (string, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	return EncodePublicKey(pub), priv, nil
}
