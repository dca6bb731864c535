/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context

import (
	"crypto/ed25519"
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"

	"github.com/merosign/merosign/pkg/join"
	"github.com/merosign/merosign/pkg/ledgerutils"
	"github.com/merosign/merosign/pkg/session"
	"github.com/merosign/merosign/pkg/storage"
)

// User is one person in a scenario, with its own local state.
type User struct {
	Name        string
	State       *storage.LocalState
	Session     *session.Session
	Key         ed25519.PrivateKey
	Transitions []join.State
}

// User returns the named user, creating it on first use.
func (c *BDDContext) User(name string) (*User, error) {
	if u, ok := c.Users[name]; ok {
		return u, nil
	}

	state, err := storage.OpenLocalState(mem.NewProvider())
	if err != nil {
		return nil, err
	}

	u := &User{Name: name, State: state}
	c.Users[name] = u

	return u, nil
}

// Admin returns the named user with a signing identity.
func (c *BDDContext) Admin(name string) (*User, error) {
	u, err := c.User(name)
	if err != nil {
		return nil, err
	}

	if u.Key == nil {
		var id string

		id, u.Key, err = ledgerutils.NewIdentity()
		if err != nil {
			return nil, fmt.Errorf("failed to create identity for %s: %w", name, err)
		}

		u.Session = session.New("", id)
	}

	return u, nil
}

// ID is the ledger principal of the user.
func (u *User) ID() string {
	return u.Session.Caller()
}
