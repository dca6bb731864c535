/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package join

import (
	"fmt"
	"net/url"

	"github.com/merosign/merosign/pkg/storage"
)

// InvitationParam is the URL fragment parameter that carries an invitation.
const InvitationParam = "invitation"

// ResolveInvitation finds the invitation to join with. An invitation in the fragment of rawURL
// (#invitation=<payload>) wins over the stashed one; it is stashed right away and the returned URL has
// it removed. Without one in the URL, the stashed invitation is returned and rawURL is left as is.
// An empty invitation means there is nothing to join.
func ResolveInvitation(rawURL string, state *storage.LocalState) (string, string, error) {
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse invitation URL: %w", err)
		}

		fragment, err := url.ParseQuery(u.Fragment)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse invitation URL fragment: %w", err)
		}

		if payload := fragment.Get(InvitationParam); payload != "" {
			if err = state.StashInvitation(payload); err != nil {
				return "", "", err
			}

			fragment.Del(InvitationParam)

			u.Fragment = fragment.Encode()
			u.RawFragment = ""

			return payload, u.String(), nil
		}
	}

	pending, err := state.PendingInvitation()
	if err != nil {
		return "", "", err
	}

	return pending, rawURL, nil
}
