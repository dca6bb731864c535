/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"fmt"

	"github.com/merosign/merosign/pkg/result"
)

// OutcomeError turns a failed outcome into an error naming the step.
func OutcomeError(step string, out result.Outcome) error {
	if out.Success {
		return nil
	}

	return fmt.Errorf("%s: %s (%s)", step, out.Error.Message, out.Error.Code)
}

// ExpectEqual fails when got differs from want.
func ExpectEqual(what string, want, got interface{}) error {
	if fmt.Sprint(want) != fmt.Sprint(got) {
		return fmt.Errorf("expected %s to be %v, got %v", what, want, got)
	}

	return nil
}
