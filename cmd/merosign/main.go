/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"os"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/cmd/merosign/clicmd"
)

var logger = log.New("merosign")

func main() {
	if err := clicmd.GetRootCmd().Execute(); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}
