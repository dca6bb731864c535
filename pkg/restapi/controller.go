/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package restapi

import (
	"errors"

	"github.com/merosign/merosign/pkg/restapi/operation"
)

var errMissingLedger = errors.New("ledger must be provided")

// New returns new controller instance.
func New(config *operation.Config) (*Controller, error) {
	if config == nil || config.Ledger == nil {
		return nil, errMissingLedger
	}

	var allHandlers []operation.Handler

	ledgerService := operation.New(config)
	allHandlers = append(allHandlers, ledgerService.GetRESTHandlers()...)

	return &Controller{handlers: allHandlers}, nil
}

// Controller contains handlers for controller
type Controller struct {
	handlers []operation.Handler
}

// GetOperations returns all controller endpoints
func (c *Controller) GetOperations() []operation.Handler {
	return c.handlers
}
