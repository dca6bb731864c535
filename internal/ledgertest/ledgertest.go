/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledgertest runs an in-memory ledger behind an HTTP test server.
package ledgertest

import (
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/merosign/merosign/pkg/ledgerprovider"
	"github.com/merosign/merosign/pkg/restapi"
	"github.com/merosign/merosign/pkg/restapi/operation"
)

// NewServer starts a ledger over in-memory storage. The server is closed when the test ends.
func NewServer(t *testing.T, opts ...ledgerprovider.Option) (*httptest.Server, *ledgerprovider.Provider) {
	t.Helper()

	ledger, err := ledgerprovider.New(mem.NewProvider(), opts...)
	require.NoError(t, err)

	controller, err := restapi.New(&operation.Config{Ledger: ledger})
	require.NoError(t, err)

	router := mux.NewRouter()

	for _, handler := range controller.GetOperations() {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, ledger
}
