/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context

import (
	"fmt"
	"net/http/httptest"

	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"

	"github.com/merosign/merosign/pkg/client"
	collabclient "github.com/merosign/merosign/pkg/client/collab"
	"github.com/merosign/merosign/pkg/collab/memcollab"
	"github.com/merosign/merosign/pkg/ledgerprovider"
	"github.com/merosign/merosign/pkg/restapi"
	"github.com/merosign/merosign/pkg/restapi/operation"
)

// BDDContext holds the servers a scenario runs against and the users acting in it.
type BDDContext struct {
	Ledger *client.Client
	Collab *collabclient.Client
	Node   *memcollab.Node
	Users  map[string]*User

	server *httptest.Server
}

// NewBDDContext returns a context with no servers running.
func NewBDDContext() *BDDContext {
	return &BDDContext{Users: make(map[string]*User)}
}

// Start serves a fresh ledger over in-memory storage and a fresh collaboration node on one host,
// replacing whatever ran before and forgetting every user.
func (c *BDDContext) Start(nodeOpts ...memcollab.Option) error {
	c.Close()

	ledger, err := ledgerprovider.New(mem.NewProvider())
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	controller, err := restapi.New(&operation.Config{Ledger: ledger})
	if err != nil {
		return err
	}

	c.Node = memcollab.New(nodeOpts...)

	router := mux.NewRouter()
	router.UseEncodedPath()

	for _, h := range controller.GetOperations() {
		router.HandleFunc(h.Path(), h.Handle()).Methods(h.Method())
	}

	for _, h := range c.Node.Handlers() {
		router.HandleFunc(h.Path(), h.Handle()).Methods(h.Method())
	}

	c.server = httptest.NewServer(router)
	c.Ledger = client.New(c.server.URL)
	c.Collab = collabclient.New(c.server.URL)
	c.Users = make(map[string]*User)

	return nil
}

// Close stops the servers.
func (c *BDDContext) Close() {
	if c.server != nil {
		c.server.Close()
		c.server = nil
	}
}
