/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memcollab

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/internal/common/support"
)

// Handler is an admin API endpoint of the node.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}

// Handlers exposes the node over the admin API served at collab.AdminAPIRoot.
func (n *Node) Handlers() []Handler {
	return []Handler{
		support.NewHTTPHandler(collab.IdentityPath, http.MethodPost, n.createIdentityHandler),
		support.NewHTTPHandler(collab.JoinPath, http.MethodPost, n.joinHandler),
		support.NewHTTPHandler(collab.ContextPath, http.MethodGet, n.getContextHandler),
		support.NewHTTPHandler(collab.SignaturesPath, http.MethodPost, n.markSignedHandler),
		support.NewHTTPHandler(collab.WorkspacePath, http.MethodPost, n.workspaceHandler),
		support.NewHTTPHandler(collab.WorkspacePath, http.MethodGet, n.listWorkspaceHandler),
		support.NewHTTPHandler(collab.WorkspaceEntryPath, http.MethodDelete, n.leaveWorkspaceHandler),
	}
}

func (n *Node) createIdentityHandler(rw http.ResponseWriter, req *http.Request) {
	identity, err := n.CreateIdentity(req.Context())

	respond(rw, identity, err)
}

func (n *Node) joinHandler(rw http.ResponseWriter, req *http.Request) {
	var request collab.JoinRequest

	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	joined, err := n.JoinContext(req.Context(), request.Invitation, &collab.Identity{PublicKey: request.PublicKey})

	respond(rw, joined, err)
}

func (n *Node) getContextHandler(rw http.ResponseWriter, req *http.Request) {
	info, err := n.GetContext(req.Context(), mux.Vars(req)[collab.ContextIDPathParam])

	respond(rw, info, err)
}

func (n *Node) markSignedHandler(rw http.ResponseWriter, req *http.Request) {
	var mark collab.SignatureMark

	if err := json.NewDecoder(req.Body).Decode(&mark); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	mark.ContextID = mux.Vars(req)[collab.ContextIDPathParam]

	respond(rw, nil, n.MarkParticipantSigned(req.Context(), &mark))
}

func (n *Node) workspaceHandler(rw http.ResponseWriter, req *http.Request) {
	var entry collab.WorkspaceEntry

	if err := json.NewDecoder(req.Body).Decode(&entry); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}

	respond(rw, nil, n.RegisterInWorkspace(req.Context(), &entry))
}

func (n *Node) listWorkspaceHandler(rw http.ResponseWriter, req *http.Request) {
	entries, err := n.ListWorkspace(req.Context())

	respond(rw, entries, err)
}

func (n *Node) leaveWorkspaceHandler(rw http.ResponseWriter, req *http.Request) {
	respond(rw, nil, n.LeaveWorkspace(req.Context(), mux.Vars(req)[collab.ContextIDPathParam]))
}

func respond(rw http.ResponseWriter, value interface{}, err error) {
	switch {
	case err == nil:
	case errors.Is(err, collab.ErrContextNotFound):
		writeError(rw, http.StatusNotFound, err)
		return
	case errors.Is(err, collab.ErrNotMember), errors.Is(err, collab.ErrInvalidInvitation):
		writeError(rw, http.StatusForbidden, err)
		return
	default:
		writeError(rw, http.StatusInternalServerError, err)
		return
	}

	if value == nil {
		rw.WriteHeader(http.StatusNoContent)
		return
	}

	rw.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(rw).Encode(value); err != nil {
		logger.Errorf("Failed to write response back to sender: %s", err)
	}
}

func writeError(rw http.ResponseWriter, status int, err error) {
	rw.WriteHeader(status)

	if _, errWrite := rw.Write([]byte(err.Error())); errWrite != nil {
		logger.Errorf("Failed to write response back to sender: %s", errWrite)
	}
}
