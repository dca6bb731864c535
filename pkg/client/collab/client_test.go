/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package collab

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/merosign/merosign/pkg/auth/invitation"
	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/collab/memcollab"
	"github.com/merosign/merosign/pkg/ledgerutils"
	"github.com/merosign/merosign/pkg/result"
)

const testContextID = "board-resolution"

func TestClient_New(t *testing.T) {
	client := New("http://localhost:1234/", WithTLSConfig(&tls.Config{ServerName: "name"}),
		WithPollInterval(time.Second))

	require.NotNil(t, client)
	require.Equal(t, "http://localhost:1234", client.nodeURL)
	require.Equal(t, time.Second, client.pollInterval)
}

func TestClient_JoinFlow(t *testing.T) {
	srvAddr := randomURL()

	node := memcollab.New(memcollab.WithSyncDelay(1))
	srv := startNodeServer(srvAddr, node)

	waitForServerToStart(t, srvAddr)

	defer func() {
		require.NoError(t, srv.Shutdown(context.Background()))
	}()

	ctx := context.Background()
	client := New("http://" + srvAddr)

	token := issueInvitation(t)

	identity, err := client.CreateIdentity(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, identity.PublicKey)

	joined, err := client.JoinContext(ctx, token, identity)
	require.NoError(t, err)
	require.Equal(t, testContextID, joined.ContextID)
	require.Equal(t, identity.PublicKey, joined.MemberPublicKey)

	info, err := client.GetContext(ctx, testContextID)
	require.NoError(t, err)
	require.Equal(t, collab.EmptyRootHash, info.RootHash)

	info, err = client.GetContext(ctx, testContextID)
	require.NoError(t, err)
	require.True(t, info.Synced())

	require.NoError(t, client.RegisterInWorkspace(ctx, &collab.WorkspaceEntry{
		ContextID:       testContextID,
		ContextName:     "Board",
		MemberPublicKey: identity.PublicKey,
	}))

	entry, ok := node.Workspace(testContextID)
	require.True(t, ok)
	require.Equal(t, "Board", entry.ContextName)

	entries, err := client.ListWorkspace(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, testContextID, entries[0].ContextID)
	require.NotZero(t, entries[0].JoinedAt)

	require.NoError(t, client.MarkParticipantSigned(ctx, &collab.SignatureMark{
		ContextID:       testContextID,
		MemberPublicKey: identity.PublicKey,
		DocumentID:      "minutes",
	}))
	require.Equal(t, []string{identity.PublicKey}, node.Signers(testContextID, "minutes"))

	require.NoError(t, client.LeaveWorkspace(ctx, testContextID))

	err = client.LeaveWorkspace(ctx, testContextID)
	require.True(t, errors.Is(err, collab.ErrContextNotFound))

	entries, err = client.ListWorkspace(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestClient_Errors(t *testing.T) {
	srvAddr := randomURL()

	srv := startNodeServer(srvAddr, memcollab.New())

	waitForServerToStart(t, srvAddr)

	defer func() {
		require.NoError(t, srv.Shutdown(context.Background()))
	}()

	ctx := context.Background()
	client := New("http://" + srvAddr)

	t.Run("context not found", func(t *testing.T) {
		_, err := client.GetContext(ctx, "missing")
		require.True(t, errors.Is(err, collab.ErrContextNotFound))
	})
	t.Run("invalid invitation", func(t *testing.T) {
		identity, err := client.CreateIdentity(ctx)
		require.NoError(t, err)

		_, err = client.JoinContext(ctx, "garbage", identity)
		require.True(t, errors.Is(err, collab.ErrInvalidInvitation))
	})
	t.Run("missing identity", func(t *testing.T) {
		_, err := client.JoinContext(ctx, "garbage", nil)
		require.True(t, errors.Is(err, collab.ErrNotMember))
	})
	t.Run("not a member", func(t *testing.T) {
		_, err := client.JoinContext(ctx, issueInvitation(t), &collab.Identity{PublicKey: "stranger"})
		require.True(t, errors.Is(err, collab.ErrNotMember))
	})
}

func TestClient_Unavailable(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		_, err := New("http://"+randomURL()).GetContext(context.Background(), testContextID)
		require.True(t, result.IsTransient(err))
	})
	t.Run("503", func(t *testing.T) {
		srvAddr := randomURL()

		router := mux.NewRouter()
		router.HandleFunc(collab.ContextPath, func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}).Methods(http.MethodGet)

		srv := serve(srvAddr, router)

		waitForServerToStart(t, srvAddr)

		defer func() {
			require.NoError(t, srv.Shutdown(context.Background()))
		}()

		_, err := New("http://"+srvAddr).GetContext(context.Background(), testContextID)
		require.True(t, result.IsTransient(err))
	})
	t.Run("unexpected status", func(t *testing.T) {
		srvAddr := randomURL()

		router := mux.NewRouter()
		router.HandleFunc(collab.IdentityPath, func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusTeapot)
		}).Methods(http.MethodPost)

		srv := serve(srvAddr, router)

		waitForServerToStart(t, srvAddr)

		defer func() {
			require.NoError(t, srv.Shutdown(context.Background()))
		}()

		_, err := New("http://" + srvAddr).CreateIdentity(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "status code 418")
		require.False(t, result.IsTransient(err))
	})
}

func TestClient_Subscribe(t *testing.T) {
	srvAddr := randomURL()

	node := memcollab.New()
	srv := startNodeServer(srvAddr, node)

	waitForServerToStart(t, srvAddr)

	defer func() {
		require.NoError(t, srv.Shutdown(context.Background()))
	}()

	ctx := context.Background()
	client := New("http://"+srvAddr, WithPollInterval(10*time.Millisecond))

	_, err := client.Subscribe(ctx, "missing")
	require.True(t, errors.Is(err, collab.ErrContextNotFound))

	identity, err := client.CreateIdentity(ctx)
	require.NoError(t, err)

	_, err = client.JoinContext(ctx, issueInvitation(t), identity)
	require.NoError(t, err)

	sub, err := client.Subscribe(ctx, testContextID)
	require.NoError(t, err)

	require.NoError(t, client.MarkParticipantSigned(ctx, &collab.SignatureMark{
		ContextID:       testContextID,
		MemberPublicKey: identity.PublicKey,
		DocumentID:      "minutes",
	}))

	select {
	case event := <-sub.Events():
		require.Equal(t, collab.StateChanged, event.Type)
		require.Equal(t, testContextID, event.ContextID)
		require.NotEqual(t, collab.EmptyRootHash, event.RootHash)
	case <-time.After(5 * time.Second):
		require.Fail(t, "no event received")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()

	for range sub.Events() {
		// drain until closed
	}
}

func issueInvitation(t *testing.T) string {
	t.Helper()

	_, adminKey, err := ledgerutils.NewIdentity()
	require.NoError(t, err)

	token, err := invitation.NewIssuer(adminKey).Issue(testContextID)
	require.NoError(t, err)

	return token
}

// Returns a reference to the server so the caller can stop it.
func startNodeServer(srvAddr string, node *memcollab.Node) *http.Server {
	router := mux.NewRouter()

	for _, handler := range node.Handlers() {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	return serve(srvAddr, router)
}

func serve(srvAddr string, router *mux.Router) *http.Server {
	srv := http.Server{Addr: srvAddr, Handler: router}
	go func(srv *http.Server) {
		err := srv.ListenAndServe()
		if err.Error() != "http: Server closed" {
			log.Fatalf("server failure")
		}
	}(&srv)

	return &srv
}

func waitForServerToStart(t *testing.T, srvAddr string) {
	if err := listenFor(srvAddr); err != nil {
		t.Fatal(err)
	}
}

func listenFor(host string) error {
	timeout := time.After(10 * time.Second)

	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout: server is not available")
		default:
			conn, err := net.Dial("tcp", host)
			if err != nil {
				continue
			}

			return conn.Close()
		}
	}
}

func randomURL() string {
	return fmt.Sprintf("localhost:%d", mustGetRandomPort(3))
}

func mustGetRandomPort(n int) int {
	for ; n > 0; n-- {
		port, err := getRandomPort()
		if err != nil {
			continue
		}

		return port
	}
	panic("cannot acquire the random port")
}

func getRandomPort() (int, error) {
	const network = "tcp"

	addr, err := net.ResolveTCPAddr(network, "localhost:0")
	if err != nil {
		return 0, err
	}

	listener, err := net.ListenTCP(network, addr)
	if err != nil {
		return 0, err
	}

	err = listener.Close()
	if err != nil {
		return 0, err
	}

	return listener.Addr().(*net.TCPAddr).Port, nil
}
