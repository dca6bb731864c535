/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/restapi/operation"
	"github.com/merosign/merosign/pkg/storage"
)

type mockServer struct {
	handler http.Handler
	err     error
}

func (s *mockServer) ListenAndServe(host, certFile, keyFile string, handler http.Handler) error {
	s.handler = handler

	return s.err
}

func TestStartCmdContents(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start ledger", startCmd.Short)
	require.Equal(t, "Start the reference document ledger", startCmd.Long)

	checkFlagPropertiesCorrect(t, startCmd, hostURLFlagName, hostURLFlagShorthand, hostURLFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, databaseTypeFlagName, databaseTypeFlagShorthand, databaseTypeFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, databaseURLFlagName, databaseURLFlagShorthand, databaseURLFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, databasePrefixFlagName, databasePrefixFlagShorthand,
		databasePrefixFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, logLevelFlagName, "", logLevelFlagUsage)
}

func TestStartCmdWithMissingArgs(t *testing.T) {
	t.Run("host url", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})
		startCmd.SetArgs([]string{})

		err := startCmd.Execute()
		require.EqualError(t, err,
			"neither host-url (command line flag) nor MEROSIGN_LEDGER_HOST_URL (environment variable) have been set")
	})
	t.Run("database type", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})
		startCmd.SetArgs([]string{"--" + hostURLFlagName, "localhost:8077"})

		err := startCmd.Execute()
		require.EqualError(t, err, "neither database-type (command line flag) nor "+
			"MEROSIGN_LEDGER_DATABASE_TYPE (environment variable) have been set")
	})
}

func TestStartCmdBlankArgs(t *testing.T) {
	for _, flag := range []string{tlsCertFileFlagName, tlsKeyFileFlagName, databaseURLFlagName,
		databasePrefixFlagName, logLevelFlagName} {
		flag := flag
		t.Run(flag, func(t *testing.T) {
			startCmd := GetStartCmd(&mockServer{})
			startCmd.SetArgs([]string{"--" + hostURLFlagName, "localhost:8077", "--" + databaseTypeFlagName, "mem",
				"--" + flag, ""})

			err := startCmd.Execute()
			require.EqualError(t, err, fmt.Sprintf("%s value is empty", flag))
		})
	}
}

func TestStartLedger(t *testing.T) {
	t.Run("missing host url", func(t *testing.T) {
		err := startLedger(&ledgerParameters{})
		require.Equal(t, errMissingHostURL, err)
	})
	t.Run("invalid database type", func(t *testing.T) {
		err := startLedger(&ledgerParameters{hostURL: "NotBlank", databaseType: "NotAValidType"})
		require.True(t, errors.Is(err, storage.ErrInvalidDatabaseType))
	})
	t.Run("invalid mongodb url", func(t *testing.T) {
		err := startLedger(&ledgerParameters{hostURL: "NotBlank", databaseType: "mongodb", databaseURL: "%"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to create mongodb provider")
	})
	t.Run("server error", func(t *testing.T) {
		errServe := errors.New("address in use")

		err := startLedger(&ledgerParameters{srv: &mockServer{err: errServe}, hostURL: "localhost:8077",
			databaseType: "mem"})
		require.Equal(t, errServe, err)
	})
}

func TestStartCmdValidArgs(t *testing.T) {
	srv := &mockServer{}
	startCmd := GetStartCmd(srv)

	startCmd.SetArgs([]string{"--" + hostURLFlagName, "localhost:8077", "--" + databaseTypeFlagName, "mem"})

	require.NoError(t, startCmd.Execute())
	require.NotNil(t, srv.handler)

	t.Run("ledger routes are served", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, operation.EndpointPath(operation.GetContext),
			bytes.NewBufferString(`{"context_id":"unknown"}`))

		srv.handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), "ContextNotFound")
	})
	t.Run("collab node is not served by default", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, collab.IdentityPath, nil)

		srv.handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusNotFound, rr.Code)
	})
	t.Run("cors preflight", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, operation.EndpointPath(operation.GetContext), nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		srv.handler.ServeHTTP(rr, req)

		require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestStartCmdWithCollabNode(t *testing.T) {
	srv := &mockServer{}
	startCmd := GetStartCmd(srv)

	startCmd.SetArgs([]string{"--" + hostURLFlagName, "localhost:8077", "--" + databaseTypeFlagName, "mem",
		"--" + collabNodeFlagName})

	require.NoError(t, startCmd.Execute())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, collab.IdentityPath, nil)

	srv.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "public_key")
}

func TestStartCmdValidArgsEnvVar(t *testing.T) {
	t.Setenv(hostURLEnvKey, "localhost:8077")
	t.Setenv(databaseTypeEnvKey, "mem")
	t.Setenv(collabNodeEnvKey, "true")

	srv := &mockServer{}
	startCmd := GetStartCmd(srv)
	startCmd.SetArgs([]string{})

	require.NoError(t, startCmd.Execute())
	require.NotNil(t, srv.handler)

	t.Run("invalid bool", func(t *testing.T) {
		t.Setenv(collabNodeEnvKey, "perhaps")

		startCmd := GetStartCmd(&mockServer{})
		startCmd.SetArgs([]string{})

		err := startCmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), collabNodeEnvKey)
	})
}

func TestStartCmdLogLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected log.Level
	}{
		{name: `not specified, default to "info"`, expected: log.INFO},
		{name: "critical", level: logLevelCritical, expected: log.CRITICAL},
		{name: "error", level: logLevelError, expected: log.ERROR},
		{name: "warning", level: logLevelWarn, expected: log.WARNING},
		{name: "info", level: logLevelInfo, expected: log.INFO},
		{name: "debug", level: logLevelDebug, expected: log.DEBUG},
		{name: "invalid, default to info", level: "mango", expected: log.INFO},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			startCmd := GetStartCmd(&mockServer{})

			args := []string{"--" + hostURLFlagName, "localhost:8077", "--" + databaseTypeFlagName, "mem"}
			if tc.level != "" {
				args = append(args, "--"+logLevelFlagName, tc.level)
			}

			startCmd.SetArgs(args)

			require.NoError(t, startCmd.Execute())
			require.Equal(t, tc.expected, log.GetLevel(""))
		})
	}
}

func TestListenAndServe(t *testing.T) {
	h := HTTPServer{}
	err := h.ListenAndServe("localhost:0", "test.cert", "test.key", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "open test.cert: no such file or directory")
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName, flagShorthand, flagUsage string) {
	t.Helper()

	flag := cmd.Flag(flagName)

	require.NotNil(t, flag)
	require.Equal(t, flagName, flag.Name)
	require.Equal(t, flagShorthand, flag.Shorthand)
	require.Equal(t, flagUsage, flag.Usage)
	require.Equal(t, "", flag.Value.String())

	flagAnnotations := flag.Annotations
	require.Nil(t, flagAnnotations)
}
