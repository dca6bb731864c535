/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	edgelog "github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/collab/memcollab"
	"github.com/merosign/merosign/pkg/ledgerprovider"
	"github.com/merosign/merosign/pkg/restapi"
	"github.com/merosign/merosign/pkg/restapi/operation"
	"github.com/merosign/merosign/pkg/storage"
	cmdutils "github.com/merosign/merosign/pkg/utils/cmd"
)

const (
	hostURLFlagName      = "host-url"
	hostURLEnvKey        = "MEROSIGN_LEDGER_HOST_URL"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "URL to run the ledger instance on. Format: HostName:Port." +
		" Alternatively, this can be set with the following environment variable: " + hostURLEnvKey

	tlsCertFileFlagName  = "tls-cert-file"
	tlsCertFileEnvKey    = "MEROSIGN_LEDGER_TLS_CERT_FILE"
	tlsCertFileFlagUsage = "TLS certificate file." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	tlsKeyFileFlagName  = "tls-key-file"
	tlsKeyFileEnvKey    = "MEROSIGN_LEDGER_TLS_KEY_FILE"
	tlsKeyFileFlagUsage = "TLS key file." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "MEROSIGN_LEDGER_DATABASE_TYPE"
	databaseTypeFlagShorthand = "t"
	databaseTypeFlagUsage     = "The type of database backing the ledger. Supported options: mem, mongodb." +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "MEROSIGN_LEDGER_DATABASE_URL"
	databaseURLFlagShorthand = "l"
	databaseURLFlagUsage     = "The URL of the database. Not needed if using mem." +
		" Alternatively, this can be set with the following environment variable: " + databaseURLEnvKey

	databasePrefixFlagName      = "database-prefix"
	databasePrefixEnvKey        = "MEROSIGN_LEDGER_DATABASE_PREFIX"
	databasePrefixFlagShorthand = "p"
	databasePrefixFlagUsage     = "An optional prefix used when creating and retrieving underlying databases." +
		" Alternatively, this can be set with the following environment variable: " + databasePrefixEnvKey

	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "MEROSIGN_LEDGER_LOG_LEVEL"
	logLevelFlagUsage = "Logging level to set. Supported options: critical, error, warning, info, debug." +
		` Defaults to "info" if not set. Setting to "debug" may adversely impact performance.` +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey

	collabNodeFlagName  = "with-collab-node"
	collabNodeEnvKey    = "MEROSIGN_LEDGER_WITH_COLLAB_NODE"
	collabNodeFlagUsage = "Also serve an in-memory collaboration node admin API on the same host." +
		" Intended for local development. Alternatively, this can be set with the following environment" +
		" variable: " + collabNodeEnvKey

	logLevelCritical = "critical"
	logLevelError    = "error"
	logLevelWarn     = "warning"
	logLevelInfo     = "info"
	logLevelDebug    = "debug"
)

var errMissingHostURL = errors.New("host URL not provided")

type ledgerParameters struct {
	srv             server
	hostURL         string
	tlsCertFile     string
	tlsKeyFile      string
	databaseType    string
	databaseURL     string
	databasePrefix  string
	logLevel        string
	serveCollabNode bool
}

type server interface {
	ListenAndServe(host, certFile, keyFile string, router http.Handler) error
}

// HTTPServer represents an actual HTTP server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
// TLS is used when both certFile and keyFile are set.
func (s *HTTPServer) ListenAndServe(host, certFile, keyFile string, router http.Handler) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router)
}

// GetStartCmd returns the Cobra start command.
func GetStartCmd(srv server) *cobra.Command {
	startCmd := createStartCmd(srv)

	createFlags(startCmd)

	return startCmd
}

func createStartCmd(srv server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start ledger",
		Long:  "Start the reference document ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getParameters(cmd)
			if err != nil {
				return err
			}

			parameters.srv = srv

			return startLedger(parameters)
		},
	}
}

func getParameters(cmd *cobra.Command) (*ledgerParameters, error) {
	hostURL, err := cmdutils.GetUserSetVar(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	tlsCertFile, err := cmdutils.GetUserSetVar(cmd, tlsCertFileFlagName, tlsCertFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsKeyFile, err := cmdutils.GetUserSetVar(cmd, tlsKeyFileFlagName, tlsKeyFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	databaseType, err := cmdutils.GetUserSetVar(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	databaseURL, err := cmdutils.GetUserSetVar(cmd, databaseURLFlagName, databaseURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	databasePrefix, err := cmdutils.GetUserSetVar(cmd, databasePrefixFlagName, databasePrefixEnvKey, true)
	if err != nil {
		return nil, err
	}

	logLevel, err := cmdutils.GetUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	serveCollabNode, err := cmdutils.GetUserSetBool(cmd, collabNodeFlagName, collabNodeEnvKey, true)
	if err != nil {
		return nil, err
	}

	return &ledgerParameters{
		hostURL:         hostURL,
		tlsCertFile:     tlsCertFile,
		tlsKeyFile:      tlsKeyFile,
		databaseType:    databaseType,
		databaseURL:     databaseURL,
		databasePrefix:  databasePrefix,
		logLevel:        logLevel,
		serveCollabNode: serveCollabNode,
	}, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().String(tlsCertFileFlagName, "", tlsCertFileFlagUsage)
	startCmd.Flags().String(tlsKeyFileFlagName, "", tlsKeyFileFlagUsage)
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	startCmd.Flags().StringP(databasePrefixFlagName, databasePrefixFlagShorthand, "", databasePrefixFlagUsage)
	startCmd.Flags().String(logLevelFlagName, "", logLevelFlagUsage)
	startCmd.Flags().Bool(collabNodeFlagName, false, collabNodeFlagUsage)
}

func startLedger(parameters *ledgerParameters) error {
	if parameters.hostURL == "" {
		return errMissingHostURL
	}

	setLogLevel(parameters.logLevel)

	router, err := createRouter(parameters)
	if err != nil {
		return err
	}

	log.Infof("Starting merosign ledger on host %s", parameters.hostURL)

	return parameters.srv.ListenAndServe(parameters.hostURL, parameters.tlsCertFile, parameters.tlsKeyFile,
		cors.New(cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "Authorization", operation.CallerHeader},
		}).Handler(router))
}

func createRouter(parameters *ledgerParameters) (*mux.Router, error) {
	storageProvider, err := storage.NewProvider(parameters.databaseType, parameters.databaseURL,
		parameters.databasePrefix)
	if err != nil {
		return nil, err
	}

	ledger, err := ledgerprovider.New(storageProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	controller, err := restapi.New(&operation.Config{Ledger: ledger})
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.UseEncodedPath()

	for _, handler := range controller.GetOperations() {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	if parameters.serveCollabNode {
		log.Warn("serving an in-memory collaboration node; its state is lost on restart")

		for _, handler := range memcollab.New().Handlers() {
			router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
		}
	}

	return router, nil
}

func setLogLevel(logLevel string) {
	if logLevel == "" {
		logLevel = logLevelInfo
	}

	level, err := edgelog.ParseLevel(logLevel)
	if err != nil {
		log.Warnf("%s is not a valid logging level. It must be one of: %s, %s, %s, %s, %s."+
			" Defaulting to info.", logLevel, logLevelCritical, logLevelError, logLevelWarn, logLevelInfo,
			logLevelDebug)

		level = edgelog.INFO
		logLevel = logLevelInfo
	}

	edgelog.SetLevel("", level)

	log.Infof("Log level set to %s", logLevel)
}
