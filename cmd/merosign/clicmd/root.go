/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package clicmd holds the commands of the merosign client.
package clicmd

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	spi "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/spf13/cobra"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/merosign/merosign/pkg/client"
	collabclient "github.com/merosign/merosign/pkg/client/collab"
	"github.com/merosign/merosign/pkg/collab"
	"github.com/merosign/merosign/pkg/config"
	"github.com/merosign/merosign/pkg/session"
	"github.com/merosign/merosign/pkg/storage"
	cmdutils "github.com/merosign/merosign/pkg/utils/cmd"
)

var logger = log.New("merosign-cli")

const (
	configFlagName  = "config"
	configEnvKey    = "MEROSIGN_CONFIG"
	configFlagUsage = "Path to the YAML configuration file." +
		" Alternatively, this can be set with the following environment variable: " + configEnvKey

	ledgerURLFlagName  = "ledger-url"
	ledgerURLEnvKey    = "MEROSIGN_LEDGER_URL"
	ledgerURLFlagUsage = "URL of the document ledger. Overrides ledger_url from the configuration file." +
		" Alternatively, this can be set with the following environment variable: " + ledgerURLEnvKey

	nodeURLFlagName  = "node-url"
	nodeURLEnvKey    = "MEROSIGN_NODE_URL"
	nodeURLFlagUsage = "URL of the collaboration node. Overrides node_url from the configuration file." +
		" Alternatively, this can be set with the following environment variable: " + nodeURLEnvKey

	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "MEROSIGN_LOG_LEVEL"
	logLevelFlagUsage = "Logging level. Supported options: critical, error, warning, info, debug." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey
)

var (
	errNoSigningKey = errors.New("no signing key: run keygen first")
	errNotAdmin     = errors.New("the saved signing key is not the identity of this session")
)

// Option configures the root command.
type Option func(*settings)

type settings struct {
	provider spi.Provider
	collab   collab.Client
}

// WithStorageProvider replaces the provider built from the configuration.
func WithStorageProvider(p spi.Provider) Option {
	return func(s *settings) {
		s.provider = p
	}
}

// WithCollabClient replaces the HTTP collaboration client built from the configuration.
func WithCollabClient(c collab.Client) Option {
	return func(s *settings) {
		s.collab = c
	}
}

// env is what every command works with, built from flags and the configuration file.
type env struct {
	cfg    *config.Config
	state  *storage.LocalState
	ledger *client.Client
	collab collab.Client
}

// GetRootCmd returns the merosign command tree.
func GetRootCmd(opts ...Option) *cobra.Command {
	s := &settings{}

	for _, opt := range opts {
		opt(s)
	}

	rootCmd := &cobra.Command{
		Use:           "merosign",
		Short:         "Collaborative document signing",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.PersistentFlags().String(configFlagName, "", configFlagUsage)
	rootCmd.PersistentFlags().String(ledgerURLFlagName, "", ledgerURLFlagUsage)
	rootCmd.PersistentFlags().String(nodeURLFlagName, "", nodeURLFlagUsage)
	rootCmd.PersistentFlags().String(logLevelFlagName, "", logLevelFlagUsage)

	rootCmd.AddCommand(
		keygenCmd(s),
		createCmd(s),
		inviteCmd(s),
		addParticipantCmd(s),
		uploadCmd(s),
		documentsCmd(s),
		statusCmd(s),
		resetCmd(s),
		joinCmd(s),
		contextsCmd(s),
		leaveCmd(s),
		consentCmd(s),
		canSignCmd(s),
		signCmd(s),
		finalizeCmd(s),
		progressCmd(s),
		auditCmd(s),
		verifyCmd(s),
		watchCmd(s),
	)

	return rootCmd
}

func (s *settings) open(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	setLogLevel(cfg.LogLevel)

	provider := s.provider
	if provider == nil {
		provider, err = storage.NewProvider(cfg.Storage.Type, cfg.Storage.URL, cfg.Storage.Prefix)
		if err != nil {
			return nil, err
		}
	}

	state, err := storage.OpenLocalState(provider)
	if err != nil {
		return nil, err
	}

	collabClient := s.collab
	if collabClient == nil {
		collabClient = collabclient.New(cfg.NodeURL, collabclient.WithPollInterval(cfg.PollInterval))
	}

	return &env{
		cfg:    cfg,
		state:  state,
		ledger: client.New(cfg.LedgerURL),
		collab: collabClient,
	}, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmdutils.GetUserSetVar(cmd, configFlagName, configEnvKey, true)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()

	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	for _, o := range []struct {
		flag, env string
		dst       *string
	}{
		{ledgerURLFlagName, ledgerURLEnvKey, &cfg.LedgerURL},
		{nodeURLFlagName, nodeURLEnvKey, &cfg.NodeURL},
		{logLevelFlagName, logLevelEnvKey, &cfg.LogLevel},
	} {
		v, err := cmdutils.GetUserSetVar(cmd, o.flag, o.env, true)
		if err != nil {
			return nil, err
		}

		if v != "" {
			*o.dst = v
		}
	}

	return cfg, nil
}

func setLogLevel(logLevel string) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		logger.Warnf("%s is not a valid logging level, defaulting to info", logLevel)

		level = log.INFO
	}

	log.SetLevel("", level)
}

// session returns the joined session or the precondition that is missing.
func (e *env) session() (*session.Session, error) {
	return session.Load(e.state)
}

func (e *env) signingKey() (ed25519.PrivateKey, error) {
	encoded, err := e.state.SigningKey()
	if err != nil {
		return nil, err
	}

	if encoded == "" {
		return nil, errNoSigningKey
	}

	key := base58.Decode(encoded)
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("saved signing key has %d bytes, expected %d", len(key), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(key), nil
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
