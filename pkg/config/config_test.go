/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/merosign/merosign/pkg/join"
	"github.com/merosign/merosign/pkg/storage"
)

const sampleConfig = `
ledger_url: https://ledger.example.com
node_url: http://node.example.com:2428
log_level: debug
poll_interval: 5s
storage:
  type: mongodb
  url: mongodb://localhost:27017
join:
  sync:
    max_attempts: 10
    fast_attempts: 2
    fast_interval: 100ms
    slow_interval: 1s
  registration:
    max_attempts: 2
`

func TestParse(t *testing.T) {
	t.Run("full file", func(t *testing.T) {
		c, err := Parse([]byte(sampleConfig))
		require.NoError(t, err)

		require.Equal(t, "https://ledger.example.com", c.LedgerURL)
		require.Equal(t, "http://node.example.com:2428", c.NodeURL)
		require.Equal(t, "debug", c.LogLevel)
		require.Equal(t, 5*time.Second, c.PollInterval)
		require.Equal(t, Storage{Type: "mongodb", URL: "mongodb://localhost:27017", Prefix: DefaultDBPrefix}, c.Storage)
		require.Equal(t, SyncSchedule{MaxAttempts: 10, FastAttempts: 2, Fast: 100 * time.Millisecond, Slow: time.Second},
			c.Join.Sync)
		require.Equal(t, RetryPolicy{MaxAttempts: 2, Interval: join.DefaultRegistrationInterval}, c.Join.Registration)
		require.Equal(t, RetryPolicy{MaxAttempts: join.DefaultNameMaxAttempts, Interval: join.DefaultNameInterval},
			c.Join.Name)
		require.Len(t, c.JoinOptions(), 3)
	})
	t.Run("empty file gives defaults", func(t *testing.T) {
		c, err := Parse(nil)
		require.NoError(t, err)
		require.Equal(t, Default(), c)
		require.Equal(t, DefaultLedgerURL, c.LedgerURL)
		require.Equal(t, Storage{Type: storage.DatabaseTypeMongoDB, URL: DefaultDBURL, Prefix: DefaultDBPrefix},
			c.Storage)
		require.Equal(t, join.DefaultSyncMaxAttempts, c.Join.Sync.MaxAttempts)
	})
	t.Run("unknown key", func(t *testing.T) {
		_, err := Parse([]byte("ledger: http://localhost"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to parse config")
	})
	t.Run("bad duration", func(t *testing.T) {
		_, err := Parse([]byte("poll_interval: soon"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  string
	}{
		{name: "ledger scheme", yaml: "ledger_url: ftp://ledger", err: `ledger_url: unsupported scheme "ftp"`},
		{name: "node url", yaml: "node_url: \"http://[::1\"", err: "node_url:"},
		{name: "storage type", yaml: "storage:\n  type: couchdb", err: "storage.type"},
		{
			name: "fast exceeds max",
			yaml: "join:\n  sync:\n    max_attempts: 2\n    fast_attempts: 3",
			err:  "join.sync.fast_attempts (3) exceeds join.sync.max_attempts (2)",
		},
		{
			name: "negative attempts",
			yaml: "join:\n  name:\n    max_attempts: -1",
			err:  "join.name.max_attempts must not be negative",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.err)
		})
	}

	t.Run("invalid storage type wraps sentinel", func(t *testing.T) {
		_, err := Parse([]byte("storage:\n  type: couchdb"))
		require.True(t, errors.Is(err, storage.ErrInvalidDatabaseType))
	})
}

func TestLoad(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "merosign.yaml")
		require.NoError(t, ioutil.WriteFile(path, []byte(sampleConfig), 0o600))

		c, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, "debug", c.LogLevel)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to read config file")
	})
}
