/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the client configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/merosign/merosign/pkg/join"
	"github.com/merosign/merosign/pkg/storage"
)

// Defaults applied to fields left out of the file.
const (
	DefaultLedgerURL    = "http://localhost:8077"
	DefaultNodeURL      = "http://localhost:2428"
	DefaultLogLevel     = "info"
	DefaultPollInterval = 2 * time.Second
	DefaultDBPrefix     = "merosign"
	DefaultDBURL        = "mongodb://localhost:27017"
)

// Config is the client configuration.
type Config struct {
	LedgerURL    string        `yaml:"ledger_url"`
	NodeURL      string        `yaml:"node_url"`
	LogLevel     string        `yaml:"log_level"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Storage      Storage       `yaml:"storage"`
	Join         Join          `yaml:"join"`
}

// Storage selects where the session state lives.
type Storage struct {
	Type   string `yaml:"type"`
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// Join tunes the three retry loops of the join flow.
type Join struct {
	Sync         SyncSchedule `yaml:"sync"`
	Registration RetryPolicy  `yaml:"registration"`
	Name         RetryPolicy  `yaml:"name"`
}

// SyncSchedule polls fast for FastAttempts tries and slow afterwards, up to MaxAttempts.
type SyncSchedule struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	FastAttempts int           `yaml:"fast_attempts"`
	Fast         time.Duration `yaml:"fast_interval"`
	Slow         time.Duration `yaml:"slow_interval"`
}

// RetryPolicy is a fixed-delay retry bound.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()

	return c
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path) //nolint: gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// JoinOptions turns the join section into options for join.New.
func (c *Config) JoinOptions() []join.Option {
	return []join.Option{
		join.WithSyncSchedule(c.Join.Sync.MaxAttempts, c.Join.Sync.FastAttempts, c.Join.Sync.Fast, c.Join.Sync.Slow),
		join.WithRegistrationRetry(c.Join.Registration.MaxAttempts, c.Join.Registration.Interval),
		join.WithNameRetry(c.Join.Name.MaxAttempts, c.Join.Name.Interval),
	}
}

func (c *Config) applyDefaults() {
	setString(&c.LedgerURL, DefaultLedgerURL)
	setString(&c.NodeURL, DefaultNodeURL)
	setString(&c.LogLevel, DefaultLogLevel)
	setString(&c.Storage.Type, storage.DatabaseTypeMongoDB)
	setString(&c.Storage.URL, DefaultDBURL)
	setString(&c.Storage.Prefix, DefaultDBPrefix)

	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}

	s := &c.Join.Sync
	setInt(&s.MaxAttempts, join.DefaultSyncMaxAttempts)
	setInt(&s.FastAttempts, join.DefaultSyncFastAttempts)
	setDuration(&s.Fast, join.DefaultSyncFastInterval)
	setDuration(&s.Slow, join.DefaultSyncSlowInterval)

	setInt(&c.Join.Registration.MaxAttempts, join.DefaultRegistrationMaxAttempts)
	setDuration(&c.Join.Registration.Interval, join.DefaultRegistrationInterval)

	setInt(&c.Join.Name.MaxAttempts, join.DefaultNameMaxAttempts)
	setDuration(&c.Join.Name.Interval, join.DefaultNameInterval)
}

func (c *Config) validate() error {
	if err := validateURL("ledger_url", c.LedgerURL); err != nil {
		return err
	}

	if err := validateURL("node_url", c.NodeURL); err != nil {
		return err
	}

	switch strings.ToLower(c.Storage.Type) {
	case storage.DatabaseTypeMem, storage.DatabaseTypeMongoDB:
	default:
		return fmt.Errorf("storage.type: %w: %q", storage.ErrInvalidDatabaseType, c.Storage.Type)
	}

	if c.Join.Sync.FastAttempts > c.Join.Sync.MaxAttempts {
		return fmt.Errorf("join.sync.fast_attempts (%d) exceeds join.sync.max_attempts (%d)",
			c.Join.Sync.FastAttempts, c.Join.Sync.MaxAttempts)
	}

	for name, v := range map[string]int{
		"join.sync.max_attempts":         c.Join.Sync.MaxAttempts,
		"join.registration.max_attempts": c.Join.Registration.MaxAttempts,
		"join.name.max_attempts":         c.Join.Name.MaxAttempts,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", field, u.Scheme)
	}

	return nil
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}
