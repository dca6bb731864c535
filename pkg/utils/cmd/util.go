/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// GetUserSetVar returns the value of a command line flag, falling back to an environment variable.
// A missing value is an error unless isOptional is set, in which case "" is returned.
func GetUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		if value == "" {
			return "", fmt.Errorf("%s value is empty", flagName)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		if isSet && value == "" {
			return "", fmt.Errorf("%s value is empty", envKey)
		}

		return value, nil
	}

	return "", fmt.Errorf("neither %s (command line flag) nor %s (environment variable) have been set",
		flagName, envKey)
}

// GetUserSetBool is GetUserSetVar for boolean flags. An unset optional value is false.
func GetUserSetBool(cmd *cobra.Command, flagName, envKey string, isOptional bool) (bool, error) {
	if cmd.Flags().Changed(flagName) {
		return cmd.Flags().GetBool(flagName)
	}

	value, err := GetUserSetVar(cmd, flagName, envKey, isOptional)
	if err != nil {
		return false, err
	}

	if value == "" {
		return false, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %w", envKey, err)
	}

	return b, nil
}
