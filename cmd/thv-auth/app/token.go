// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/thv-auth/pkg/auth/flow"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Long: `Print an access token that stays valid for at least the safety margin.
An expiring token is refreshed first. If the refresh fails the session is cleared.`,
		Args: cobra.NoArgs,
		RunE: tokenCmdFunc,
	}
}

func tokenCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	accessToken, ok := s.manager.EnsureValidToken(ctx)
	if !ok {
		return fmt.Errorf("%w: run 'thv-auth login' to sign in", flow.ErrNoValidToken)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), accessToken)
	return nil
}
