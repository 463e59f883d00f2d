// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		Long:  "Exchange the stored refresh token for a new access token, regardless of the current token's expiry.",
		Args:  cobra.NoArgs,
		RunE:  refreshCmdFunc,
	}
}

func refreshCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.manager.RefreshAccessToken(ctx); err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	expiry := s.manager.TokenState().Expiry()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Token refreshed. Access token expires at %s\n", expiry.Format(time.RFC3339))
	return nil
}
