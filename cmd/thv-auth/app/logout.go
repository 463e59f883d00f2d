// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Long:  "Remove the stored tokens and any pending login from the session store.",
		Args:  cobra.NoArgs,
		RunE:  logoutCmdFunc,
	}
}

func logoutCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.manager.Logout(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}
