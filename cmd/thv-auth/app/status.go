// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/thv-auth/pkg/auth/identity"
	"github.com/stacklok/thv-auth/pkg/logger"
	"github.com/stacklok/thv-auth/pkg/policy"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

type sessionStatus struct {
	State         string   `json:"state"`
	Authenticated bool     `json:"authenticated"`
	ExpiresAt     string   `json:"expires_at,omitempty"`
	Refreshable   bool     `json:"refreshable"`
	Subject       string   `json:"subject,omitempty"`
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email,omitempty"`
	Permissions   []string `json:"permissions,omitempty"`
	External      *bool    `json:"external,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the stored session",
		Long: `Display the login state, the access token's expiry and, for JWT access tokens,
the signed-in user and their permissions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return statusCmdFunc(cmd, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", FormatText, "Output format (json or text)")
	return cmd
}

func statusCmdFunc(cmd *cobra.Command, format string) error {
	ctx := cmd.Context()

	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid format %q: must be %s or %s", format, FormatText, FormatJSON)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	state := s.manager.TokenState()
	status := sessionStatus{
		State:       s.manager.FlowState().String(),
		Refreshable: state.HasRefreshToken(),
	}
	if !state.Expiry().IsZero() {
		status.ExpiresAt = state.Expiry().Format(time.RFC3339)
	}

	if accessToken, ok := s.manager.Token(); ok {
		status.Authenticated = true

		var clientID string
		if authCfg, err := s.client.AuthConfig(ctx); err == nil {
			clientID = authCfg.ClientID
		} else {
			logger.Debugf("Could not fetch auth config, client roles are omitted: %v", err)
		}
		describeIdentity(&status, accessToken, clientID)
	}

	if format == FormatJSON {
		return printStatusJSON(cmd.OutOrStdout(), status)
	}
	printStatusText(cmd.OutOrStdout(), status)
	return nil
}

// describeIdentity fills the user fields of status from a JWT access token.
func describeIdentity(status *sessionStatus, accessToken, clientID string) {
	id, err := identity.Parse(accessToken, clientID)
	if errors.Is(err, identity.ErrNotJWT) {
		logger.Debug("Access token is opaque, no identity to show")
		return
	}
	if err != nil {
		logger.Warnf("Failed to parse access token: %v", err)
		return
	}

	external := policy.Evaluate(policy.ForIdentity(id), policy.LocationExternal)
	status.Subject = id.Subject
	status.Username = id.Username
	status.Email = id.Email
	status.Permissions = id.Permissions
	status.External = &external
}

func printStatusJSON(out io.Writer, status sessionStatus) error {
	jsonData, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = fmt.Fprintln(out, string(jsonData))
	return nil
}

func printStatusText(out io.Writer, status sessionStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	_, _ = fmt.Fprintf(w, "State:\t%s\n", status.State)
	_, _ = fmt.Fprintf(w, "Authenticated:\t%t\n", status.Authenticated)
	if status.ExpiresAt != "" {
		_, _ = fmt.Fprintf(w, "Expires at:\t%s\n", status.ExpiresAt)
	}
	_, _ = fmt.Fprintf(w, "Refreshable:\t%t\n", status.Refreshable)
	if status.Username != "" {
		_, _ = fmt.Fprintf(w, "Username:\t%s\n", status.Username)
	}
	if status.Email != "" {
		_, _ = fmt.Fprintf(w, "Email:\t%s\n", status.Email)
	}
	if len(status.Permissions) > 0 {
		_, _ = fmt.Fprintf(w, "Permissions:\t%s\n", strings.Join(status.Permissions, ", "))
	}
	if status.External != nil {
		_, _ = fmt.Fprintf(w, "External location:\t%t\n", *status.External)
	}

	_ = w.Flush()
}
