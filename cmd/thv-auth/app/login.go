// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/thv-auth/pkg/auth/callback"
	"github.com/stacklok/thv-auth/pkg/logger"
	"github.com/stacklok/thv-auth/pkg/networking"
	"github.com/stacklok/thv-auth/pkg/window"
)

const defaultLoginTimeout = 5 * time.Minute

type loginOptions struct {
	skipBrowser bool
	port        int
	timeout     time.Duration
}

func newLoginCmd() *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the backend's identity provider",
		Long: `Start the OAuth2 Authorization Code flow.

A loopback server is started on 127.0.0.1 to receive the redirect from the identity
provider, and the authorization URL is opened in the default browser. The session is
stored once the backend has exchanged the authorization code for tokens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return loginCmdFunc(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipBrowser, "skip-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port for the OAuth callback server (defaults to callback_port from the config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultLoginTimeout, "Maximum time to wait for the OAuth callback")

	return cmd
}

func loginCmdFunc(cmd *cobra.Command, opts *loginOptions) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	port := cfg.CallbackPort
	if cmd.Flags().Changed("port") {
		port = opts.port
	}
	if port == 0 {
		if port, err = networking.FindOrUsePort(0); err != nil {
			return err
		}
	}

	var windowOpts []window.Option
	if opts.skipBrowser {
		windowOpts = append(windowOpts, window.WithOpener(printURL(cmd.OutOrStdout())))
	}

	s, err := newAuthSession(ctx, cfg, port, windowOpts...)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := callback.NewServer(port, s.window, s.manager)
	if err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to stop callback server: %v", err)
		}
	}()

	if err := s.manager.Login(ctx); err != nil {
		return fmt.Errorf("failed to start login: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := srv.Wait(waitCtx); err != nil {
		return err
	}

	expiry := s.manager.TokenState().Expiry()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in. Access token expires at %s\n", expiry.Format(time.RFC3339))
	return nil
}

// printURL returns an opener that asks the user to open the URL themselves.
func printURL(out io.Writer) window.Opener {
	return func(target string) error {
		_, err := fmt.Fprintf(out, "Open the following URL in your browser to sign in:\n\n  %s\n\n", target)
		return err
	}
}
