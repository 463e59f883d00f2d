// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	neturl "net/url"
	"os"
	"path/filepath"
)

// Error message templates for consistent error formatting
const (
	errFileNotFound     = "file not found or not accessible: %w"
	errFileRead         = "failed to read file: %w"
	errInvalidURL       = "invalid URL format: %w"
	errInvalidURLScheme = "URL must start with %s://"
)

// validateURLScheme validates that a URL has the correct scheme (http or https).
// If allowInsecure is false, only https is allowed.
// If allowInsecure is true, both http and https are allowed.
func validateURLScheme(rawURL string, allowInsecure bool) (*neturl.URL, error) {
	parsedURL, err := neturl.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf(errInvalidURL, err)
	}

	if allowInsecure {
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return nil, errors.New("URL must start with http:// or https://")
		}
	} else if parsedURL.Scheme != "https" {
		return nil, fmt.Errorf(errInvalidURLScheme, "https")
	}

	if parsedURL.Host == "" {
		return nil, errors.New("URL must include a host")
	}
	return parsedURL, nil
}

// validateCACertificate checks that path holds at least one PEM encoded
// certificate and returns the absolute, cleaned path.
func validateCACertificate(path string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf(errFileNotFound, err)
	}

	// #nosec G304: path is provided by the user and validated above
	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf(errFileRead, err)
	}

	found := false
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return "", fmt.Errorf("invalid CA certificate: %w", err)
		}
		found = true
	}
	if !found {
		return "", errors.New("invalid CA certificate: no PEM encoded certificate found")
	}
	return absPath, nil
}
