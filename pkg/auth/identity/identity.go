// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package identity reads the user identity out of an access token.
//
// Tokens are decoded without signature verification. The backend verifies
// every token it receives; the client only uses the claims for display and
// for local capability checks.
package identity

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

// ErrNotJWT is returned when the access token is not a JWT.
var ErrNotJWT = errors.New("access token is not a JWT")

// Identity is the user described by an access token.
type Identity struct {
	Subject  string
	Username string
	Email    string
	// Permissions are the realm roles and the client roles of the token,
	// de-duplicated and sorted.
	Permissions []string

	claims []byte
}

// Parse decodes accessToken. Client roles are read for clientID.
func Parse(accessToken, clientID string) (*Identity, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(accessToken, jwt.MapClaims{}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJWT, err)
	}

	parts := strings.Split(accessToken, ".")
	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJWT, err)
	}
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: invalid claims", ErrNotJWT)
	}

	claims := gjson.ParseBytes(payload)
	id := &Identity{
		Subject:  claims.Get("sub").String(),
		Username: claims.Get("preferred_username").String(),
		Email:    claims.Get("email").String(),
		claims:   payload,
	}

	var permissions []string
	for _, role := range claims.Get("realm_access.roles").Array() {
		permissions = append(permissions, role.String())
	}
	if client, ok := claims.Get("resource_access").Map()[clientID]; ok {
		for _, role := range client.Get("roles").Array() {
			permissions = append(permissions, role.String())
		}
	}
	slices.Sort(permissions)
	id.Permissions = slices.Compact(permissions)

	return id, nil
}

// Claim returns the string form of the claim at path, a gjson path such as
// "location" or "address.country".
func (i *Identity) Claim(path string) (string, bool) {
	result := gjson.GetBytes(i.claims, path)
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// ClaimValues returns the claim at path as a list. A scalar claim yields a
// single value.
func (i *Identity) ClaimValues(path string) []string {
	result := gjson.GetBytes(i.claims, path)
	if !result.Exists() {
		return nil
	}
	if !result.IsArray() {
		return []string{result.String()}
	}
	values := make([]string, 0, len(result.Array()))
	for _, v := range result.Array() {
		values = append(values, v.String())
	}
	return values
}

// HasPermissions returns the required permissions the identity lacks.
func (i *Identity) HasPermissions(required ...string) []string {
	var missing []string
	for _, perm := range required {
		if _, found := slices.BinarySearch(i.Permissions, perm); !found {
			missing = append(missing, perm)
		}
	}
	return missing
}
