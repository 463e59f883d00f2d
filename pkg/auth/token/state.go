// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package token holds the in-memory token triple of a session and its
// serialized form.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// AccessMargin is the window before expiry in which an access token is no
	// longer handed out. It absorbs clock skew and in-flight request latency.
	AccessMargin = 30 * time.Second

	// RefreshLead is how long before expiry the background refresher renews
	// the access token.
	RefreshLead = 60 * time.Second
)

// ErrInvalidState is returned when a serialized state violates the token invariants.
var ErrInvalidState = errors.New("invalid token state")

// State is the token triple of a session. Absent members are empty strings or,
// for ExpiresAt, zero.
type State struct {
	// AccessToken is the opaque bearer credential.
	AccessToken string
	// RefreshToken is used to obtain new access tokens.
	RefreshToken string
	// ExpiresAt is the absolute expiry of AccessToken in epoch milliseconds.
	ExpiresAt int64
}

// NewState builds the state committed after a successful exchange or refresh.
func NewState(accessToken, refreshToken string, expiresIn time.Duration, now time.Time) State {
	return State{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(expiresIn).UnixMilli(),
	}
}

// IsZero reports whether the state holds nothing at all.
func (s State) IsZero() bool {
	return s == State{}
}

// HasRefreshToken reports whether a refresh token is held.
func (s State) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

// Expiry returns ExpiresAt as a time.Time, or the zero time when absent.
func (s State) Expiry() time.Time {
	if s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.ExpiresAt)
}

// ValidAccessToken returns the access token if it can still be used at now.
// A token is unusable when its expiry is absent or now is within AccessMargin
// of the expiry.
func (s State) ValidAccessToken(now time.Time) (string, bool) {
	if s.AccessToken == "" || s.ExpiresAt == 0 {
		return "", false
	}
	if now.UnixMilli() >= s.ExpiresAt-AccessMargin.Milliseconds() {
		return "", false
	}
	return s.AccessToken, true
}

// NeedsRefresh reports whether the background refresher should renew the
// tokens at now.
func (s State) NeedsRefresh(now time.Time) bool {
	if !s.HasRefreshToken() || s.ExpiresAt == 0 {
		return false
	}
	return now.UnixMilli() > s.ExpiresAt-RefreshLead.Milliseconds()
}

// WithRotation returns the state produced by a refresh response. The current
// refresh token is kept when the backend did not issue a new one.
func (s State) WithRotation(accessToken, refreshToken string, expiresIn time.Duration, now time.Time) State {
	if refreshToken == "" {
		refreshToken = s.RefreshToken
	}
	return NewState(accessToken, refreshToken, expiresIn, now)
}

// wireState is the persisted layout. Absent members are encoded as null.
type wireState struct {
	AccessToken  *string `json:"accessToken"`
	RefreshToken *string `json:"refreshToken"`
	ExpiresAt    *int64  `json:"expiresAt"`
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	var w wireState
	if s.AccessToken != "" {
		w.AccessToken = &s.AccessToken
	}
	if s.RefreshToken != "" {
		w.RefreshToken = &s.RefreshToken
	}
	if s.ExpiresAt != 0 {
		w.ExpiresAt = &s.ExpiresAt
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = State{}
	if w.AccessToken != nil {
		s.AccessToken = *w.AccessToken
	}
	if w.RefreshToken != nil {
		s.RefreshToken = *w.RefreshToken
	}
	if w.ExpiresAt != nil {
		s.ExpiresAt = *w.ExpiresAt
	}
	return nil
}

// Encode serializes a state for the session store.
func Encode(s State) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode token state: %w", err)
	}
	return string(data), nil
}

// Decode parses a serialized state and checks its invariants.
func Decode(data string) (State, error) {
	var s State
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return State{}, fmt.Errorf("failed to decode token state: %w", err)
	}
	if s.AccessToken != "" && s.ExpiresAt == 0 {
		return State{}, fmt.Errorf("%w: access token without expiry", ErrInvalidState)
	}
	if s.ExpiresAt < 0 {
		return State{}, fmt.Errorf("%w: negative expiry", ErrInvalidState)
	}
	return s, nil
}
