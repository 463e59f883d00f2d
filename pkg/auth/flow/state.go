// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

// State is the position of a Manager in the authorization-code flow.
//
// Transitions:
//
//	Idle             -> AwaitingCallback  (Login)
//	AwaitingCallback -> Exchanging        (callback with a matching CSRF marker)
//	Exchanging       -> Authenticated     (code exchange succeeded)
//	any              -> Failed            (login or callback failed)
//	any              -> Authenticated     (refresh succeeded)
//	any              -> Idle              (Logout, Reset)
type State int

const (
	// StateIdle means no login is in progress and no tokens are held.
	StateIdle State = iota
	// StateAwaitingCallback means the user was sent to the identity provider
	// and a CSRF marker is pending.
	StateAwaitingCallback
	// StateExchanging means the authorization code is being exchanged.
	StateExchanging
	// StateAuthenticated means tokens are held.
	StateAuthenticated
	// StateFailed means the last login or callback attempt failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
