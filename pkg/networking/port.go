// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking contains the HTTP and port helpers used to talk to the
// token backend and to run the loopback callback listener.
package networking

import (
	"fmt"
	"math/rand/v2"
	"net"
)

const (
	// MinPort is the minimum port number to use
	MinPort = 10000
	// MaxPort is the maximum port number to use
	MaxPort = 65535
	// MaxAttempts is the maximum number of attempts to find an available port
	MaxAttempts = 10
)

// IsAvailable checks if a TCP port is available on the loopback interface
func IsAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// FindAvailable finds an available port, or returns 0 if none could be found
func FindAvailable() int {
	for i := 0; i < MaxAttempts; i++ {
		// #nosec G404: port selection does not need a CSPRNG
		port := rand.IntN(MaxPort-MinPort) + MinPort
		if IsAvailable(port) {
			return port
		}
	}

	for port := MinPort; port <= MaxPort; port++ {
		if IsAvailable(port) {
			return port
		}
	}

	return 0
}

// FindOrUsePort returns the requested port if it is available. A port of 0, or
// a port that is already taken, results in a freshly selected port.
func FindOrUsePort(port int) (int, error) {
	if port != 0 && IsAvailable(port) {
		return port, nil
	}

	found := FindAvailable()
	if found == 0 {
		return 0, fmt.Errorf("no available port found")
	}
	return found, nil
}
