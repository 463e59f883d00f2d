// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	envmocks "github.com/stacklok/toolhive-core/env/mocks"

	"github.com/stacklok/thv-auth/pkg/session"
)

func writeTestCA(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "thv-auth test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "backend without scheme",
			mutate:  func(c *Config) { c.BackendURL = "localhost:8000" },
			wantErr: "backend_url",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.CallbackPort = 70000 },
			wantErr: "callback_port",
		},
		{
			name:    "bad refresh interval",
			mutate:  func(c *Config) { c.RefreshInterval = "soon" },
			wantErr: "refresh_interval",
		},
		{
			name:    "negative refresh interval",
			mutate:  func(c *Config) { c.RefreshInterval = "-5s" },
			wantErr: "refresh_interval",
		},
		{
			name:    "too many config retries",
			mutate:  func(c *Config) { c.ConfigRetries = 11 },
			wantErr: "config_retries",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Session.Provider = "etcd" },
			wantErr: "invalid session provider",
		},
		{
			name:    "redis without address",
			mutate:  func(c *Config) { c.Session.Provider = "redis" },
			wantErr: "session.redis.addr",
		},
		{
			name:    "bad scope",
			mutate:  func(c *Config) { c.Session.Scope = "a/b" },
			wantErr: "invalid session scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := createNewConfigWithDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SessionConfig(t *testing.T) {
	t.Parallel()

	cfg := createNewConfigWithDefaults()
	cfg.Session = Session{
		Provider: "redis",
		Scope:    "work",
		Redis: Redis{
			Addr:      "localhost:6379",
			Password:  "secret",
			DB:        2,
			KeyPrefix: "app:",
			TTL:       "12h",
		},
	}

	got, err := cfg.SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, session.Config{
		Provider: session.RedisType,
		Scope:    "work",
		Redis: session.RedisConfig{
			Addr:      "localhost:6379",
			Password:  "secret",
			DB:        2,
			KeyPrefix: "app:",
			TTL:       12 * time.Hour,
		},
	}, got)

	empty := Config{}
	got, err = empty.SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, session.FileType, got.Provider)
	assert.Equal(t, session.DefaultScope, got.Scope)
}

func TestConfig_GetRefreshInterval(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	d, err := cfg.GetRefreshInterval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	cfg.RefreshInterval = "1m"
	d, err = cfg.GetRefreshInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	reader := envmocks.NewMockReader(ctrl)
	reader.EXPECT().Getenv(BackendURLEnvVar).Return("https://api.example.com")
	reader.EXPECT().Getenv(SessionProviderEnvVar).Return("")
	reader.EXPECT().Getenv(RedisPasswordEnvVar).Return("from-env")

	cfg := createNewConfigWithDefaults()
	cfg.ApplyEnv(reader)

	assert.Equal(t, "https://api.example.com", cfg.BackendURL)
	assert.Equal(t, "file", cfg.Session.Provider)
	assert.Equal(t, "from-env", cfg.Session.Redis.Password)
}

func TestConfig_Set(t *testing.T) {
	t.Parallel()

	caPath := writeTestCA(t)
	notACert := filepath.Join(t.TempDir(), "junk.pem")
	require.NoError(t, os.WriteFile(notACert, []byte("hello"), 0o600))

	tests := []struct {
		key     string
		value   string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{key: "backend_url", value: "https://api.example.com", check: func(t *testing.T, c *Config) {
			t.Helper()
			assert.Equal(t, "https://api.example.com", c.BackendURL)
		}},
		{key: "backend_url", value: "ftp://x", wantErr: true},
		{key: "callback_port", value: "9000", check: func(t *testing.T, c *Config) {
			t.Helper()
			assert.Equal(t, 9000, c.CallbackPort)
		}},
		{key: "callback_port", value: "http", wantErr: true},
		{key: "ca_certificate_path", value: caPath, check: func(t *testing.T, c *Config) {
			t.Helper()
			assert.Equal(t, caPath, c.CACertificatePath)
		}},
		{key: "ca_certificate_path", value: notACert, wantErr: true},
		{key: "ca_certificate_path", value: filepath.Join(t.TempDir(), "missing.pem"), wantErr: true},
		{key: "config_retries", value: "2", check: func(t *testing.T, c *Config) {
			t.Helper()
			assert.Equal(t, 2, c.ConfigRetries)
		}},
		{key: "config_retries", value: "-1", wantErr: true},
		{key: "refresh_interval", value: "45s", check: func(t *testing.T, c *Config) {
			t.Helper()
			assert.Equal(t, "45s", c.RefreshInterval)
		}},
		{key: "refresh_interval", value: "0s", wantErr: true},
		{key: "session.provider", value: "keyring", check: func(t *testing.T, c *Config) {
			t.Helper()
			assert.Equal(t, "keyring", c.Session.Provider)
		}},
		{key: "session.provider", value: "etcd", wantErr: true},
		{key: "session.scope", value: "../x", wantErr: true},
		{key: "session.redis.db", value: "3", check: func(t *testing.T, c *Config) {
			t.Helper()
			assert.Equal(t, 3, c.Session.Redis.DB)
		}},
		{key: "session.redis.ttl", value: "forever", wantErr: true},
		{key: "nope", value: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Parallel()

			cfg := createNewConfigWithDefaults()
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, &cfg)
		})
	}
}

func TestKeys(t *testing.T) {
	t.Parallel()

	keys := Keys()
	assert.Contains(t, keys, "backend_url")
	assert.Contains(t, keys, "session.redis.addr")
	assert.IsIncreasing(t, keys)
}
