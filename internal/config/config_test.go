// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"TCP_HANDSHAKE_PORT", "UDP_GCS_RX", "UDP_DRONE_RX",
		"GCS_PLAINTEXT_TX", "GCS_PLAINTEXT_RX", "DRONE_PLAINTEXT_TX", "DRONE_PLAINTEXT_RX",
		"GCS_HOST", "DRONE_HOST", "WIRE_VERSION", "REPLAY_WINDOW", "DRONE_PSK", "DEFAULT_TIMEOUT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRONE_PSK", "aa00000000000000000000000000000000000000000000000000000000000000"[:64])

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, defaultTCPHandshakePort, cfg.TCPHandshakePort)
	require.Equal(t, defaultUDPGCSRx, cfg.UDPGCSRx)
	require.Equal(t, defaultUDPDroneRx, cfg.UDPDroneRx)
	require.EqualValues(t, 1, cfg.WireVersion)
	require.EqualValues(t, defaultReplayWindow, cfg.ReplayWindow)
}

func TestLoadRejectsShortPSK(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRONE_PSK", "aa")

	_, err := Load()
	require.ErrorIs(t, err, ErrConfig)
}

func TestLoadRejectsNonFrozenWireVersion(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRONE_PSK", "aa00000000000000000000000000000000000000000000000000000000000000"[:64])
	t.Setenv("WIRE_VERSION", "2")

	_, err := Load()
	require.ErrorIs(t, err, ErrConfig)
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRONE_PSK", "aa00000000000000000000000000000000000000000000000000000000000000"[:64])
	t.Setenv("UDP_GCS_RX", "70000")

	_, err := Load()
	require.ErrorIs(t, err, ErrConfig)
}

func TestLoadRejectsNarrowReplayWindow(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRONE_PSK", "aa00000000000000000000000000000000000000000000000000000000000000"[:64])
	t.Setenv("REPLAY_WINDOW", "10")

	_, err := Load()
	require.ErrorIs(t, err, ErrConfig)
}
