// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads and validates the tunnel's environment-variable
// configuration surface (spec.md §6).
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/luxfi/pqtunnel/replay"
)

// ErrConfig marks any configuration validation failure. It is the
// taxonomy's "Config" kind (spec.md §7): fatal at startup.
var ErrConfig = errors.New("config: invalid configuration")

// Config is the fully validated, typed configuration surface.
type Config struct {
	TCPHandshakePort int

	UDPGCSRx   int
	UDPDroneRx int

	GCSPlaintextTX   int
	GCSPlaintextRX   int
	DronePlaintextTX int
	DronePlaintextRX int

	GCSHost   string
	DroneHost string

	WireVersion  byte
	ReplayWindow uint64

	DronePSK [32]byte

	DefaultTimeout time.Duration
}

const (
	defaultTCPHandshakePort = 46000
	defaultUDPGCSRx         = 46011
	defaultUDPDroneRx       = 46012
	defaultWireVersion      = 1
	defaultReplayWindow     = replay.DefaultWidth
	defaultTimeoutSeconds   = 30
)

// Load reads and validates the configuration surface from the process
// environment. Every key is optional except DRONE_PSK, which is
// always required since the PSK has no safe default.
func Load() (Config, error) {
	var cfg Config
	var err error

	if cfg.TCPHandshakePort, err = portEnv("TCP_HANDSHAKE_PORT", defaultTCPHandshakePort); err != nil {
		return Config{}, err
	}
	if cfg.UDPGCSRx, err = portEnv("UDP_GCS_RX", defaultUDPGCSRx); err != nil {
		return Config{}, err
	}
	if cfg.UDPDroneRx, err = portEnv("UDP_DRONE_RX", defaultUDPDroneRx); err != nil {
		return Config{}, err
	}
	// Plaintext ports default to 0, meaning "let the OS pick".
	if cfg.GCSPlaintextTX, err = portEnv("GCS_PLAINTEXT_TX", 0); err != nil {
		return Config{}, err
	}
	if cfg.GCSPlaintextRX, err = portEnv("GCS_PLAINTEXT_RX", 0); err != nil {
		return Config{}, err
	}
	if cfg.DronePlaintextTX, err = portEnv("DRONE_PLAINTEXT_TX", 0); err != nil {
		return Config{}, err
	}
	if cfg.DronePlaintextRX, err = portEnv("DRONE_PLAINTEXT_RX", 0); err != nil {
		return Config{}, err
	}

	cfg.GCSHost = os.Getenv("GCS_HOST")
	cfg.DroneHost = os.Getenv("DRONE_HOST")

	wireVersion, err := intEnv("WIRE_VERSION", defaultWireVersion)
	if err != nil {
		return Config{}, err
	}
	if wireVersion != defaultWireVersion {
		return Config{}, fmt.Errorf("%w: WIRE_VERSION is frozen at %d, got %d", ErrConfig, defaultWireVersion, wireVersion)
	}
	cfg.WireVersion = byte(wireVersion)

	replayWindow, err := uint64Env("REPLAY_WINDOW", defaultReplayWindow)
	if err != nil {
		return Config{}, err
	}
	if replayWindow < replay.MinWidth {
		return Config{}, fmt.Errorf("%w: REPLAY_WINDOW must be >= %d, got %d", ErrConfig, replay.MinWidth, replayWindow)
	}
	cfg.ReplayWindow = replayWindow

	pskHex := os.Getenv("DRONE_PSK")
	if len(pskHex) != 64 {
		return Config{}, fmt.Errorf("%w: DRONE_PSK must be 64 hex characters, got %d", ErrConfig, len(pskHex))
	}
	pskBytes, err := hex.DecodeString(pskHex)
	if err != nil {
		return Config{}, fmt.Errorf("%w: DRONE_PSK is not valid hex: %v", ErrConfig, err)
	}
	copy(cfg.DronePSK[:], pskBytes)

	timeoutSeconds, err := intEnv("DEFAULT_TIMEOUT", defaultTimeoutSeconds)
	if err != nil {
		return Config{}, err
	}
	if timeoutSeconds <= 0 {
		return Config{}, fmt.Errorf("%w: DEFAULT_TIMEOUT must be positive, got %d", ErrConfig, timeoutSeconds)
	}
	cfg.DefaultTimeout = time.Duration(timeoutSeconds) * time.Second

	return cfg, nil
}

func portEnv(key string, def int) (int, error) {
	n, err := intEnv(key, def)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("%w: %s=%d is outside the valid port range", ErrConfig, key, n)
	}
	return n, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrConfig, key, v)
	}
	return n, nil
}

func uint64Env(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an unsigned integer", ErrConfig, key, v)
	}
	return n, nil
}
