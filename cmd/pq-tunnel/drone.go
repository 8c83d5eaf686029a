// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/pqtunnel/control"
	"github.com/luxfi/pqtunnel/handshake"
	"github.com/luxfi/pqtunnel/proxy"
	"github.com/luxfi/pqtunnel/session"
)

// dialRetryDelays implements the capped exponential backoff of
// spec.md §4.5: after the initial dial fails, up to five retries,
// waiting 1, 2, 4, 8 and 16 seconds before each.
var dialRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}

func droneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drone",
		Short: "Run the drone side of the tunnel",
		Long: `Runs the drone role: connects to the GCS's TCP handshake listener
with retry+backoff, then forwards plaintext UDP traffic from
DRONE_PLAINTEXT_{TX,RX} to the GCS over an AEAD-encrypted UDP
channel.`,
		RunE: runDrone,
	}
	addCommonFlags(cmd)
	cmd.Flags().String("verify-key-file", "", "path to the GCS's long-term ML-DSA verifying public key (required)")
	cmd.MarkFlagRequired("verify-key-file")
	return cmd
}

func runDrone(cmd *cobra.Command, args []string) error {
	s, err := resolveSuite(cmd)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	verifyKeyPath, _ := cmd.Flags().GetString("verify-key-file")
	verifyKey, err := readKeyFile(verifyKeyPath)
	if err != nil {
		return err
	}

	conn, err := dialWithBackoff(fmt.Sprintf("%s:%d", cfg.GCSHost, cfg.TCPHandshakePort), logger)
	if err != nil {
		return fmt.Errorf("pq-tunnel: dial handshake: %w", err)
	}
	defer conn.Close()

	cli := handshake.NewClient(handshake.ClientConfig{
		Suite: s, PSK: cfg.DronePSK, VerifyKey: verifyKey, Timeout: cfg.DefaultTimeout,
	})
	result, err := cli.Run(conn)
	if err != nil {
		return fmt.Errorf("pq-tunnel: handshake failed: %w", err)
	}
	logger.Info("handshake complete", zap.String("suite", result.Suite.ID))

	ctx0, err := proxy.NewContextFromHandshake(result, cfg.ReplayWindow)
	if err != nil {
		return err
	}

	encConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(hostOrAny(cfg.DroneHost)), Port: cfg.UDPDroneRx})
	if err != nil {
		return fmt.Errorf("pq-tunnel: bind encrypted udp socket: %w", err)
	}
	plainConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.DronePlaintextRX})
	if err != nil {
		return fmt.Errorf("pq-tunnel: bind plaintext udp socket: %w", err)
	}

	peerEncAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.GCSHost, cfg.UDPGCSRx))
	if err != nil {
		return fmt.Errorf("pq-tunnel: resolve gcs address: %w", err)
	}
	plainPeerAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.DronePlaintextTX}

	mgr := session.NewManager(ctx0)
	counters := session.NewProxyCounters()
	if err := counters.RegisterPrometheus(prometheus.DefaultRegisterer, "pqtunnel_drone"); err != nil {
		logger.Warn("prometheus registration failed", zap.Error(err))
	}
	ctrl := control.NewEngine(control.RoleDrone, control.Config{KnownSuites: suiteListForRekey()})
	rehs := &droneRehandshaker{conn: conn, psk: cfg.DronePSK, verifyKey: verifyKey, replayWindow: cfg.ReplayWindow}

	orch := proxy.NewOrchestrator(logger, encConn, plainConn, peerEncAddr, plainPeerAddr, mgr, counters, ctrl, rehs)

	rctx, cancel := rootContext()
	defer cancel()
	maybeStartMetrics(rctx, metricsAddr(cmd), logger)

	logger.Info("tunnel running", zap.Int("udp_rx", cfg.UDPDroneRx))
	runErr := orch.Run(rctx)
	writeSummary(cmd.OutOrStdout(), mgr, counters)
	return runErr
}

func dialWithBackoff(addr string, logger interface {
	Warn(msg string, fields ...zap.Field)
}) (net.Conn, error) {
	var lastErr error
	conn, err := net.Dial("tcp", addr)
	if err == nil {
		return conn, nil
	}
	lastErr = err
	for _, delay := range dialRetryDelays {
		logger.Warn("handshake dial failed, retrying", zap.Error(lastErr), zap.Duration("backoff", delay))
		time.Sleep(delay)
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
