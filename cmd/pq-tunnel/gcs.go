// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/pqtunnel/control"
	"github.com/luxfi/pqtunnel/handshake"
	"github.com/luxfi/pqtunnel/proxy"
	"github.com/luxfi/pqtunnel/session"
)

func gcsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gcs",
		Short: "Run the ground control station side of the tunnel",
		Long: `Runs the GCS role: listens for the drone's TCP handshake connection,
then forwards plaintext UDP traffic from GCS_PLAINTEXT_{TX,RX} to the
drone over an AEAD-encrypted UDP channel. Only the GCS role may
initiate a rekey.`,
		RunE: runGCS,
	}
	addCommonFlags(cmd)
	cmd.Flags().String("signing-key-file", "", "path to the long-term ML-DSA signing private key (required)")
	cmd.MarkFlagRequired("signing-key-file")
	return cmd
}

func runGCS(cmd *cobra.Command, args []string) error {
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

	signingKeyPath, _ := cmd.Flags().GetString("signing-key-file")
	signingKey, err := readKeyFile(signingKeyPath)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.GCSHost, cfg.TCPHandshakePort))
	if err != nil {
		return fmt.Errorf("pq-tunnel: listen handshake port: %w", err)
	}
	defer listener.Close()
	logger.Info("waiting for drone handshake", zap.String("addr", listener.Addr().String()))

	conn, err := listener.Accept()
	if err != nil {
		return fmt.Errorf("pq-tunnel: accept handshake connection: %w", err)
	}
	defer conn.Close()

	srv := handshake.NewServer(handshake.ServerConfig{
		Suite: s, PSK: cfg.DronePSK, SigningKey: signingKey, Timeout: cfg.DefaultTimeout,
	})
	result, err := srv.Run(conn)
	if err != nil {
		return fmt.Errorf("pq-tunnel: handshake failed: %w", err)
	}
	logger.Info("handshake complete", zap.String("suite", result.Suite.ID))

	ctx0, err := proxy.NewContextFromHandshake(result, cfg.ReplayWindow)
	if err != nil {
		return err
	}

	encConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(hostOrAny(cfg.GCSHost)), Port: cfg.UDPGCSRx})
	if err != nil {
		return fmt.Errorf("pq-tunnel: bind encrypted udp socket: %w", err)
	}
	plainConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.GCSPlaintextRX})
	if err != nil {
		return fmt.Errorf("pq-tunnel: bind plaintext udp socket: %w", err)
	}

	peerEncAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.DroneHost, cfg.UDPDroneRx))
	if err != nil {
		return fmt.Errorf("pq-tunnel: resolve drone address: %w", err)
	}
	plainPeerAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.GCSPlaintextTX}

	mgr := session.NewManager(ctx0)
	counters := session.NewProxyCounters()
	if err := counters.RegisterPrometheus(prometheus.DefaultRegisterer, "pqtunnel_gcs"); err != nil {
		logger.Warn("prometheus registration failed", zap.Error(err))
	}
	ctrl := control.NewEngine(control.RoleGCS, control.Config{KnownSuites: suiteListForRekey()})
	rehs := &gcsRehandshaker{conn: conn, psk: cfg.DronePSK, signingKey: signingKey, replayWindow: cfg.ReplayWindow}

	orch := proxy.NewOrchestrator(logger, encConn, plainConn, peerEncAddr, plainPeerAddr, mgr, counters, ctrl, rehs)

	rctx, cancel := rootContext()
	defer cancel()
	maybeStartMetrics(rctx, metricsAddr(cmd), logger)

	logger.Info("tunnel running", zap.Int("udp_rx", cfg.UDPGCSRx))
	runErr := orch.Run(rctx)
	writeSummary(cmd.OutOrStdout(), mgr, counters)
	return runErr
}

func metricsAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	return addr
}

func hostOrAny(host string) string {
	if host == "" {
		return "0.0.0.0"
	}
	return host
}
