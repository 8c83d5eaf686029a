// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/pqtunnel/internal/config"
	"github.com/luxfi/pqtunnel/internal/logging"
	metricsserver "github.com/luxfi/pqtunnel/internal/metrics"
	"github.com/luxfi/pqtunnel/session"
	"github.com/luxfi/pqtunnel/suite"
)

const defaultSuiteID = "cs-mlkem768-aesgcm-mldsa65"

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("suite", defaultSuiteID, "cryptographic suite identifier")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().String("metrics-addr", "", "address to serve Prometheus /metrics on (empty disables it)")
}

// suiteListForRekey returns every suite identifier this binary can
// actually serve as a rekey target: registered in the suite table
// and backed by a working KEM and signature implementation (spec.md
// §4.4 step 2, "locally implementable").
func suiteListForRekey() []string {
	var usable []string
	for _, id := range suite.List() {
		s, err := suite.Get(id)
		if err != nil {
			continue
		}
		if _, err := s.KEM(); err != nil {
			continue
		}
		if _, err := s.Signer(); err != nil {
			continue
		}
		usable = append(usable, id)
	}
	return usable
}

func resolveSuite(cmd *cobra.Command) (suite.Suite, error) {
	id, err := cmd.Flags().GetString("suite")
	if err != nil {
		return suite.Suite{}, err
	}
	return suite.Get(id)
}

func buildLogger(cmd *cobra.Command) (logging.Logger, error) {
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	return logging.New(level)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("pq-tunnel: %w", err)
	}
	return cfg, nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pq-tunnel: read key file %q: %w", path, err)
	}
	return data, nil
}

// maybeStartMetrics starts the Prometheus HTTP endpoint if addr is
// non-empty; it stops when ctx is canceled.
func maybeStartMetrics(ctx context.Context, addr string, logger logging.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := metricsserver.Serve(ctx, addr); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// rootContext returns a context canceled on SIGINT/SIGTERM.
func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// shutdownSummary is the counter/suite report emitted when the tunnel
// stops.
type shutdownSummary struct {
	Suite     string `json:"suite"`
	SessionID string `json:"session_id"`
	Epoch     uint8  `json:"epoch"`

	PtxIn  int64 `json:"ptx_in"`
	PtxOut int64 `json:"ptx_out"`
	EncIn  int64 `json:"enc_in"`
	EncOut int64 `json:"enc_out"`

	Drops            int64 `json:"drops"`
	DropAuth         int64 `json:"drop_auth"`
	DropHeader       int64 `json:"drop_header"`
	DropReplay       int64 `json:"drop_replay"`
	DropSessionEpoch int64 `json:"drop_session_epoch"`
	DropOther        int64 `json:"drop_other"`

	RekeysOK       int64  `json:"rekeys_ok"`
	RekeysFail     int64  `json:"rekeys_fail"`
	LastRekeySuite string `json:"last_rekey_suite"`
}

// writeSummary prints the shutdown summary JSON to w: every counter,
// the current suite, and the last rekey outcome.
func writeSummary(w io.Writer, mgr *session.Manager, counters *session.ProxyCounters) {
	snap := mgr.Snapshot()
	c := counters.Snapshot()
	out := shutdownSummary{
		Suite:     snap.Suite.ID,
		SessionID: hex.EncodeToString(snap.SessionID[:]),
		Epoch:     snap.Epoch,

		PtxIn: c.PtxIn, PtxOut: c.PtxOut, EncIn: c.EncIn, EncOut: c.EncOut,
		Drops: c.Drops, DropAuth: c.DropAuth, DropHeader: c.DropHeader,
		DropReplay: c.DropReplay, DropSessionEpoch: c.DropSessionEpoch, DropOther: c.DropOther,
		RekeysOK: c.RekeysOK, RekeysFail: c.RekeysFail, LastRekeySuite: c.LastRekeySuite,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
