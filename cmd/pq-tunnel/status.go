// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report tunnel status",
		Long: `A running tunnel exposes its counters, current suite, and last
rekey outcome through the orchestrator's in-process snapshot API
(session.Manager.Snapshot, session.ProxyCounters.Snapshot) and, when
--metrics-addr is set, a Prometheus /metrics endpoint. No separate
status RPC is specified, so this subcommand only points at those.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(),
				"pq-tunnel does not expose a status RPC; query the running process's "+
					"--metrics-addr endpoint, or embed it and read session.Manager.Snapshot() directly.")
			return nil
		},
	}
}
